package render

import "fmt"

// DiscoveryRequest is the subset of Envoy's discovery request JSON this
// core consumes.
type DiscoveryRequest struct {
	Node          Node     `json:"node"`
	ResourceNames []string `json:"resource_names,omitempty"`
	VersionInfo   string   `json:"version_info,omitempty"`
}

// Node is the requesting Envoy's self-description.
type Node struct {
	Cluster               string        `json:"cluster"`
	BuildVersion          string        `json:"build_version,omitempty"`
	UserAgentBuildVersion *BuildVersion `json:"user_agent_build_version,omitempty"`
}

// BuildVersion wraps the structured semantic version Envoy reports when
// build_version isn't set directly.
type BuildVersion struct {
	Version SemanticVersion `json:"version"`
}

// SemanticVersion is Envoy's {major_number, minor_number, patch} triple.
type SemanticVersion struct {
	MajorNumber int `json:"major_number"`
	MinorNumber int `json:"minor_number"`
	Patch       int `json:"patch"`
}

func (v SemanticVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.MajorNumber, v.MinorNumber, v.Patch)
}

// EnvoyVersion extracts the dotted version string per the documented
// preference: build_version wins over user_agent_build_version; silently
// ignoring the latter when both are present matches observed behavior.
func (r DiscoveryRequest) EnvoyVersion() (string, bool) {
	if r.Node.BuildVersion != "" {
		return r.Node.BuildVersion, true
	}
	if r.Node.UserAgentBuildVersion != nil {
		return r.Node.UserAgentBuildVersion.Version.String(), true
	}
	return "", false
}
