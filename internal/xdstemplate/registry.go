// Package xdstemplate holds the registry of XdsTemplates and implements
// the longest-version-prefix resolution algorithm that lets operators ship
// a default/clusters template and override it at arbitrary granularity
// (1/clusters, 1.25/clusters, 1.25.4/clusters, ...).
package xdstemplate

import (
	"os"
	"sort"
	"strings"
	"sync"
)

// DeserializeAs selects how a rendered template body is embedded in the
// discovery response.
type DeserializeAs string

const (
	DeserializeJSON      DeserializeAs = "json"
	DeserializeYAML      DeserializeAs = "yaml"
	DeserializePlaintext DeserializeAs = "plaintext"
)

// Template is one configured XdsTemplate entry.
type Template struct {
	Path          string        `yaml:"path"`
	EnvoyVersion  string        `yaml:"envoy_version"`
	ResourceType  string        `yaml:"resource_type"`
	DeserializeAs DeserializeAs `yaml:"deserialize_as"`
	CallScript    bool          `yaml:"call_script"`
}

// Name is the registry key: "envoy_version/resource_type".
func (t Template) Name() string {
	return t.EnvoyVersion + "/" + t.ResourceType
}

// Source reads the template file's contents, lazily, on demand.
func (t Template) Source() (string, error) {
	b, err := os.ReadFile(t.Path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Registry holds parsed templates indexed by name. Reads are safe from
// many concurrent handlers; writes are only expected during start-up.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]Template)}
}

// Register adds or replaces a template under its Name. Last-registered
// wins for a duplicate name.
func (r *Registry) Register(t Template) {
	if t.DeserializeAs == "" {
		t.DeserializeAs = DeserializeJSON
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.Name()] = t
}

// Names returns every registered template name, sorted, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve implements the longest-version-prefix match: split envoyVersion
// on '.', try the longest joined prefix first, falling all the way back to
// a single segment, then "default", then give up.
func (r *Registry) Resolve(envoyVersion, resourceType string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	segments := strings.Split(envoyVersion, ".")
	for k := len(segments); k > 0; k-- {
		name := strings.Join(segments[:k], ".") + "/" + resourceType
		if t, ok := r.templates[name]; ok {
			return t, true
		}
	}

	if t, ok := r.templates["default/"+resourceType]; ok {
		return t, true
	}

	return Template{}, false
}
