// Package bucket aggregates raw per-source payloads into the instances
// snapshot consumed by the render pipeline: either one Any-destined
// package, or a map of match-key buckets derived from a configured field.
package bucket

import (
	"encoding/json"
	"fmt"
)

// Instance is a single upstream instance record. Instances are always JSON
// objects so the keyed bucketer can look up the match field by name.
type Instance = map[string]any

// Dest tags a Package with the node(s) it applies to.
type Dest struct {
	Any   bool
	Match string
}

// AnyDest returns a destination that matches every node.
func AnyDest() Dest { return Dest{Any: true} }

// MatchDest returns a destination that matches only nodes whose cluster
// equals key.
func MatchDest(key string) Dest { return Dest{Match: key} }

// Applies reports whether this destination applies to a request from
// cluster.
func (d Dest) Applies(cluster string) bool {
	return d.Any || d.Match == cluster
}

// Package bundles a destination with the instances routed to it.
type Package struct {
	Dest      Dest
	Instances []Instance
}

// Config selects bucketing mode. An empty SourceKey means ungrouped mode.
type Config struct {
	SourceKey string
}

// Bucket parses each raw source payload (which must be a JSON array) and
// aggregates them per Config. In ungrouped mode all instances land in a
// single Any package, source order preserved. In keyed mode, an instance
// is bucketed by the value at SourceKey: a string value places it in one
// bucket, an array of strings fans it out to each named bucket, and any
// other value (including a missing field) silently drops the instance
// from node-matched output.
//
// A payload that doesn't decode as a JSON array is a refresh-time error;
// the caller must discard the whole pass and keep the prior snapshot.
func Bucket(cfg Config, rawPayloads [][]byte) ([]Package, error) {
	var all []Instance
	for i, raw := range rawPayloads {
		var arr []Instance
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, fmt.Errorf("source %d: payload is not a JSON array of instances: %w", i, err)
		}
		all = append(all, arr...)
	}

	if cfg.SourceKey == "" {
		return []Package{{Dest: AnyDest(), Instances: all}}, nil
	}

	buckets := make(map[string][]Instance)
	for _, inst := range all {
		v, ok := inst[cfg.SourceKey]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			buckets[val] = append(buckets[val], inst)
		case []any:
			for _, elem := range val {
				if key, ok := elem.(string); ok {
					buckets[key] = append(buckets[key], inst)
				}
			}
		default:
			// not a string or array of strings: skip silently
		}
	}

	out := make([]Package, 0, len(buckets))
	for key, instances := range buckets {
		out = append(out, Package{Dest: MatchDest(key), Instances: instances})
	}
	return out, nil
}

// Filter concatenates the instances of every package whose destination
// applies to cluster, preserving package order.
func Filter(pkgs []Package, cluster string) []Instance {
	var out []Instance
	for _, pkg := range pkgs {
		if pkg.Dest.Applies(cluster) {
			out = append(out, pkg.Instances...)
		}
	}
	if out == nil {
		out = []Instance{}
	}
	return out
}
