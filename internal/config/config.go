// Package config loads and validates the control plane configuration from
// a YAML file, with every scalar setting overridable by an
// SOVEREIGN_-prefixed environment variable. The file path itself comes
// from SOVEREIGN_CONFIG_PATH, defaulting to "sovereign.yaml" in the
// working directory so the binary works out of the box for local
// development without any extra flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sovereign/controlplane/internal/source"
	"github.com/sovereign/controlplane/internal/tmplctx"
	"github.com/sovereign/controlplane/internal/xdstemplate"
)

const defaultIntervalSeconds = 30

// Config holds all runtime configuration for the control plane. Values are
// loaded once at startup via Load and then treated as immutable.
type Config struct {
	// HTTPAddr is the listen address for the discovery HTTP surface.
	HTTPAddr string `yaml:"http_addr"`

	// Templates is the full set of XdsTemplate entries to register.
	Templates []xdstemplate.Template `yaml:"templates"`

	// Sources configures the source poller. Optional; defaults apply if
	// the whole section is omitted.
	Sources SourcesConfig `yaml:"sources"`

	// TemplateContext configures the context poller. Optional.
	TemplateContext ContextConfig `yaml:"template_context"`

	// NodeMatching enables keyed instance bucketing when SourceKey is set.
	NodeMatching NodeMatchingConfig `yaml:"node_matching"`
}

// SourcesConfig is the "sources" section.
type SourcesConfig struct {
	IntervalSeconds int              `yaml:"interval"`
	Items           []source.Source `yaml:"items"`
}

// Interval returns the configured poll interval as a time.Duration.
func (s SourcesConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// ContextConfig is the "template_context" section.
type ContextConfig struct {
	IntervalSeconds int                        `yaml:"interval"`
	Items           map[string]tmplctx.Context `yaml:"items"`
}

// Interval returns the configured poll interval as a time.Duration.
func (c ContextConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// NodeMatchingConfig is the "node_matching" section.
type NodeMatchingConfig struct {
	SourceKey string `yaml:"source_key"`
}

// Load reads sovereign.yaml (or the file named by SOVEREIGN_CONFIG_PATH),
// applies defaults for any omitted optional section, and applies
// environment variable overrides. An error here should abort start-up.
func Load() (*Config, error) {
	path := getEnv("SOVEREIGN_CONFIG_PATH", "sovereign.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if len(cfg.Templates) == 0 {
		return nil, fmt.Errorf("config %q declares no templates", path)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8070"
	}
	if cfg.Sources.IntervalSeconds == 0 {
		cfg.Sources.IntervalSeconds = defaultIntervalSeconds
	}
	if cfg.TemplateContext.IntervalSeconds == 0 {
		cfg.TemplateContext.IntervalSeconds = defaultIntervalSeconds
	}
}

// applyEnvOverrides lets operators override the handful of scalar settings
// without editing the YAML file, following the SOVEREIGN_ prefix the
// original config loader used (config::Environment::with_prefix("SOVEREIGN")).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SOVEREIGN_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("SOVEREIGN_SOURCES_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sources.IntervalSeconds = n
		}
	}
	if v := os.Getenv("SOVEREIGN_TEMPLATE_CONTEXT_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TemplateContext.IntervalSeconds = n
		}
	}
	if v := os.Getenv("SOVEREIGN_NODE_MATCHING_SOURCE_KEY"); v != "" {
		cfg.NodeMatching.SourceKey = v
	}
}

// getEnv returns the value of the environment variable named by key, or
// fallback if the variable is unset or empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
