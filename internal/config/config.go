// Package config loads, validates, writes and watches the kernel
// configuration file.
//
// Example YAML structure:
//
//	schema_version: v1
//	log_levels: ["info", "cache.*=debug"]
//	sweep_interval: 5m
//	caches:
//	  - name: player_data
//	    ttl: 5m
//	    shared: true
//	components:
//	  - name: economy
//	    depends_on: [vital]
//	    version: "1.2.0"
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/moolen/bdcraft/internal/cache"
	"github.com/moolen/bdcraft/internal/logging"
)

// SchemaVersion is the only supported config schema.
const SchemaVersion = "v1"

// ErrInvalidConfig is matched by every validation error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the kernel configuration file.
type Config struct {
	// SchemaVersion is the explicit config schema version ("v1").
	SchemaVersion string `yaml:"schema_version"`

	// LogLevels holds a default level plus optional "package=level"
	// overrides, e.g. ["info", "cache.*=debug"].
	LogLevels []string `yaml:"log_levels"`

	// MinComponentVersion is a go-version constraint every versioned
	// component must satisfy, e.g. ">= 1.0.0". Empty disables the check.
	MinComponentVersion string `yaml:"min_component_version"`

	// SweepInterval is the period of the cache registry cleanup.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// MetricsAddr is the listen address of the Prometheus endpoint.
	// Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	Tracing TracingConfig `yaml:"tracing"`

	Caches     []CacheConfig     `yaml:"caches"`
	Components []ComponentConfig `yaml:"components"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	TLSCAPath   string `yaml:"tls_ca_path"`
	TLSInsecure bool   `yaml:"tls_insecure"`
}

// CacheConfig declares one named cache.
type CacheConfig struct {
	Name       string        `yaml:"name"`
	TTL        time.Duration `yaml:"ttl"`
	Shared     bool          `yaml:"shared"`
	MaxEntries int           `yaml:"max_entries"`
}

// ComponentConfig declares one manifest component and its dependencies.
type ComponentConfig struct {
	Name      string   `yaml:"name"`
	DependsOn []string `yaml:"depends_on"`
	Version   string   `yaml:"version"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		SchemaVersion: SchemaVersion,
		LogLevels:     []string{"info"},
		SweepInterval: cache.DefaultSweepInterval,
		Caches:        defaultCaches(),
	}
}

func defaultCaches() []CacheConfig {
	specs := cache.DefaultSpecs()
	out := make([]CacheConfig, 0, len(specs))
	for _, s := range specs {
		out = append(out, CacheConfig{Name: s.Name, TTL: s.TTL, Shared: s.Shared, MaxEntries: s.MaxEntries})
	}
	return out
}

// CacheSpecs converts the cache declarations for cache.Registry.RegisterSpecs.
func (c *Config) CacheSpecs() []cache.Spec {
	specs := make([]cache.Spec, 0, len(c.Caches))
	for _, cc := range c.Caches {
		specs = append(specs, cache.Spec{Name: cc.Name, TTL: cc.TTL, Shared: cc.Shared, MaxEntries: cc.MaxEntries})
	}
	return specs
}

// LogSettings splits LogLevels into the default level and per-package
// overrides, in the form logging.Initialize expects.
func (c *Config) LogSettings() (string, map[string]string, error) {
	level := "info"
	packages := make(map[string]string)
	for _, entry := range c.LogLevels {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, lvl, found := strings.Cut(entry, "=")
		if !found {
			level = entry
			continue
		}
		name, lvl = strings.TrimSpace(name), strings.TrimSpace(lvl)
		if name == "" || lvl == "" {
			return "", nil, NewConfigError(fmt.Sprintf("log_levels: malformed entry %q", entry))
		}
		packages[name] = lvl
	}
	return level, packages, nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.SchemaVersion != SchemaVersion {
		return NewConfigError(fmt.Sprintf("unsupported schema_version: %q (expected %q)", c.SchemaVersion, SchemaVersion))
	}

	level, packages, err := c.LogSettings()
	if err != nil {
		return err
	}
	if _, err := logging.ParseLevel(level); err != nil {
		return NewConfigError(fmt.Sprintf("log_levels: %v", err))
	}
	for name, lvl := range packages {
		if _, err := logging.ParseLevel(lvl); err != nil {
			return NewConfigError(fmt.Sprintf("log_levels: package %s: %v", name, err))
		}
	}

	if c.MinComponentVersion != "" {
		if _, err := version.NewConstraint(c.MinComponentVersion); err != nil {
			return NewConfigError(fmt.Sprintf("min_component_version: invalid constraint %q: %v", c.MinComponentVersion, err))
		}
	}

	if c.SweepInterval <= 0 {
		return NewConfigError("sweep_interval must be positive")
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return NewConfigError("tracing.endpoint must be set when tracing is enabled")
	}

	seenCaches := make(map[string]bool)
	for i, cc := range c.Caches {
		if cc.Name == "" {
			return NewConfigError(fmt.Sprintf("caches[%d]: name is required", i))
		}
		if seenCaches[cc.Name] {
			return NewConfigError(fmt.Sprintf("caches[%d]: duplicate cache name %q", i, cc.Name))
		}
		seenCaches[cc.Name] = true
		if cc.TTL <= 0 {
			return NewConfigError(fmt.Sprintf("caches[%d] (%s): ttl must be positive", i, cc.Name))
		}
		if cc.MaxEntries < 0 {
			return NewConfigError(fmt.Sprintf("caches[%d] (%s): max_entries must not be negative", i, cc.Name))
		}
	}

	seenComponents := make(map[string]bool)
	for i, comp := range c.Components {
		if comp.Name == "" {
			return NewConfigError(fmt.Sprintf("components[%d]: name is required", i))
		}
		if seenComponents[comp.Name] {
			return NewConfigError(fmt.Sprintf("components[%d]: duplicate component name %q", i, comp.Name))
		}
		seenComponents[comp.Name] = true
		if comp.Version != "" {
			if _, err := version.NewVersion(comp.Version); err != nil {
				return NewConfigError(fmt.Sprintf("components[%d] (%s): invalid version %q", i, comp.Name, comp.Version))
			}
		}
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return e.message
}

// Is reports whether target is ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}
