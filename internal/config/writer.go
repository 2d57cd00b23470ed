package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	SchemaVersion       string            `yaml:"schema_version"`
	LogLevels           []string          `yaml:"log_levels,flow"`
	MinComponentVersion string            `yaml:"min_component_version"`
	SweepInterval       string            `yaml:"sweep_interval"`
	MetricsAddr         string            `yaml:"metrics_addr"`
	Tracing             TracingConfig     `yaml:"tracing"`
	Caches              []fileCache       `yaml:"caches"`
	Components          []ComponentConfig `yaml:"components"`
}

type fileCache struct {
	Name       string `yaml:"name"`
	TTL        string `yaml:"ttl"`
	Shared     bool   `yaml:"shared"`
	MaxEntries int    `yaml:"max_entries,omitempty"`
}

// MarshalYAML writes durations in their human readable form ("5m0s").
func (c *Config) MarshalYAML() (interface{}, error) {
	out := fileConfig{
		SchemaVersion:       c.SchemaVersion,
		LogLevels:           c.LogLevels,
		MinComponentVersion: c.MinComponentVersion,
		SweepInterval:       c.SweepInterval.String(),
		MetricsAddr:         c.MetricsAddr,
		Tracing:             c.Tracing,
		Components:          c.Components,
	}
	for _, cc := range c.Caches {
		out.Caches = append(out.Caches, fileCache{
			Name:       cc.Name,
			TTL:        cc.TTL.String(),
			Shared:     cc.Shared,
			MaxEntries: cc.MaxEntries,
		})
	}
	return out, nil
}

// WriteConfig validates cfg and writes it to path through a temp file in the
// same directory followed by a rename, so readers never see a partial file.
func WriteConfig(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to write invalid config: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".bdcraft.*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if _, err := os.Stat(tmpPath); err == nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %q: %w", path, err)
	}

	return nil
}
