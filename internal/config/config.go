// Package config loads hb settings.
// Priority: defaults < config file < environment < flags
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/happensbefore/internal/schema"
)

// Config holds all hb configuration.
type Config struct {
	// Schema is the default schema reference for analyze, export and replay.
	Schema string `yaml:"schema"`

	Store     StoreConfig     `yaml:"store"`
	Output    OutputConfig    `yaml:"output"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StoreConfig controls run persistence.
type StoreConfig struct {
	// Path is the SQLite database. Empty disables persistence for analyze.
	Path string `yaml:"path"`
}

// OutputConfig controls CLI output.
type OutputConfig struct {
	Format  string `yaml:"format"`  // text | json
	Export  string `yaml:"export"`  // dot | json
	Verbose bool   `yaml:"verbose"` // debug logging to stderr
}

// TelemetryConfig enables OpenTelemetry instruments around each run.
type TelemetryConfig struct {
	Metrics bool `yaml:"metrics"`
	Tracing bool `yaml:"tracing"`
}

// Environment variables read by Load.
const (
	EnvSchema = "HB_SCHEMA"
	EnvDB     = "HB_DB"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Schema: schema.BuiltinSTS,
		Output: OutputConfig{
			Format: "text",
			Export: "dot",
		},
	}
}

// Load returns the defaults overlaid with the file at path (if path is
// non-empty) and then the environment. Unknown keys in the file are errors.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays YAML onto cfg. Keys absent from the document keep
// their current values.
func (c *Config) decode(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvSchema); v != "" {
		c.Schema = v
	}
	if v := os.Getenv(EnvDB); v != "" {
		c.Store.Path = v
	}
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	if !slices.Contains([]string{"text", "json"}, c.Output.Format) {
		return fmt.Errorf("config: output.format %q: must be text or json", c.Output.Format)
	}
	if !slices.Contains([]string{"dot", "json"}, c.Output.Export) {
		return fmt.Errorf("config: output.export %q: must be dot or json", c.Output.Export)
	}
	return nil
}
