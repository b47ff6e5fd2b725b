// Package config provides configuration types and defaults for darwinxref.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDBPath is the database used when neither -f nor the config file name one.
const DefaultDBPath = "/var/tmp/darwinxref.db"

// DefaultBuildEnv is the environment variable consulted for the current build.
const DefaultBuildEnv = "DARWINBUILD_BUILD"

// Config holds all configuration options for darwinxref.
type Config struct {
	DB         string           `mapstructure:"db"`
	Build      string           `mapstructure:"build"`
	BuildEnv   string           `mapstructure:"build_env"`
	Plugins    string           `mapstructure:"plugins"`
	Prebinding PrebindingConfig `mapstructure:"prebinding"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrebindingConfig configures the external helper that strips prebinding
// from Mach-O images before they are checksummed.
type PrebindingConfig struct {
	// Helper is the absolute path of the normalization tool.
	// Default: /usr/bin/redo_prebinding
	Helper string `mapstructure:"helper"`

	// Args are passed before the file name.
	// Default: -z -u -i -s
	Args []string `mapstructure:"args"`

	// ProbeTarget is the binary used once per process to check that the
	// helper understands Args.
	// Default: /bin/sh
	ProbeTarget string `mapstructure:"probe_target"`
}

// TracingConfig holds tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/darwinxref/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		DB:       DefaultDBPath,
		BuildEnv: DefaultBuildEnv,
		Plugins:  "plugins",
		Prebinding: PrebindingConfig{
			Helper:      "/usr/bin/redo_prebinding",
			Args:        []string{"-z", "-u", "-i", "-s"},
			ProbeTarget: "/bin/sh",
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "file",
			FilePath:   DefaultTracesFilePath(),
			SampleRate: 1.0,
		},
	}
}

// DefaultTracesFilePath returns the default path for trace file export.
// Returns ~/.config/darwinxref/traces/traces.jsonl or empty string if home dir unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "darwinxref", "traces", "traces.jsonl")
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DB) == "" {
		return fmt.Errorf("db must not be empty")
	}
	if err := ValidatePrebinding(c.Prebinding); err != nil {
		return err
	}
	return ValidateTracing(c.Tracing)
}

// ValidatePrebinding checks prebinding helper configuration for errors.
// An empty helper disables normalization and is valid.
func ValidatePrebinding(p PrebindingConfig) error {
	if p.Helper != "" && !filepath.IsAbs(p.Helper) {
		return fmt.Errorf("prebinding.helper must be an absolute path, got %q", p.Helper)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", or \"stdout\", got %q", tracing.Exporter)
		}
	}

	if tracing.Enabled && tracing.Exporter == "file" && tracing.FilePath == "" {
		return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
	}

	return nil
}
