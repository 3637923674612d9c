package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openfroyo/sous/pkg/telemetry"
)

// Config is the workspace configuration read from sous.yaml or sous.cue.
type Config struct {
	// Features lists the built-in features to enable, in order.
	Features []string `yaml:"features" json:"features" validate:"dive,required"`

	// Scripts are globs of Starlark feature files relative to the workspace root.
	// Script features run after the built-ins.
	Scripts []string `yaml:"scripts" json:"scripts" validate:"dive,required"`

	// Policies lists Rego files or directories relative to the workspace root.
	Policies []string `yaml:"policies" json:"policies" validate:"dive,required"`

	// RangePrefix is prepended to tag-resolved versions.
	RangePrefix string `yaml:"rangePrefix" json:"rangePrefix" validate:"omitempty,oneof=^ ~"`

	// NameConvention is a regular expression package names should match.
	NameConvention string `yaml:"nameConvention" json:"nameConvention"`

	// Registry is the npm registry base URL.
	Registry string `yaml:"registry" json:"registry" validate:"omitempty,url"`

	// MaxParallel caps concurrent file reconciles. Zero means the engine default.
	MaxParallel int `yaml:"maxParallel" json:"maxParallel" validate:"gte=0,lte=256"`

	// ThrowOnManualChanges aborts a run on the first hand-edited file.
	ThrowOnManualChanges bool `yaml:"throwOnManualChanges" json:"throwOnManualChanges"`

	// Global is the initial value of the global peer context.
	Global map[string]interface{} `yaml:"global" json:"global"`

	// History configures the run history database.
	History HistoryConfig `yaml:"history" json:"history"`

	// Logging contains logging configuration.
	Logging telemetry.LoggingConfig `yaml:"logging" json:"logging"`

	// Tracing contains tracing configuration.
	Tracing telemetry.TracingConfig `yaml:"tracing" json:"tracing"`

	// Metrics contains metrics configuration.
	Metrics telemetry.MetricsConfig `yaml:"metrics" json:"metrics"`

	// Dir is the workspace root the relative paths resolve against.
	Dir string `yaml:"-" json:"-"`

	// Source is the file the configuration was read from, empty for defaults.
	Source string `yaml:"-" json:"-"`
}

// HistoryConfig configures the run history database.
type HistoryConfig struct {
	// Enabled records every apply into the database.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Path is the SQLite file, relative to the workspace root.
	Path string `yaml:"path" json:"path" validate:"required_if=Enabled true"`

	// Keep is how many runs are retained. Zero keeps every run.
	Keep int `yaml:"keep" json:"keep" validate:"gte=0"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	tel := telemetry.DefaultConfig()
	return &Config{
		Features:    []string{"gitignore", "task-scripts"},
		RangePrefix: "^",
		Registry:    "https://registry.npmjs.org",
		History: HistoryConfig{
			Enabled: true,
			Path:    ".sous/history.db",
			Keep:    100,
		},
		Logging: tel.Logging,
		Tracing: tel.Tracing,
		Metrics: tel.Metrics,
	}
}

// Telemetry returns the telemetry configuration for a service version.
func (c *Config) Telemetry(version string) *telemetry.Config {
	tel := telemetry.DefaultConfig()
	tel.ServiceVersion = version
	tel.Logging = c.Logging
	tel.Tracing = c.Tracing
	tel.Metrics = c.Metrics
	return tel
}

// HistoryPath returns the absolute history database path.
func (c *Config) HistoryPath() string {
	return c.resolve(c.History.Path)
}

// PolicyPaths returns the absolute policy paths.
func (c *Config) PolicyPaths() []string {
	paths := make([]string, 0, len(c.Policies))
	for _, p := range c.Policies {
		paths = append(paths, c.resolve(p))
	}
	return paths
}

// ScriptFiles expands the script globs. The result is sorted and free of duplicates.
func (c *Config) ScriptFiles() ([]string, error) {
	seen := map[string]bool{}
	var files []string
	for _, pattern := range c.Scripts {
		matches, err := filepath.Glob(c.resolve(pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid script pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, filepath.FromSlash(p))
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path of the error (e.g., "tracing.samplingRate").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

func (v ValidationError) String() string {
	var loc string
	switch {
	case v.File != "" && v.Line > 0:
		loc = fmt.Sprintf("%s:%d:%d: ", v.File, v.Line, v.Column)
	case v.File != "":
		loc = v.File + ": "
	}
	if v.Path != "" {
		loc += v.Path + ": "
	}
	return loc + v.Message
}

// LoadError reports every problem found in a configuration file.
type LoadError struct {
	File   string
	Errors []ValidationError
}

func (e *LoadError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("invalid configuration %s: %s", e.File, strings.Join(msgs, "; "))
}
