// Package config loads the pipeline definition from tsbuild.yaml.
//
// Precedence, lowest first: DefaultConfig, the YAML file, TSBUILD_*
// environment variables, command-line flags (applied by the CLI).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"tsbuild/internal/core"
)

// DefaultFileName is looked up in the working directory when no config path
// is given.
const DefaultFileName = "tsbuild.yaml"

// Environment overrides.
const (
	EnvCompiler    = "TSBUILD_COMPILER"
	EnvHeaderLines = "TSBUILD_HEADER_LINES"
	EnvStrict      = "TSBUILD_STRICT"
)

// Config holds the whole pipeline definition.
type Config struct {
	// Compiler settings
	Compiler CompilerConfig `yaml:"compiler"`

	// HeaderLines is how many leading artifact lines are dropped.
	HeaderLines int `yaml:"header_lines"`

	// Strict stops a target when its compile fails.
	Strict bool `yaml:"strict"`

	// NormalizeNewlines rewrites CRLF as LF in trimmed artifacts.
	NormalizeNewlines bool `yaml:"normalize_newlines"`

	// Targets run serially in this order.
	Targets []core.Target `yaml:"targets"`
}

// CompilerConfig configures the external compiler process.
type CompilerConfig struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// DefaultConfig compiles main.ts in the working directory with tsc and
// strips the two-line CommonJS prologue.
func DefaultConfig() *Config {
	return &Config{
		Compiler: CompilerConfig{
			Command: core.DefaultCompiler,
		},
		HeaderLines: core.DefaultHeaderLines,
		Targets: []core.Target{
			{Name: "main", Source: "main.ts"},
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	return load(path, false)
}

// LoadRequired is Load for a path the user named explicitly: a missing
// file is an error.
func LoadRequired(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, mustExist bool) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			if err := cfg.applyEnvOverrides(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if cmd := strings.TrimSpace(os.Getenv(EnvCompiler)); cmd != "" {
		c.Compiler.Command = cmd
	}
	if raw := strings.TrimSpace(os.Getenv(EnvHeaderLines)); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvHeaderLines, raw, err)
		}
		c.HeaderLines = n
	}
	if raw := strings.TrimSpace(os.Getenv(EnvStrict)); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvStrict, raw, err)
		}
		c.Strict = b
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Compiler.Command) == "" {
		return fmt.Errorf("compiler.command must not be empty")
	}
	if c.HeaderLines < 0 {
		return fmt.Errorf("header_lines must not be negative (got %d)", c.HeaderLines)
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}

	seen := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		if strings.TrimSpace(t.Source) == "" {
			return fmt.Errorf("targets[%d].source is required", i)
		}
		name := t.DisplayName()
		if seen[name] {
			return fmt.Errorf("duplicate target %q", name)
		}
		seen[name] = true
		if t.Relocate && strings.TrimSpace(t.Destination) == "" {
			return fmt.Errorf("target %q: relocate requires a destination", name)
		}
		if !t.Relocate && t.Destination != "" {
			return fmt.Errorf("target %q: destination is set but relocate is false", name)
		}
	}
	return nil
}

// Select returns the targets with the given names, in configuration order.
// No names selects every target.
func (c *Config) Select(names []string) ([]core.Target, error) {
	if len(names) == 0 {
		return append([]core.Target(nil), c.Targets...), nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var out []core.Target
	for _, t := range c.Targets {
		if want[t.DisplayName()] {
			out = append(out, t)
			delete(want, t.DisplayName())
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for _, n := range names {
			if want[n] {
				missing = append(missing, n)
			}
		}
		return nil, fmt.Errorf("unknown target(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// Hash returns the pipeline identity for targets run under workDir.
func (c *Config) Hash(workDir string, targets []core.Target) core.PipelineHash {
	compiler := append([]string{c.Compiler.Command}, c.Compiler.Args...)
	return core.ComputePipelineHash(core.HashInput{
		WorkingDir:        workDir,
		Compiler:          compiler,
		Env:               c.Compiler.Env,
		HeaderLines:       c.HeaderLines,
		Strict:            c.Strict,
		NormalizeNewlines: c.NormalizeNewlines,
		Targets:           targets,
	})
}
