// Package config handles flowgraphd process configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// searchPathsFunc is the config search path provider, overridden in
// tests to avoid matching real files on a developer/deploy machine.
var searchPathsFunc = DefaultSearchPaths

// DefaultSearchPaths returns the config file search order. An explicit
// path (from -config) is checked first by FindConfig; this list is
// consulted only when no explicit path is given.
func DefaultSearchPaths() []string {
	paths := []string{"flowgraphd.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "flowgraphd", "config.yaml"))
	}

	paths = append(paths, "/config/flowgraphd.yaml") // container convention
	paths = append(paths, "/etc/flowgraphd/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise, searches searchPathsFunc() and returns the first
// path that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// Config holds all flowgraphd process-level configuration: the
// ambient runtime concerns that sit around the dataflow engine itself
// (control endpoint, worker pool, graph storage, hot-swap retry
// policy, metrics). Graph topology is a separate concern, described
// by the declarative loader's own file format.
type Config struct {
	// Control is the HTTP/WebSocket control endpoint (§4.8).
	Control ControlConfig `yaml:"control"`
	// Metrics is the Prometheus scrape endpoint.
	Metrics MetricsConfig `yaml:"metrics"`
	// Runtime covers the scheduler's worker pool.
	Runtime RuntimeConfig `yaml:"runtime"`
	// GraphDir is the directory searched for *.toml flowgraph
	// descriptions when neither the -graph flag nor the control file
	// names an initial graph.
	GraphDir string `yaml:"graph_dir"`
	// ControlFile is the relative path of the advisory file recording
	// the last-requested graph path (§6, supplemented feature).
	ControlFile string `yaml:"control_file"`
	// Reload governs the hot-swap supervisor's retry behavior on
	// build/start failure (§4.6, §7).
	Reload   ReloadConfig `yaml:"reload"`
	LogLevel string       `yaml:"log_level"`
}

// ControlConfig configures the external control endpoint.
type ControlConfig struct {
	// Address is the bind address, default "127.0.0.1:1337" per
	// spec.md §4.8.
	Address string `yaml:"address"`
	// CallTimeout is loaded and defaulted (5s) but not applied: the
	// control endpoint does not receive it, so an external Call waits
	// as long as its HTTP request's context allows and no "busy"
	// result is produced.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// RuntimeConfig configures the scheduler's worker pool.
type RuntimeConfig struct {
	// Workers is the number of OS threads GOMAXPROCS is set to for the
	// scheduler's work-stealing pool; 0 means use runtime.NumCPU().
	Workers int `yaml:"workers"`
}

// ReloadConfig configures hot-swap retry behavior.
type ReloadConfig struct {
	// RetryBackoff is how long the supervisor waits after a failed
	// build/start before returning to the reload-wait state (§4.6
	// step 3, §7).
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// Configured reports whether the metrics endpoint should be started.
func (c MetricsConfig) Configured() bool {
	return c.Enabled && c.Address != ""
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates the
// result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any
// field without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.Control.Address == "" {
		c.Control.Address = "127.0.0.1:1337"
	}
	if c.Control.CallTimeout == 0 {
		c.Control.CallTimeout = 5 * time.Second
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = "127.0.0.1:9337"
	}
	if c.GraphDir == "" {
		c.GraphDir = "./graphs"
	}
	if c.ControlFile == "" {
		c.ControlFile = ".flowgraph_control"
	}
	if c.Reload.RetryBackoff == 0 {
		c.Reload.RetryBackoff = 2 * time.Second
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Runtime.Workers < 0 {
		return fmt.Errorf("runtime.workers %d must not be negative", c.Runtime.Workers)
	}
	if c.Reload.RetryBackoff < 0 {
		return fmt.Errorf("reload.retry_backoff must not be negative")
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a default configuration suitable for local
// development. All defaults are already applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
