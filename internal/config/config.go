// Package config loads the engine configuration from .tamma/config.yaml and
// applies TAMMA_* environment overrides. It reads the file directly rather
// than through the viper singleton, so it works before viper is initialized
// and when the CWD has changed since startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the engine configuration. Zero values mean "use the default";
// Load always returns a fully defaulted config.
type Config struct {
	// Backend selects the storage backend: "sqlite" (default) or "mysql".
	Backend string `yaml:"backend"`
	// DBPath is the SQLite file path, or the MySQL DSN for the mysql backend.
	DBPath string `yaml:"db-path"`
	// Actor is the default resolution actor recorded by the CLI.
	Actor string `yaml:"actor"`

	Monitor MonitorConfig `yaml:"monitor"`
	Retry   RetryConfig   `yaml:"retry"`
}

// MonitorConfig holds the monitoring-session defaults.
type MonitorConfig struct {
	PollInterval      Duration `yaml:"poll-interval"`
	MaxDuration       Duration `yaml:"max-duration"`
	DegradedThreshold int      `yaml:"degraded-threshold"`
}

// RetryConfig holds the retry-engine defaults; per-operation policy files
// override these.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max-attempts"`
	BaseDelay   Duration `yaml:"base-delay"`
	MaxDelay    Duration `yaml:"max-delay"`
}

// Duration is a time.Duration that unmarshals from "30s"-style YAML strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend: "sqlite",
		Monitor: MonitorConfig{
			PollInterval:      Duration(30 * time.Second),
			MaxDuration:       Duration(2 * time.Hour),
			DegradedThreshold: 3,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   Duration(2 * time.Second),
			MaxDelay:    Duration(60 * time.Second),
		},
	}
}

// Dir returns the tamma directory: $TAMMA_DIR if set, else .tamma under the
// current working directory.
func Dir() string {
	if dir := os.Getenv("TAMMA_DIR"); dir != "" {
		return dir
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ".tamma"
	}
	return filepath.Join(cwd, ".tamma")
}

// Load reads config.yaml from the tamma directory and fills in defaults. A
// missing or unparseable file yields the defaults, never an error: the engine
// must come up in a fresh checkout with no configuration at all.
func Load(tammaDir string) *Config {
	cfg := Default()

	path := filepath.Join(tammaDir, "config.yaml")
	data, err := os.ReadFile(path) // #nosec G304 - config file path from tammaDir
	if err == nil {
		// Unmarshal over the defaults so absent keys keep them.
		if uerr := yaml.Unmarshal(data, cfg); uerr != nil {
			cfg = Default()
		}
	}

	cfg.applyDefaults()
	return cfg
}

// LoadWithEnv reads config.yaml and applies environment variable overrides.
// Environment variables take precedence over config file values.
//
// Supported environment variables:
//   - TAMMA_BACKEND: overrides backend
//   - TAMMA_DB_PATH: overrides db-path
//   - TAMMA_ACTOR: overrides actor
//   - TAMMA_POLL_INTERVAL: overrides monitor.poll-interval
//   - TAMMA_MAX_DURATION: overrides monitor.max-duration
func LoadWithEnv(tammaDir string) *Config {
	cfg := Load(tammaDir)

	if backend := os.Getenv("TAMMA_BACKEND"); backend != "" {
		cfg.Backend = backend
	}
	if dbPath := os.Getenv("TAMMA_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if actor := os.Getenv("TAMMA_ACTOR"); actor != "" {
		cfg.Actor = actor
	}
	if v := os.Getenv("TAMMA_POLL_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.PollInterval = Duration(parsed)
		}
	}
	if v := os.Getenv("TAMMA_MAX_DURATION"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.MaxDuration = Duration(parsed)
		}
	}

	return cfg
}

// DatabasePath returns the configured database path, defaulting to
// tamma.db inside the tamma directory for the sqlite backend.
func (c *Config) DatabasePath(tammaDir string) string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(tammaDir, "tamma.db")
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.Monitor.PollInterval <= 0 {
		c.Monitor.PollInterval = d.Monitor.PollInterval
	}
	if c.Monitor.MaxDuration <= 0 {
		c.Monitor.MaxDuration = d.Monitor.MaxDuration
	}
	if c.Monitor.DegradedThreshold <= 0 {
		c.Monitor.DegradedThreshold = d.Monitor.DegradedThreshold
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = d.Retry.MaxAttempts
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = d.Retry.BaseDelay
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = d.Retry.MaxDelay
	}
}
