// Package config handles engine configuration from YAML files and
// environment variables.
//
// Configuration is loaded with Load(), which reads an optional YAML file
// and then applies SKULD_-prefixed environment variable overrides, so a
// deployment can ship a base file and tune single knobs per environment.
// Validate() checks the result before use.
//
// Example Usage:
//
//	cfg, err := config.Load("skuld.yaml")
//	if err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
//	fmt.Printf("Integrator: %s rel_tol=%g\n",
//		cfg.Integrator.Method, cfg.Integrator.RelTol)
//
// Environment Variables:
//   - SKULD_INTEGRATOR_METHOD="adaptive" or "fixed"
//   - SKULD_INTEGRATOR_REL_TOL=1e-9
//   - SKULD_CACHE_ENABLED=true
//   - SKULD_CACHE_DIR="./cache"
//   - SKULD_LOG_LEVEL="info"
//   - SKULD_EVAL_ERROR_MODE="print", "collect", "count" or "ignore"
//   - SKULD_CONSISTENCY_CHECK=true
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/skuld/pkg/integrate"
)

// Config holds all engine configuration.
//
// Sections:
//   - Integrator: numeric quadrature defaults
//   - Cache: in-memory result cache and persistent store
//   - Logging: log level and encoding
//   - Eval: evaluation protocol knobs
type Config struct {
	Integrator integrate.Config `yaml:"integrator"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
	Eval       EvalConfig       `yaml:"eval"`
}

// Duration is a time.Duration that unmarshals from YAML strings in
// time.ParseDuration notation, like "90s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// CacheConfig holds result cache settings.
type CacheConfig struct {
	// Enabled controls the in-memory result cache
	Enabled bool `yaml:"enabled"`
	// MaxEntries bounds the in-memory cache
	MaxEntries int `yaml:"max_entries"`
	// TTL expires in-memory entries; zero means no expiry
	TTL Duration `yaml:"ttl"`
	// Dir is the directory of the persistent store; empty disables it
	Dir string `yaml:"dir"`
	// InMemory runs the persistent store without touching disk
	InMemory bool `yaml:"in_memory"`
	// SyncWrites makes persistent writes durable at a throughput cost
	SyncWrites bool `yaml:"sync_writes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
	// Format is "json" or "console"
	Format string `yaml:"format"`
	// Development enables stack traces on warnings
	Development bool `yaml:"development"`
}

// EvalConfig holds evaluation protocol settings.
type EvalConfig struct {
	// ErrorMode is one of print, collect, count, ignore
	ErrorMode string `yaml:"error_mode"`
	// ConsistencyCheck recomputes clean nodes and compares against caches
	ConsistencyCheck bool `yaml:"consistency_check"`
	// HideOffset adds node offsets back on read
	HideOffset bool `yaml:"hide_offset"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	return &Config{
		Integrator: integrate.DefaultConfig(),
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Eval: EvalConfig{
			ErrorMode: "print",
		},
	}
}

// Load reads the YAML file at path when it exists, then applies environment
// overrides and validates. An empty path skips the file step.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Integrator.Method = getEnv("SKULD_INTEGRATOR_METHOD", c.Integrator.Method)
	c.Integrator.RelTol = getEnvFloat("SKULD_INTEGRATOR_REL_TOL", c.Integrator.RelTol)
	c.Integrator.AbsTol = getEnvFloat("SKULD_INTEGRATOR_ABS_TOL", c.Integrator.AbsTol)
	c.Integrator.Points = getEnvInt("SKULD_INTEGRATOR_POINTS", c.Integrator.Points)
	c.Integrator.MaxDepth = getEnvInt("SKULD_INTEGRATOR_MAX_DEPTH", c.Integrator.MaxDepth)

	c.Cache.Enabled = getEnvBool("SKULD_CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.MaxEntries = getEnvInt("SKULD_CACHE_MAX_ENTRIES", c.Cache.MaxEntries)
	c.Cache.TTL = Duration(getEnvDuration("SKULD_CACHE_TTL", c.Cache.TTL.Std()))
	c.Cache.Dir = getEnv("SKULD_CACHE_DIR", c.Cache.Dir)
	c.Cache.InMemory = getEnvBool("SKULD_CACHE_IN_MEMORY", c.Cache.InMemory)
	c.Cache.SyncWrites = getEnvBool("SKULD_CACHE_SYNC_WRITES", c.Cache.SyncWrites)

	c.Logging.Level = getEnv("SKULD_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("SKULD_LOG_FORMAT", c.Logging.Format)
	c.Logging.Development = getEnvBool("SKULD_LOG_DEVELOPMENT", c.Logging.Development)

	c.Eval.ErrorMode = getEnv("SKULD_EVAL_ERROR_MODE", c.Eval.ErrorMode)
	c.Eval.ConsistencyCheck = getEnvBool("SKULD_CONSISTENCY_CHECK", c.Eval.ConsistencyCheck)
	c.Eval.HideOffset = getEnvBool("SKULD_HIDE_OFFSET", c.Eval.HideOffset)
}

// Validate checks the configuration for logical errors and invalid values.
// Call it after Load and before using the Config.
func (c *Config) Validate() error {
	if err := c.Integrator.Validate(); err != nil {
		return err
	}

	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("config: negative cache size %d", c.Cache.MaxEntries)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("config: negative cache TTL %s", c.Cache.TTL)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Logging.Format)
	}

	switch c.Eval.ErrorMode {
	case "print", "collect", "count", "ignore":
	default:
		return fmt.Errorf("config: unknown eval error mode %q", c.Eval.ErrorMode)
	}
	return nil
}

// String returns a compact representation safe for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Integrator: %s, Cache: %v, Log: %s/%s, ErrorMode: %s}",
		c.Integrator.Method, c.Cache.Enabled,
		c.Logging.Level, c.Logging.Format, c.Eval.ErrorMode,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
