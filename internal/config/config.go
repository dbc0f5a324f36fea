// ABOUTME: Configuration loading and parsing for argond
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete argond configuration
type Config struct {
	Database Database `yaml:"database"`
	Auth     Auth     `yaml:"auth"`
	Messages Messages `yaml:"messages"`
	Engine   Engine   `yaml:"engine"`
	Logging  Logging  `yaml:"logging"`
}

// Database holds persistence configuration
type Database struct {
	Path string `yaml:"path"`
}

// Auth holds access-token configuration
type Auth struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TokenTTLRaw string `yaml:"token_ttl"`
}

// Messages holds message lifecycle configuration
type Messages struct {
	DefaultTTL    time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	DefaultTTLRaw    string `yaml:"default_ttl"`
	SweepIntervalRaw string `yaml:"sweep_interval"`
}

// Engine holds sandbox engine configuration
type Engine struct {
	Enabled bool `yaml:"enabled"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the config file leaves a field unset.
const (
	DefaultTokenTTL      = 30 * 24 * time.Hour
	DefaultMessageTTL    = 30 * 24 * time.Hour
	DefaultSweepInterval = time.Minute
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	if cfg.Messages.DefaultTTLRaw != "" {
		cfg.Messages.DefaultTTL, err = time.ParseDuration(cfg.Messages.DefaultTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing default_ttl %q: %w", cfg.Messages.DefaultTTLRaw, err)
		}
	}

	if cfg.Messages.SweepIntervalRaw != "" {
		cfg.Messages.SweepInterval, err = time.ParseDuration(cfg.Messages.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sweep_interval %q: %w", cfg.Messages.SweepIntervalRaw, err)
		}
	}

	return nil
}

// applyDefaults fills unset durations with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = DefaultTokenTTL
	}
	if cfg.Messages.DefaultTTL == 0 {
		cfg.Messages.DefaultTTL = DefaultMessageTTL
	}
	if cfg.Messages.SweepInterval == 0 {
		cfg.Messages.SweepInterval = DefaultSweepInterval
	}
}
