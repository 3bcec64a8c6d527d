package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/netdumpsystems/netdump-go"
)

// Config is the netdump command configuration.
type Config struct {
	// Level is one of none, basic, headers or body.
	Level string `yaml:"level"`

	// Dir is the transcript directory. Empty selects the library default.
	Dir string `yaml:"dir"`

	// MaxSize is the store capacity in bytes.
	MaxSize int64 `yaml:"max_size"`

	// SyncWrites fsyncs every transcript.
	SyncWrites bool `yaml:"sync_writes"`

	Redact RedactConfig `yaml:"redact"`
	Log    LogConfig    `yaml:"log"`
}

// RedactConfig lists the headers and JSON body paths to redact.
type RedactConfig struct {
	RequestHeaders   []string `yaml:"request_headers"`
	RequestBodyKeys  []string `yaml:"request_body_keys"`
	ResponseBodyKeys []string `yaml:"response_body_keys"`
}

// LogConfig configures diagnostics of the command.
type LogConfig struct {
	// Level is a zerolog level name.
	Level string `yaml:"level"`

	// File, if set, also writes logs to a rotated file.
	File string `yaml:"file"`
}

// LoadConfig loads configuration from a YAML file at path, applies default
// values and environment overrides, then validates the result. An empty path
// yields the defaults.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(&cfg)

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills in unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Level == "" {
		cfg.Level = "body"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// applyEnvOverrides applies the NETDUMP_* variables. They take precedence
// over the file.
func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("NETDUMP_LEVEL"); val != "" {
		cfg.Level = val
	}
	if val := os.Getenv("NETDUMP_DIR"); val != "" {
		cfg.Dir = val
	}
	if val := os.Getenv("NETDUMP_MAX_SIZE"); val != "" {
		size, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid NETDUMP_MAX_SIZE %q: %w", val, err)
		}
		cfg.MaxSize = size
	}
	return nil
}

// Validate checks cfg for values the service would reject.
func Validate(cfg *Config) error {
	if _, err := netdump.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("level: %w", err)
	}
	if cfg.MaxSize < 0 {
		return fmt.Errorf("max_size must not be negative, got %d", cfg.MaxSize)
	}
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Options converts the configuration into service options.
func (cfg *Config) Options() (*netdump.Options, error) {
	level, err := netdump.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return &netdump.Options{
		Level:                   level,
		Dir:                     cfg.Dir,
		MaxSize:                 cfg.MaxSize,
		SyncWrites:              cfg.SyncWrites,
		RedactRequestHeaderKeys: cfg.Redact.RequestHeaders,
		RedactRequestBodyKeys:   cfg.Redact.RequestBodyKeys,
		RedactResponseBodyKeys:  cfg.Redact.ResponseBodyKeys,
	}, nil
}
