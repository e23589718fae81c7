// Package config handles loading and validation of the markbridge
// configuration. Configuration comes from an optional YAML file with
// environment variables layered on top by the binary; this package owns the
// file format, the defaults, and the validation rules.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Operating modes of the HTTP front door.
const (
	ModeBuffered  = "buffered"
	ModeStreaming = "streaming"
)

// Duration wraps time.Duration so YAML values like "30s" parse naturally.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RateLimit bounds the /mcp request rate. Zero RequestsPerSecond disables
// limiting.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Log configures the structured logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full markbridge configuration.
type Config struct {
	// ListenAddr is the HTTP listen address, e.g. ":8080".
	ListenAddr string `yaml:"listen_addr"`
	// Mode selects buffered or streaming response delivery.
	Mode string `yaml:"mode"`
	// EngineTimeout bounds one engine run per exchange.
	EngineTimeout Duration `yaml:"engine_timeout"`
	// DrainInterval is the streaming-mode output poll cadence.
	DrainInterval Duration `yaml:"drain_interval"`
	// MaxBodyBytes caps the inbound /mcp request body.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
	// CachePath enables the sqlite conversion cache when non-empty.
	CachePath string `yaml:"cache_path"`

	RateLimit RateLimit `yaml:"rate_limit"`
	Log       Log       `yaml:"log"`
}

// Default returns the configuration used when no file or overrides are given.
func Default() Config {
	return Config{
		ListenAddr:    ":8080",
		Mode:          ModeBuffered,
		EngineTimeout: Duration(30 * time.Second),
		DrainInterval: Duration(10 * time.Millisecond),
		MaxBodyBytes:  4 * 1024 * 1024, // 4 MiB
		RateLimit:     RateLimit{Burst: 1},
		Log:           Log{Level: "info", Format: "text"},
	}
}

// LoadFile reads a YAML file from disk, parses it over the defaults, and
// validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document over the defaults and validates it. It is the
// canonical entry point for loading configurations.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks a Config for structural correctness. It returns the first
// validation error encountered, or nil if the config is valid.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config must not be nil")
	}
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if cfg.Mode != ModeBuffered && cfg.Mode != ModeStreaming {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeBuffered, ModeStreaming, cfg.Mode)
	}
	if cfg.EngineTimeout <= 0 {
		return fmt.Errorf("engine_timeout must be positive")
	}
	if cfg.DrainInterval <= 0 {
		return fmt.Errorf("drain_interval must be positive")
	}
	if cfg.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive")
	}
	if cfg.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit.requests_per_second must not be negative")
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit.burst must be positive when rate limiting is enabled")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", cfg.Log.Format)
	}
	return nil
}
