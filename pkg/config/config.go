// Package config loads the registry server configuration from YAML with
// sensible defaults for every field a deployment leaves out.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full registry server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	NATS      NATSConfig      `yaml:"nats"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Events    EventsConfig    `yaml:"events"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Integrity IntegrityConfig `yaml:"integrity"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen          string   `yaml:"listen"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the relational store. Driver is "postgres" or
// "sqlite"; DSN is driver-specific.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig points at the shared counter/cache store. An empty Addr
// disables Redis; the server then falls back to in-process equivalents.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NATSConfig points at the message bus. An empty URL disables publishing;
// events stay durable in the log and can be replayed later.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// CacheConfig tunes the asset read cache.
type CacheConfig struct {
	TTL     Duration `yaml:"ttl"`
	MaxSize int      `yaml:"max_size"`
}

// RateLimitConfig derives the token bucket from requests-per-window.
type RateLimitConfig struct {
	Enabled     bool     `yaml:"enabled"`
	MaxRequests int      `yaml:"max_requests"`
	Window      Duration `yaml:"window"`
}

// EventsConfig tunes the outbox dispatcher.
type EventsConfig struct {
	DispatchEnabled bool     `yaml:"dispatch_enabled"`
	PollInterval    Duration `yaml:"poll_interval"`
	BatchSize       int      `yaml:"batch_size"`
}

// LifecycleConfig carries the status machine policy knobs.
type LifecycleConfig struct {
	DisallowDeprecatedToDeleted bool `yaml:"disallow_deprecated_to_deleted"`
}

// IntegrityConfig maps trusted signing key IDs to base64-encoded ed25519
// public keys. Signed registrations are verified against this set.
type IntegrityConfig struct {
	Keys map[string]string `yaml:"keys"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":8080",
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "registry.db",
		},
		Cache: CacheConfig{
			TTL:     Duration(5 * time.Minute),
			MaxSize: 10000,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			MaxRequests: 100,
			Window:      Duration(time.Minute),
		},
		Events: EventsConfig{
			DispatchEnabled: true,
			PollInterval:    Duration(2 * time.Second),
			BatchSize:       100,
		},
		NATS: NATSConfig{
			SubjectPrefix: "registry.events",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration from a YAML file layered over the
// defaults. A missing file is not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxRequests <= 0 {
			return fmt.Errorf("rate_limit.max_requests must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate_limit.window must be positive")
		}
	}
	return nil
}
