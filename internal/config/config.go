// Package config loads and validates kanban.yml.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "kanban.yml"

// Config is the top-level kanban.yml configuration.
type Config struct {
	Listen   string         `yaml:"listen,omitempty"`   // default ":8080"
	Instance string         `yaml:"instance,omitempty"` // namespace shared by cooperating instances, default "kanban"
	RedisURL string         `yaml:"redis_url,omitempty"`
	Database DatabaseConfig `yaml:"database,omitempty"`
	Collab   CollabConfig   `yaml:"collab,omitempty"`
	LogLevel string         `yaml:"log_level,omitempty"` // debug, info, warn, error
}

// DatabaseConfig locates the SQLite database file.
type DatabaseConfig struct {
	Path string `yaml:"path,omitempty"`
}

// CollabConfig tunes the coordination TTLs. All values are seconds.
type CollabConfig struct {
	LockTTLSeconds     int `yaml:"lock_ttl_seconds,omitempty"`
	PresenceTTLSeconds int `yaml:"presence_ttl_seconds,omitempty"`
	TicketTTLSeconds   int `yaml:"ticket_ttl_seconds,omitempty"`
}

// LockTTL returns the entity lock TTL as a duration.
func (c *CollabConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// PresenceTTL returns the presence TTL as a duration.
func (c *CollabConfig) PresenceTTL() time.Duration {
	return time.Duration(c.PresenceTTLSeconds) * time.Second
}

// TicketTTL returns the connection ticket TTL as a duration.
func (c *CollabConfig) TicketTTL() time.Duration {
	return time.Duration(c.TicketTTLSeconds) * time.Second
}

// Load reads, defaults, env-overrides, and validates a config file. A
// missing file is not an error: the defaults describe a working
// single-instance setup against a local Redis.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Instance == "" {
		c.Instance = "kanban"
	}
	if c.RedisURL == "" {
		c.RedisURL = "redis://localhost:6379"
	}
	if c.Database.Path == "" {
		c.Database.Path = "kanban.db"
	}
	if c.Collab.LockTTLSeconds == 0 {
		c.Collab.LockTTLSeconds = 5
	}
	if c.Collab.PresenceTTLSeconds == 0 {
		c.Collab.PresenceTTLSeconds = 60
	}
	if c.Collab.TicketTTLSeconds == 0 {
		c.Collab.TicketTTLSeconds = 30
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// applyEnvOverrides lets deployments override file values without
// templating the file itself.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KANBAN_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("KANBAN_INSTANCE"); v != "" {
		c.Instance = v
	}
	if v := os.Getenv("KANBAN_REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("KANBAN_DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("KANBAN_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate performs strict validation on the configuration.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.Instance == "" {
		return fmt.Errorf("instance name must not be empty")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("redis_url must not be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Collab.LockTTLSeconds < 1 {
		return fmt.Errorf("collab.lock_ttl_seconds must be at least 1, got %d", c.Collab.LockTTLSeconds)
	}
	if c.Collab.PresenceTTLSeconds < 1 {
		return fmt.Errorf("collab.presence_ttl_seconds must be at least 1, got %d", c.Collab.PresenceTTLSeconds)
	}
	if c.Collab.TicketTTLSeconds < 1 {
		return fmt.Errorf("collab.ticket_ttl_seconds must be at least 1, got %d", c.Collab.TicketTTLSeconds)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	return nil
}
