// Package config loads splitgoat settings from an optional YAML file and
// SG_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/headline-goat/splitgoat/internal/experiment"
)

const (
	EnvPrefix         = "SG_"
	DefaultSQLitePath = "./splitgoat.db"
	maxConfigFileSize = 1024 * 1024 // 1MB
)

type Config struct {
	Environment string            `koanf:"environment"`
	Server      ServerConfig      `koanf:"server"`
	Storage     StorageConfig     `koanf:"storage"`
	Assignments AssignmentsConfig `koanf:"assignments"`
	Mirror      MirrorConfig      `koanf:"mirror"`
	Experiments []ExperimentSeed  `koanf:"experiments"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	TokenFile       string        `koanf:"token_file"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// RateLimit is requests per second per client IP on /api; 0 disables.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// StorageConfig selects the durable conversion mirror. Driver "none" keeps
// conversions in memory only.
type StorageConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

type AssignmentsConfig struct {
	Backend   string `koanf:"backend"` // "memory" or "redis"
	RedisAddr string `koanf:"redis_addr"`
	KeyPrefix string `koanf:"key_prefix"`
}

type MirrorConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// ExperimentSeed is created through get-or-create at startup.
type ExperimentSeed struct {
	ID                string          `koanf:"id"`
	experiment.Config `koanf:",squash"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads configPath (if non-empty) and then applies environment
// overrides. Environment variables split on the first underscore after the
// prefix:
//
//	SG_SERVER_PORT            -> server.port
//	SG_STORAGE_DSN            -> storage.dsn
//	SG_ASSIGNMENTS_REDIS_ADDR -> assignments.redis_addr
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		info, err := os.Stat(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.RateBurst == 0 && cfg.Server.RateLimit > 0 {
		cfg.Server.RateBurst = 2 * int(cfg.Server.RateLimit)
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" && cfg.Storage.Driver == "sqlite" {
		cfg.Storage.DSN = DefaultSQLitePath
	}
	if cfg.Assignments.Backend == "" {
		cfg.Assignments.Backend = "memory"
	}
	if cfg.Assignments.KeyPrefix == "" {
		cfg.Assignments.KeyPrefix = "splitgoat:"
	}
	if cfg.Mirror.Timeout == 0 {
		cfg.Mirror.Timeout = 10 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("server.rate_limit and server.rate_burst must not be negative")
	}

	switch c.Storage.Driver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("storage.driver must be sqlite, postgres or none, got %q", c.Storage.Driver)
	}
	if c.Storage.Driver != "none" && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required for driver %s", c.Storage.Driver)
	}

	switch c.Assignments.Backend {
	case "memory":
	case "redis":
		if c.Assignments.RedisAddr == "" {
			return fmt.Errorf("assignments.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("assignments.backend must be memory or redis, got %q", c.Assignments.Backend)
	}

	seen := make(map[string]bool)
	for i, seed := range c.Experiments {
		if seed.ID == "" {
			return fmt.Errorf("experiments[%d]: id is required", i)
		}
		if seen[seed.ID] {
			return fmt.Errorf("experiments[%d]: duplicate id %q", i, seed.ID)
		}
		seen[seed.ID] = true
		if err := seed.Config.Validate(); err != nil {
			return fmt.Errorf("experiments[%d]: %w", i, err)
		}
	}

	return nil
}
