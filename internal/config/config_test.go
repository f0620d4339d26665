package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/headline-goat/splitgoat/internal/config"
	"github.com/headline-goat/splitgoat/internal/experiment"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("got port %d, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DSN != "./splitgoat.db" {
		t.Errorf("got storage %+v, want sqlite ./splitgoat.db", cfg.Storage)
	}
	if cfg.Assignments.Backend != "memory" {
		t.Errorf("got backend %s, want memory", cfg.Assignments.Backend)
	}
	if cfg.Mirror.Timeout != 10*time.Second {
		t.Errorf("got mirror timeout %v, want 10s", cfg.Mirror.Timeout)
	}
}

func TestLoad_FileWithSeeds(t *testing.T) {
	path := writeConfig(t, `
environment: production
server:
  port: 9000
storage:
  driver: none
mirror:
  timeout: 3s
experiments:
  - id: checkout
    name: Checkout button
    variants: [control, variant_a, variant_b]
    traffic_allocation:
      control: 50
      variant_a: 25
      variant_b: 25
    status: paused
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Environment != "production" {
		t.Errorf("got environment %s, want production", cfg.Environment)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("got port %d, want 9000", cfg.Server.Port)
	}
	if cfg.Mirror.Timeout != 3*time.Second {
		t.Errorf("got timeout %v, want 3s", cfg.Mirror.Timeout)
	}
	if len(cfg.Experiments) != 1 {
		t.Fatalf("got %d experiments, want 1", len(cfg.Experiments))
	}

	seed := cfg.Experiments[0]
	if seed.ID != "checkout" || seed.Name != "Checkout button" {
		t.Errorf("got seed %s/%s, want checkout/Checkout button", seed.ID, seed.Name)
	}
	if len(seed.Variants) != 3 || seed.Variants[2] != experiment.VariantB {
		t.Errorf("got variants %v", seed.Variants)
	}
	if seed.TrafficAllocation[experiment.VariantA] != 25 {
		t.Errorf("got variant_a allocation %d, want 25", seed.TrafficAllocation[experiment.VariantA])
	}
	if seed.Status != experiment.StatusPaused {
		t.Errorf("got status %s, want paused", seed.Status)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv("SG_SERVER_PORT", "9100")
	t.Setenv("SG_ASSIGNMENTS_BACKEND", "redis")
	t.Setenv("SG_ASSIGNMENTS_REDIS_ADDR", "localhost:6379")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("got port %d, want 9100 from env", cfg.Server.Port)
	}
	if cfg.Assignments.Backend != "redis" || cfg.Assignments.RedisAddr != "localhost:6379" {
		t.Errorf("got assignments %+v", cfg.Assignments)
	}
}

func TestLoad_RateBurstDefault(t *testing.T) {
	path := writeConfig(t, `
server:
  rate_limit: 25
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Server.RateLimit != 25 || cfg.Server.RateBurst != 50 {
		t.Errorf("got rate %v burst %d, want 25 and 50", cfg.Server.RateLimit, cfg.Server.RateBurst)
	}
}

func TestLoad_DuplicateSeedVariants(t *testing.T) {
	path := writeConfig(t, `
experiments:
  - id: checkout
    variants: [variant_a, variant_a]
`)

	if _, err := config.Load(path); err == nil {
		t.Fatal("expected error for duplicate seed variants")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad port", func(c *config.Config) { c.Server.Port = 70000 }},
		{"negative rate limit", func(c *config.Config) { c.Server.RateLimit = -1 }},
		{"bad driver", func(c *config.Config) { c.Storage.Driver = "mongodb" }},
		{"postgres without dsn", func(c *config.Config) { c.Storage.Driver = "postgres"; c.Storage.DSN = "" }},
		{"redis without addr", func(c *config.Config) { c.Assignments.Backend = "redis" }},
		{"bad backend", func(c *config.Config) { c.Assignments.Backend = "memcached" }},
		{"seed without id", func(c *config.Config) { c.Experiments = []config.ExperimentSeed{{}} }},
		{"duplicate seed", func(c *config.Config) {
			c.Experiments = []config.ExperimentSeed{{ID: "a"}, {ID: "a"}}
		}},
		{"duplicate seed variants", func(c *config.Config) {
			c.Experiments = []config.ExperimentSeed{{ID: "a", Config: experiment.Config{
				Variants: []experiment.Variant{experiment.VariantA, experiment.VariantA},
			}}}
		}},
		{"empty seed variants", func(c *config.Config) {
			c.Experiments = []config.ExperimentSeed{{ID: "a", Config: experiment.Config{Variants: []experiment.Variant{}}}}
		}},
		{"unknown allocation key", func(c *config.Config) {
			c.Experiments = []config.ExperimentSeed{{ID: "a", Config: experiment.Config{
				TrafficAllocation: map[experiment.Variant]int{"variant_z": 10},
			}}}
		}},
		{"unknown variant", func(c *config.Config) {
			c.Experiments = []config.ExperimentSeed{{ID: "a", Config: experiment.Config{Variants: []experiment.Variant{"variant_z"}}}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := config.Default().Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}
