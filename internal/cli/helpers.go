package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/headline-goat/splitgoat/internal/client"
	"github.com/headline-goat/splitgoat/internal/config"
	"github.com/headline-goat/splitgoat/internal/store"
)

// loadConfig reads --config and lets --db replace the default SQLite path.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Driver == "sqlite" && cfg.Storage.DSN == config.DefaultSQLitePath {
		cfg.Storage.DSN = dbPath
	}
	return cfg, nil
}

// withStore opens the durable mirror, executes the function, and handles
// cleanup.
func withStore(ctx context.Context, fn func(store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Driver == "none" {
		return fmt.Errorf("storage driver is none: no conversions are persisted")
	}

	s, err := store.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer s.Close()

	return fn(s)
}

func newClient() *client.Client {
	return client.New(serverURL)
}

// tokenFilePath returns the path to the token file
func tokenFilePath(cfg *config.Config) string {
	if cfg != nil && cfg.Server.TokenFile != "" {
		return cfg.Server.TokenFile
	}
	// Store token file alongside the database
	return filepath.Join(filepath.Dir(dbPath), ".splitgoat-token")
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
