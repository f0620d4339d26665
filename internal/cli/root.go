package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath     string
	configPath string
	serverURL  string
)

var rootCmd = &cobra.Command{
	Use:   "splitgoat",
	Short: "splitgoat - a self-hosted A/B experiment server",
	Long: `splitgoat assigns users to experiment variants deterministically,
records conversions and reports per-variant results.

Running without a subcommand starts the server (same as 'splitgoat serve').`,
	SilenceUsage: true,
	RunE:         runServe, // Default action is to start server
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("SG_DB_PATH", "./splitgoat.db"), "SQLite database path for the conversion mirror")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", getEnvOrDefault("SG_CONFIG", ""), "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", getEnvOrDefault("SG_SERVER_URL", "http://localhost:8080"), "URL of a running splitgoat server")

	rootCmd.Flags().IntVarP(&port, "port", "p", getEnvIntOrDefault("SG_PORT", 0), "port to listen on (default from config, 8080)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
