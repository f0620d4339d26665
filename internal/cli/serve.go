package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/headline-goat/splitgoat/internal/config"
	"github.com/headline-goat/splitgoat/internal/experiment"
	"github.com/headline-goat/splitgoat/internal/logger"
	"github.com/headline-goat/splitgoat/internal/metrics"
	"github.com/headline-goat/splitgoat/internal/redisstore"
	"github.com/headline-goat/splitgoat/internal/server"
	"github.com/headline-goat/splitgoat/internal/store"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the splitgoat HTTP server.

The server provides:
  - JSON API for experiments, variants, conversions and results
  - Browser helper at /sg.js
  - Dashboard for viewing results
  - Prometheus metrics at /metrics

Experiments auto-create on the first variant request, or can be seeded
from the config file.

Example:
  splitgoat serve --port 8080
  splitgoat serve --config splitgoat.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", getEnvIntOrDefault("SG_PORT", 0), "port to listen on (default from config, 8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	log, err := logger.New(cfg.Environment)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	assignments, closeAssignments, err := openAssignments(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAssignments()

	var mirror store.Store
	if cfg.Storage.Driver != "none" {
		mirror, err = store.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer mirror.Close()
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []experiment.Option{
		experiment.WithLogger(log),
		experiment.WithRecorder(metrics.New(promReg)),
		experiment.WithMirrorTimeout(cfg.Mirror.Timeout),
	}

	registry := experiment.NewRegistry()
	for _, seed := range cfg.Experiments {
		seedCfg := seed.Config
		registry.GetOrCreate(seed.ID, &seedCfg)
	}

	engine := experiment.NewEngine(registry, assignments, opts...)
	ledger := experiment.NewLedger(registry, assignments, mirrorOrNil(mirror), opts...)

	srv := server.New(server.Deps{
		Engine:    engine,
		Ledger:    ledger,
		Store:     mirror,
		Gatherer:  promReg,
		Logger:    log,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	}, cfg.Server.Port, tokenFilePath(cfg))

	log.Info("Starting splitgoat",
		zap.String("environment", cfg.Environment),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("assignments", cfg.Assignments.Backend),
		zap.Int("experiments", registry.Len()))
	printStartup(cmd.OutOrStdout(), cfg.Server.Port, srv.Token())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	// Drain pending mirror writes before the store closes
	ledger.Close()
	log.Info("Server stopped")
	return err
}

// openAssignments returns the sticky assignment store selected by config and
// a close func that is always safe to call.
func openAssignments(ctx context.Context, cfg *config.Config) (experiment.AssignmentStore, func(), error) {
	if cfg.Assignments.Backend != "redis" {
		return experiment.NewMemoryAssignments(), func() {}, nil
	}

	rs, err := redisstore.Dial(ctx, cfg.Assignments.RedisAddr, cfg.Assignments.KeyPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rs, func() { _ = rs.Close() }, nil
}

// mirrorOrNil keeps a nil store from becoming a non-nil Mirror.
func mirrorOrNil(s store.Store) experiment.Mirror {
	if s == nil {
		return nil
	}
	return s
}

func printStartup(w io.Writer, port int, token string) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Server running at http://localhost:%d\n", port)
	fmt.Fprintf(w, "Dashboard: http://localhost:%d/dashboard?token=%s\n", port, token)
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Add the browser helper to your site:")
	fmt.Fprintf(w, "  <script src=\"http://localhost:%d/sg.js\"></script>\n", port)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Then pick a variant and report conversions:")
	fmt.Fprintln(w, "  splitgoat.variant('hero').then(v => render(v));")
	fmt.Fprintln(w, "  splitgoat.convert('hero', 'signup');")
	fmt.Fprintln(w)
}
