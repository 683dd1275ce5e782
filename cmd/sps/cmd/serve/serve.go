package serve

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"speaker-split/internal/api/server"
	v1routes "speaker-split/internal/api/v1/routes"
	"speaker-split/internal/api/v1/services"
	"speaker-split/internal/app/capability"
	"speaker-split/internal/app/credits"
	"speaker-split/internal/app/gate"
	"speaker-split/internal/app/jobs"
	"speaker-split/internal/app/relay"
	"speaker-split/internal/app/repository/pg"
	"speaker-split/internal/app/repository/sqlite"
	"speaker-split/internal/config"
)

// Cmd represents the serve command
var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the speaker-split API server",
	Long: `Starts the HTTP server: streaming process endpoints, job polling,
credit ledger and upload endpoints, plus health and metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var handler slog.Handler
	if cfg.Server.Environment == "production" {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	logger := slog.New(handler)

	plans := config.DefaultPlans()
	if cfg.Plans.File != "" {
		plans, err = config.LoadPlans(cfg.Plans.File)
		if err != nil {
			return fmt.Errorf("load plans: %w", err)
		}
	}

	jobStore, ledgerStore, closeStores, err := buildStores(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	proUsers := make(map[string]bool, len(cfg.Plans.ProUsers))
	for _, u := range cfg.Plans.ProUsers {
		proUsers[u] = true
	}
	creditsSvc := credits.NewService(ledgerStore, plans, &credits.StaticTierResolver{ProUsers: proUsers}, logger)

	streamRelay := relay.New(relay.Options{
		BackendURL:           cfg.Backend.URL,
		APIKey:               cfg.Backend.APIKey,
		Mode:                 relay.Mode(cfg.Backend.Mode),
		FallbackSimulation:   cfg.Backend.FallbackSimulation,
		FallbackCapabilities: parseFallbackCapabilities(cfg.Backend.FallbackCapabilities, logger),
		StepInterval:         cfg.Backend.SimulationInterval,
		StreamBounds:         streamBounds(cfg.Backend, logger),
	}, jobStore, logger, relay.NewMetrics(registry))

	quotaGate := gate.New(creditsSvc, streamRelay, logger, gate.NewMetrics(registry))

	var storage services.StorageService
	storage, err = services.NewMinioStorageService(cfg.Minio)
	if err != nil {
		logger.Warn("object storage unavailable, upload endpoint disabled", "error", err)
		storage = nil
	}

	container := &v1routes.ServiceContainer{
		Jobs:    jobStore,
		Credits: creditsSvc,
		Gate:    quotaGate,
		Plans:   plans,
		Storage: storage,
		Logger:  logger,
	}

	srv := server.NewServer(cfg, container, registry, logger)
	if err := srv.Start(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// buildStores assembles the job and ledger stores for the configured driver.
// Jobs stay host-local (sqlite or memory); only the ledger moves to Postgres,
// since it is the one record that must survive host replacement.
func buildStores(cfg *config.Config, logger *slog.Logger) (jobs.Store, credits.Store, func(), error) {
	closer := func() {}

	var jobStore jobs.Store
	var ledgerStore credits.Store

	switch cfg.Store.Driver {
	case "memory":
		jobStore = jobs.NewMemoryStore()
		ledgerStore = credits.NewMemoryStore()

	case "sqlite":
		db, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		closer = func() { db.Close() }
		jobStore = sqlite.NewJobStore(db)
		ledgerStore = sqlite.NewLedgerStore(db)

	case "postgres":
		db, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		pgdb, err := pg.Open(cfg.Store.PostgresURL)
		if err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		closer = func() { db.Close(); pgdb.Close() }
		jobStore = sqlite.NewJobStore(db)
		ledgerStore = pg.NewLedgerStore(pgdb)
	}

	if cfg.Store.RedisURL != "" {
		cached, err := jobs.NewCachedStore(jobStore, cfg.Store.RedisURL, cfg.Store.SnapshotTTL, logger)
		if err != nil {
			logger.Warn("redis snapshot cache unavailable", "error", err)
		} else if err := cached.Ping(context.Background()); err != nil {
			logger.Warn("redis snapshot cache unreachable", "error", err)
		} else {
			jobStore = cached
		}
	}

	return jobStore, ledgerStore, closer, nil
}

// streamBounds merges the blanket BACKEND_TIMEOUT with per-capability
// BACKEND_STREAM_TIMEOUTS entries; per-capability values win.
func streamBounds(cfg config.BackendConfig, logger *slog.Logger) map[capability.Capability]time.Duration {
	if cfg.Timeout <= 0 && len(cfg.StreamTimeouts) == 0 {
		return nil
	}
	out := make(map[capability.Capability]time.Duration)
	if cfg.Timeout > 0 {
		for _, c := range capability.All() {
			out[c] = cfg.Timeout
		}
	}
	for name, d := range cfg.StreamTimeouts {
		c, err := capability.Parse(name)
		if err != nil {
			logger.Warn("ignoring stream timeout for unknown capability", "name", name)
			continue
		}
		out[c] = d
	}
	return out
}

func parseFallbackCapabilities(names []string, logger *slog.Logger) map[capability.Capability]bool {
	if len(names) == 0 {
		return nil
	}
	out := make(map[capability.Capability]bool, len(names))
	for _, name := range names {
		c, err := capability.Parse(name)
		if err != nil {
			logger.Warn("ignoring unknown fallback capability", "name", name)
			continue
		}
		out[c] = true
	}
	return out
}
