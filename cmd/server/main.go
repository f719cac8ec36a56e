package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/leetboard/statsync/internal/api"
	"github.com/leetboard/statsync/internal/config"
	"github.com/leetboard/statsync/internal/database"
	"github.com/leetboard/statsync/internal/leetcode"
	"github.com/leetboard/statsync/internal/logging"
	"github.com/leetboard/statsync/internal/metrics"
	"github.com/leetboard/statsync/internal/models"
	"github.com/leetboard/statsync/internal/retry"
	"github.com/leetboard/statsync/internal/scheduler"
	"github.com/leetboard/statsync/internal/server"
	"github.com/leetboard/statsync/internal/syncer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting statsync")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	accounts, runs, closeStore, err := openStore(ctx, cfg.Database, cfg.Sync.Workers, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	seedRoster(ctx, accounts, cfg.Roster, logger)

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	client := leetcode.NewClient(leetcode.Config{
		Endpoint:      cfg.LeetCode.Endpoint,
		UserAgent:     cfg.LeetCode.UserAgent,
		Timeout:       cfg.LeetCode.Timeout,
		RatePerSecond: cfg.LeetCode.RatePerSecond,
	}, logger)

	retryPolicy := retry.DefaultPolicy()
	retryPolicy.MaxRetries = cfg.Retry.TransientRetries
	retryPolicy.InitialBackoff = cfg.Retry.Backoff

	synchronizer := syncer.NewSynchronizer(accounts, client, syncer.Config{
		Workers: cfg.Sync.Workers,
		Window:  cfg.Sync.Window(),
		Retry:   retryPolicy,
	}, logger)
	scanner := syncer.NewScanner(accounts, cfg.Sync.Window(), logger)

	schedule, err := scheduler.ParseSchedule(cfg.Sync.Schedule)
	if err != nil {
		logger.Error("invalid sync schedule", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(synchronizer, scanner, scheduler.Options{
		StartupDelay: cfg.Sync.StartupDelay,
		Schedule:     schedule,
		ScheduleSpec: cfg.Sync.Schedule,
		RunRetention: cfg.Sync.RunRetention,
		Runs:         runs,
		Recorder:     collector,
	}, logger)

	if cfg.Sync.Autostart {
		sched.Start(ctx)
	} else {
		logger.Info("sync autostart disabled, waiting for POST /api/automation")
	}

	mux := http.NewServeMux()
	handler := api.NewHandler(ctx, sched, synchronizer, accounts, runs, logger)
	api.SetupRoutes(mux, handler, collector.Handler())

	srv := server.New(ctx, cfg.Server, logger, server.Middleware(collector.InstrumentHandler(mux), logger))

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("statsync started successfully")
	logger.Info("API available", "url", fmt.Sprintf("http://localhost:%s", cfg.Server.Port))

	waitForSignal(logger)

	logger.Info("shutting down")
	sched.Stop()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	cancel()
	logger.Info("shutdown complete")
}

// openStore returns the roster and run repositories for the configured driver.
func openStore(ctx context.Context, cfg config.DatabaseConfig, syncWorkers int, logger *slog.Logger) (models.TrackedAccountRepository, models.SyncRunRepository, func(), error) {
	logger.Info("database configuration", "config", cfg.Describe())

	if cfg.Driver == config.DriverMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		store := database.NewMemoryStore()
		return store, store, func() {}, nil
	}

	dbURL, err := cfg.ConnectionString()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build database URL: %w", err)
	}

	dbCfg := database.DefaultConfig()
	dbCfg.URL = dbURL
	dbCfg.MaxConnections = cfg.MaxOpenConns
	dbCfg.MaxIdleConnections = cfg.MaxIdleConns
	dbCfg.SyncWorkers = syncWorkers

	logger.Info("connecting to database")
	db, err := database.Connect(ctx, dbCfg)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("database connected", "stats", database.Stats(db))

	// non-fatal so the control surface still comes up for diagnosis
	if err := database.RunMigrations(ctx, db, cfg.MigrationsDir, logger); err != nil {
		logger.Warn("failed to run migrations, continuing anyway", "error", err)
	}

	closeFn := func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}
	return database.NewPostgresTrackedAccountRepository(db), database.NewSyncRunRepository(db), closeFn, nil
}

// seedRoster registers configured accounts. Existing handles keep their id and snapshot.
func seedRoster(ctx context.Context, repo models.TrackedAccountRepository, entries []config.RosterEntry, logger *slog.Logger) {
	if len(entries) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	seeded := 0
	for _, entry := range entries {
		account := &models.TrackedAccount{
			Name:   strings.TrimSpace(entry.Name),
			Handle: strings.TrimSpace(entry.Handle),
		}
		if account.Name == "" {
			account.Name = account.Handle
		}
		if err := repo.Upsert(ctx, account); err != nil {
			logger.Warn("failed to seed tracked account", "handle", account.Handle, "error", err)
			continue
		}
		seeded++
	}
	logger.Info("roster seeded", "configured", len(entries), "seeded", seeded)
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
	close(c)
}
