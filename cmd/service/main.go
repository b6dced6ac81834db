// cmd/service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"skill-profiler/internal/api"
	"skill-profiler/internal/config"
	"skill-profiler/internal/githubapi"
	"skill-profiler/internal/intel"
	"skill-profiler/internal/queue"
	"skill-profiler/internal/scancache"
	"skill-profiler/internal/store"
	"skill-profiler/internal/syncer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully")

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Initialize database connection and run migrations
	dbpool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbpool.Close()
	logger.Info("Database connection established")

	if err := runMigrations(cfg.DBURL); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations applied successfully")

	// 5. Initialize application components
	db := store.New(dbpool)
	cache := scancache.New(cfg.ScanCacheSize)
	tracker := syncer.NewTracker(cfg.StaleAfter, logger)
	sync := syncer.NewSyncer(db, cache, logger)

	nlp := intel.NewNLPClient(cfg.NLPBaseURL, logger)
	pipeline, err := intel.NewPipeline(db, nlp, logger)
	if err != nil {
		return fmt.Errorf("failed to create intelligence pipeline: %w", err)
	}
	worker := queue.NewWorker(db, pipeline, logger)

	router := api.NewRouter(api.Config{
		Store:   db,
		Syncer:  sync,
		Tracker: tracker,
		Worker:  worker,
		ClientFor: func(token string) syncer.HostClient {
			return githubapi.NewClient(token, logger)
		},
		StaticToken:    cfg.GithubToken,
		MaxRepos:       cfg.MaxRepos,
		DeepScanBudget: cfg.DeepScanBudget,
	}, logger)

	// 6. Start the queue worker on its poll schedule
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.WorkerSchedule, func() {
		runCtx, runCancel := context.WithTimeout(ctx, cfg.HTTPTimeout*2)
		defer runCancel()
		result, err := worker.RunOnce(runCtx)
		if err != nil {
			logger.Error("Worker invocation failed", "error", err)
			return
		}
		if result.Processed {
			logger.Info("Worker processed job", "job_id", result.JobID, "status", result.Status)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule worker: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// 7. Serve HTTP until the shutdown signal arrives
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		logger.Info("Shutdown signal received. Exiting.")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	return nil
}

func runMigrations(dbURL string) error {
	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
