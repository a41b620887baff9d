// Command server starts the SentinelPay transaction monitor.
//
// Usage:
//
//	go run ./cmd/server [flags]
//
// Flags:
//
//	-config  Path to a YAML config file (default: config.yaml, optional)
//	-port    HTTP port to listen on, overrides config and PORT
//	-seed    Path to a seed data JSON file to load on startup, overrides config
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"sentinelpay/monitor/internal/analysis"
	"sentinelpay/monitor/internal/api"
	"sentinelpay/monitor/internal/config"
	"sentinelpay/monitor/internal/domain"
	"sentinelpay/monitor/internal/geo"
	"sentinelpay/monitor/internal/logging"
	"sentinelpay/monitor/internal/pipeline"
	"sentinelpay/monitor/internal/realtime"
	"sentinelpay/monitor/internal/remote"
	"sentinelpay/monitor/internal/scheduler"
	"sentinelpay/monitor/internal/scoring"
	"sentinelpay/monitor/internal/store"
	"sentinelpay/monitor/internal/stream"
	"sentinelpay/monitor/internal/traces"
	"sentinelpay/monitor/internal/webhook"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config file")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	seedFile := flag.String("seed", "", "path to seed data JSON file (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *seedFile != "" {
		cfg.SeedFile = *seedFile
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := traces.Init(ctx, cfg.Tracing.OTLPEndpoint, version, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	// ── Storage ───────────────────────────────────────────────────────────────
	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	var sink store.Repository = repo
	if cfg.Feed.RedisAddr != "" {
		feed, err := store.NewRedisFeed(ctx, cfg.Feed.RedisAddr, cfg.Feed.Limit)
		if err != nil {
			// The mirror is optional; the primary store still serves the feed.
			logger.Warn("redis feed mirror disabled", "addr", cfg.Feed.RedisAddr, "error", err)
		} else {
			defer func() { _ = feed.Close() }()
			sink = store.WithMirrors(repo, feed)
			logger.Info("redis feed mirror enabled", "addr", cfg.Feed.RedisAddr)
		}
	}

	// ── Geo ───────────────────────────────────────────────────────────────────
	var classifier *geo.Classifier
	if cfg.Geo.CityDB != "" {
		mm, err := geo.OpenMaxMind(cfg.Geo.CityDB)
		if err != nil {
			logger.Warn("geoip lookups disabled", "db", cfg.Geo.CityDB, "error", err)
		} else {
			defer func() { _ = mm.Close() }()
			classifier = geo.NewClassifier(mm, cfg.Geo.HomeCountry)
		}
	}

	// ── Scoring ───────────────────────────────────────────────────────────────
	engine := scoring.New(scoring.NewTracker())
	adapter := remote.New(engine,
		remote.WithEndpoint(cfg.Model.Endpoint),
		remote.WithTimeout(cfg.Model.Timeout),
	)
	settings := analysis.NewSettings(cfg.Model.APIKey)
	coord := analysis.NewCoordinator(engine, adapter, settings)

	// ── Fan-out ───────────────────────────────────────────────────────────────
	hub := realtime.NewHub()
	go hub.Run(ctx)

	hooks := store.NewWebhooks()
	notifier := webhook.New(hooks)
	pipe := pipeline.New(coord, sink, hub, notifier)

	// ── Seed data ─────────────────────────────────────────────────────────────
	if err := loadSeedData(ctx, pipe, cfg.SeedFile); err != nil {
		// Non-fatal: the monitor works fine with a cold baseline.
		logger.Warn("seed data not loaded", "file", cfg.SeedFile, "reason", err.Error())
	}

	// ── Background stream ─────────────────────────────────────────────────────
	driver := stream.NewDriver(
		stream.NewSimulator(uint64(time.Now().UnixNano())),
		pipe,
		cfg.Stream.Interval,
		hub.BroadcastStreamState,
	)
	if cfg.Stream.Enabled {
		driver.Start(ctx)
	}

	// ── Housekeeping ──────────────────────────────────────────────────────────
	sched := scheduler.New(ctx, repo, cfg.Retention.MaxAge, coord.Baseline)
	if err := sched.RegisterAll(cfg.Retention.Cron, scheduler.DefaultSnapshotCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	// ── HTTP ──────────────────────────────────────────────────────────────────
	handler := api.NewHandler(api.Deps{
		Submitter: pipe,
		Feed:      repo,
		Baseline:  coord,
		Settings:  settings,
		Stream:    driver,
		Webhooks:  hooks,
		Geo:       classifier,
		Realtime:  hub,
		Logger:    logger,
		BaseCtx:   ctx,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler, hub.HandleWebSocket),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"port", cfg.Server.Port,
			"storage", cfg.Storage.Driver,
			"stream", cfg.Stream.Enabled,
			"remote_model", settings.Configured(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	driver.Stop()
	notifier.Wait()
	logger.Info("server stopped")
	return nil
}

func openRepository(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		s, err := store.NewSQLite(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, nil
	case config.DriverPostgres:
		s, err := store.NewPostgres(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	default:
		return store.NewMemory(), nil
	}
}

// loadSeedData reads a JSON array of raw transactions and runs each one
// through the pipeline as stream traffic, so the rolling baseline starts warm.
func loadSeedData(ctx context.Context, p *pipeline.Pipeline, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	var txs []domain.Transaction
	if err := json.Unmarshal(data, &txs); err != nil {
		return fmt.Errorf("parse error: %w", err)
	}

	// Chronological order, matching what the baseline would have seen live.
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].Timestamp.Before(txs[j].Timestamp)
	})

	var loaded, skipped int
	for i := range txs {
		if err := txs[i].Validate(); err != nil {
			slog.Debug("seed transaction skipped", "index", i, "reason", err)
			skipped++
			continue
		}
		if _, err := p.Submit(ctx, domain.OriginStream, &txs[i]); err != nil {
			skipped++
			continue
		}
		loaded++
	}

	slog.Info("seed data loaded", "file", filePath, "loaded", loaded, "skipped", skipped)
	return nil
}
