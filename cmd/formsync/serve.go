package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/strideworks/formsync/internal/config"
	"github.com/strideworks/formsync/internal/inference"
	"github.com/strideworks/formsync/internal/live"
	"github.com/strideworks/formsync/internal/ratelimit"
	"github.com/strideworks/formsync/internal/room"
	"github.com/strideworks/formsync/internal/safety"
	"github.com/strideworks/formsync/internal/server"
	"github.com/strideworks/formsync/internal/storage"
	"github.com/strideworks/formsync/internal/telemetry"
	"github.com/strideworks/formsync/migrations"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the FormSync server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("formsync starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry (no-op when OTEL_EXPORTER_OTLP_ENDPOINT is empty).
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database.
	db, err := storage.New(ctx, cfg.DatabaseURL, cfg.NotifyURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close(context.Background())

	// Run migrations (dev mode only; production applies them out of band).
	// RunMigrations tracks applied files in schema_migrations and skips
	// duplicates, so errors here indicate real failures.
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		logger.Warn("migrations failed", "error", err)
	}

	// Inference gateway. "noop" disables the upstream (local development
	// without the pose-estimation service).
	var infClient inference.Client
	if cfg.InferenceURL == "noop" {
		infClient = inference.NoopClient{}
		logger.Info("inference: noop (live analysis returns empty verdicts)")
	} else {
		infClient = inference.NewHTTPClient(cfg.InferenceURL, cfg.InferenceTimeout)
		logger.Info("inference: http", "url", cfg.InferenceURL, "timeout", cfg.InferenceTimeout)
	}

	// Domain services. The coordinator and monitor broadcast over Postgres
	// NOTIFY; the broker on the other side fans those out to SSE clients.
	rooms := room.New(db, db, storage.ChannelSessions, logger)
	monitor := safety.New(db, db, storage.ChannelIncidents, logger)

	// Live analysis registry and websocket handler.
	registry := live.NewRegistry(infClient, logger)
	liveHandler := live.NewHandler(registry, cfg.MaxFrameBytes, logger)

	// SSE broker (requires LISTEN/NOTIFY connection).
	var broker *server.Broker
	if db.HasNotifyConn() {
		broker = server.NewBroker(db, logger)
		go broker.Start(ctx)
	} else {
		logger.Info("SSE broker: disabled (no notify connection)")
	}

	// Rate limiter: Redis-backed when REDIS_URL is set so that replicas
	// share one budget, otherwise an in-process token bucket.
	limiter, err := newLimiter(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = limiter.Close() }()

	// Session reaper: fails sessions abandoned past the timeout.
	reaper, err := room.NewReaper(rooms, cfg.SessionTimeout, cfg.ReaperSchedule, logger)
	if err != nil {
		return fmt.Errorf("reaper: %w", err)
	}
	reaper.Start()
	logger.Info("session reaper started", "schedule", cfg.ReaperSchedule, "timeout", cfg.SessionTimeout)

	srv := server.New(server.Config{
		Rooms:               rooms,
		Safety:              monitor,
		Inference:           infClient,
		Registry:            registry,
		LiveHandler:         liveHandler,
		Broker:              broker,
		Limiter:             limiter,
		DB:                  db,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	// Start HTTP server in background.
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Graceful shutdown. Each phase gets its own timeout so early completion
	// doesn't steal budget from later phases. Order: (1) stop accepting new
	// HTTP requests and drain in-flight ones (websocket sessions close with
	// them), (2) stop the reaper and wait for a running sweep to finish.
	logger.Info("formsync shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.Shutdown(httpCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	httpCancel()

	reaper.Stop()

	logger.Info("formsync stopped")
	return nil
}

func newLimiter(cfg config.Config, logger *slog.Logger) (ratelimit.Limiter, error) {
	if !cfg.RateLimitEnabled {
		logger.Info("rate limiting: disabled")
		return ratelimit.NoopLimiter{}, nil
	}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		logger.Info("rate limiting: redis (shared token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
		return ratelimit.NewRedisLimiter(redis.NewClient(opts), cfg.RateLimitRPS, cfg.RateLimitBurst), nil
	}
	logger.Info("rate limiting: memory (in-process token bucket)",
		"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	return ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst), nil
}
