// Package main is the entry point for the rainbowwatch API server.
//
// It loads configuration, opens the database pool and Redis cache, wires the
// repositories into the HTTP handlers, and serves until SIGINT/SIGTERM with
// a graceful drain.
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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"rainbowwatch/internal/alerts"
	"rainbowwatch/internal/api/handlers"
	"rainbowwatch/internal/cache"
	"rainbowwatch/internal/config"
	"rainbowwatch/internal/core"
	"rainbowwatch/internal/db"
	"rainbowwatch/internal/geo"
	"rainbowwatch/internal/queue"
)

const shutdownGrace = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg)
	logger.Info("rainbowwatch API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}
	defer pool.Close()

	store := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	sqsClient, err := queue.NewSQSClient(ctx, cfg.AWS)
	if err != nil {
		return fmt.Errorf("creating SQS client: %w", err)
	}
	producer := queue.NewProducer(sqsClient, cfg.AWS, logger)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	metrics := alerts.NewCloudWatchDeliveryMetrics(cloudwatch.NewFromConfig(awsCfg), logger)

	sightings := db.NewSightingRepository(pool)
	samples := db.NewWeatherSampleRepository(pool)
	radar := db.NewRadarSampleRepository(pool)
	notifications := db.NewNotificationRepository(pool)
	devices := db.NewDeviceRepository(pool)
	prefs := db.NewPreferencesRepository(pool)

	dispatcher := alerts.NewDispatcher(alerts.DispatcherConfig{
		Devices:  devices,
		Prefs:    prefs,
		Records:  notifications,
		Location: sightings,
		Throttle: store,
		Deferred: producer,
		Senders:  alerts.NewSenderRegistry(cfg.Push),
		Metrics:  metrics,
		Logger:   logger,
	})

	queries := geo.NewQueryEngine(sightings, store, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = []core.HealthProbe{
		core.ProbeFunc{ProbeName: "database", Fn: pool.Ping},
		core.ProbeFunc{ProbeName: "cache", Fn: store.Ping},
	}

	srv.MountRoutes(
		handlers.NewMapHandler(queries),
		handlers.NewWeatherHandler(sightings, samples, radar),
		handlers.NewPreferencesHandler(prefs),
		handlers.NewNotificationsHandler(notifications),
		handlers.NewInternalHandler(sightings, producer, dispatcher, srv.Validator),
	)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, draining")
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("draining http server: %w", err)
	}
	return srv.Shutdown(drainCtx)
}

// newLogger builds the process-wide JSON logger and installs it as the slog
// default so library fallbacks share the same sink.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("service", cfg.Service)
	slog.SetDefault(logger)
	return logger
}
