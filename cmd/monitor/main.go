// Package main is the monitoring scanner. By default it runs one scan pass
// over the compiled locations and exits, which suits an external scheduler
// (cron, EventBridge). With MONITOR_SELF_SCHEDULE=true it stays up and
// rescans on the configured interval.
//
// Location IDs passed as arguments restrict the scan to those locations.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"rainbowwatch/internal/alerts"
	"rainbowwatch/internal/cache"
	"rainbowwatch/internal/config"
	"rainbowwatch/internal/db"
	"rainbowwatch/internal/monitor"
	"rainbowwatch/internal/queue"
	"rainbowwatch/internal/rainbow"
	"rainbowwatch/internal/weather"
)

func main() {
	if err := run(); err != nil && err != context.Canceled {
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
	logger.Info("monitor starting",
		"environment", cfg.Environment,
		"self_schedule", cfg.Monitor.SelfSchedule,
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

	scanner := monitor.NewScanner(monitor.ScannerConfig{
		Evaluator:   rainbow.NewEvaluator(weather.NewHTTPGateway(cfg.Weather)),
		Throttle:    store,
		Dispatcher:  dispatcher,
		Candidates:  devices,
		ThrottleTTL: cfg.Monitor.ThrottleTTL,
		Logger:      logger,
	})

	if cfg.Monitor.SelfSchedule {
		return scanner.Run(ctx, cfg.Monitor.Interval)
	}

	result, err := scanner.RunScan(ctx, os.Args[1:])
	if err != nil {
		return fmt.Errorf("scan pass: %w", err)
	}
	logger.Info("scan pass finished",
		"scanned", result.Scanned,
		"favorable", result.Favorable,
		"alerts_sent", result.AlertsSent,
	)
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("service", cfg.Service+"-monitor")
	slog.SetDefault(logger)
	return logger
}
