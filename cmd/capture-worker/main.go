// Package main is the capture worker: a long-lived SQS consumer that runs
// the weather capture pipeline for newly created sightings and delivers
// deferred notifications when they come due.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"golang.org/x/sync/errgroup"

	"rainbowwatch/internal/alerts"
	"rainbowwatch/internal/cache"
	"rainbowwatch/internal/capture"
	"rainbowwatch/internal/config"
	"rainbowwatch/internal/db"
	"rainbowwatch/internal/queue"
	"rainbowwatch/internal/types"
	"rainbowwatch/internal/weather"
)

// dueSlack is how early a deferred notification may fire instead of being
// re-enqueued for another delay hop.
const dueSlack = 30 * time.Second

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
	logger.Info("capture worker starting", "environment", cfg.Environment)

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

	coordinator := capture.NewCoordinator(capture.Config{
		Sightings: sightings,
		Samples:   samples,
		Radar:     radar,
		Gateway:   weather.NewHTTPGateway(cfg.Weather),
		Logger:    logger,
	})

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

	captureConsumer := queue.NewConsumer(sqsClient, cfg.AWS.CaptureQueueURL,
		captureHandler(coordinator, producer, logger), logger)
	scheduledConsumer := queue.NewConsumer(sqsClient, cfg.AWS.ScheduledQueueURL,
		scheduledHandler(dispatcher, producer, logger), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return captureConsumer.Run(gctx) })
	g.Go(func() error { return scheduledConsumer.Run(gctx) })
	return g.Wait()
}

// captureHandler decodes a capture job and runs the coordinator. Malformed
// payloads are permanent. Transient coordinator failures re-publish the job
// with an incremented retry count and a growing delay until the attempt
// budget runs out.
func captureHandler(coordinator *capture.Coordinator, producer *queue.Producer, logger *slog.Logger) queue.Handler {
	return func(ctx context.Context, body []byte) error {
		var msg types.CaptureJobMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return types.NewAppError(types.ErrCodeValidationMissingField,
				"malformed capture job payload", err)
		}
		if msg.SightingID == "" {
			return types.NewAppError(types.ErrCodeValidationMissingField,
				"capture job has no sighting id", nil)
		}

		result, err := coordinator.Run(ctx, msg.SightingID)
		if err != nil {
			if !queue.IsTransient(err) {
				return err
			}
			if msg.RetryCount >= queue.MaxCaptureRetries {
				logger.ErrorContext(ctx, "capture job dropped after exhausting retries",
					"sighting_id", msg.SightingID,
					"retry_count", msg.RetryCount,
					"trace_id", msg.TraceID,
					"error", err,
				)
				return nil
			}
			msg.RetryCount++
			delay := queue.CaptureRetryDelay(msg.RetryCount)
			if rerr := producer.EnqueueCaptureRetry(ctx, msg, delay); rerr != nil {
				// Fall back to visibility-timeout redelivery of the original.
				return err
			}
			logger.WarnContext(ctx, "capture job failed, retry scheduled",
				"sighting_id", msg.SightingID,
				"retry_count", msg.RetryCount,
				"delay_seconds", int(delay.Seconds()),
				"trace_id", msg.TraceID,
				"error", err,
			)
			return nil
		}
		logger.InfoContext(ctx, "capture job complete",
			"sighting_id", result.SightingID,
			"points_requested", result.PointsRequested,
			"points_persisted", result.PointsPersisted,
			"radar_captured", result.RadarCaptured,
			"trace_id", msg.TraceID,
		)
		return nil
	}
}

// scheduledHandler delivers a deferred notification, re-enqueueing messages
// that are still ahead of their DeliverAt because the queue delay ceiling
// forced an early hop.
func scheduledHandler(dispatcher *alerts.Dispatcher, producer *queue.Producer, logger *slog.Logger) queue.Handler {
	return func(ctx context.Context, body []byte) error {
		var msg types.ScheduledNotificationMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return types.NewAppError(types.ErrCodeValidationMissingField,
				"malformed scheduled notification payload", err)
		}

		if remaining := time.Until(msg.DeliverAt); remaining > dueSlack {
			logger.InfoContext(ctx, "notification not yet due, re-enqueueing",
				"user_id", msg.UserID,
				"deliver_at", msg.DeliverAt,
				"trace_id", msg.TraceID,
			)
			return producer.EnqueueScheduled(ctx, msg)
		}

		// User-scheduled deliveries bypass quiet hours; the user picked the
		// time.
		result, err := dispatcher.SendPush(ctx, msg.UserID, msg.Title, msg.Body,
			msg.Payload, msg.Type, alerts.SendOptions{OverrideQuietHours: true})
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "scheduled notification delivered",
			"user_id", msg.UserID,
			"skipped", result.Skipped,
			"devices_sent", result.DevicesSent,
			"devices_failed", result.DevicesFailed,
			"trace_id", msg.TraceID,
		)
		return nil
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("service", cfg.Service+"-capture-worker")
	slog.SetDefault(logger)
	return logger
}
