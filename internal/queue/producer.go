// Package queue provides the SQS producers and the polling consumer loop
// shared by the capture worker and the scheduled-notification worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"rainbowwatch/internal/config"
	"rainbowwatch/internal/types"
)

// maxQueueDelay is the SQS DelaySeconds ceiling. Deliveries further out are
// re-enqueued by the consumer until they fall inside the window.
const maxQueueDelay = 15 * time.Minute

// Capture jobs that fail transiently re-publish themselves with a doubling
// delay. MaxCaptureRetries bounds total attempts before the job is dropped.
const (
	captureRetryBase  = time.Minute
	MaxCaptureRetries = 5
)

// CaptureRetryDelay returns the queue delay before retry attempt retryCount
// (1-based): one minute doubling per attempt, capped at the SQS delay
// ceiling.
func CaptureRetryDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	delay := captureRetryBase << (retryCount - 1)
	if delay > maxQueueDelay || delay <= 0 {
		delay = maxQueueDelay
	}
	return delay
}

// SQSClient abstracts the SQS operations used here, for testability.
// Production code passes the *sqs.Client from aws-sdk-go-v2.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// NewSQSClient builds an SQS client from the ambient AWS configuration,
// honoring the LocalStack endpoint override when set.
func NewSQSClient(ctx context.Context, awsCfg config.AWSConfig) (*sqs.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(awsCfg.Region))
	if err != nil {
		return nil, fmt.Errorf("queue: failed to load AWS config: %w", err)
	}
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if awsCfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(awsCfg.EndpointURL)
		}
	}), nil
}

// Producer publishes capture jobs and scheduled notifications.
type Producer struct {
	client            SQSClient
	captureQueueURL   string
	scheduledQueueURL string
	clock             types.Clock
	logger            *slog.Logger
}

// NewProducer creates a Producer for the configured queues.
func NewProducer(client SQSClient, awsCfg config.AWSConfig, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		client:            client,
		captureQueueURL:   awsCfg.CaptureQueueURL,
		scheduledQueueURL: awsCfg.ScheduledQueueURL,
		clock:             types.RealClock{},
		logger:            logger,
	}
}

// EnqueueCapture publishes a capture job for a sighting. A zero TraceID is
// filled in; EnqueuedAt is always stamped here.
func (p *Producer) EnqueueCapture(ctx context.Context, msg types.CaptureJobMessage) error {
	if msg.TraceID == "" {
		msg.TraceID = uuid.New().String()
	}
	msg.EnqueuedAt = p.clock.Now()

	if err := p.send(ctx, p.captureQueueURL, msg, 0, "capture_job"); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "capture job enqueued",
		"sighting_id", msg.SightingID,
		"retry_count", msg.RetryCount,
		"trace_id", msg.TraceID,
	)
	return nil
}

// EnqueueCaptureRetry re-publishes a capture job after a transient failure,
// delayed by the retry backoff. The caller increments RetryCount; the trace
// id survives across attempts.
func (p *Producer) EnqueueCaptureRetry(ctx context.Context, msg types.CaptureJobMessage, delay time.Duration) error {
	msg.EnqueuedAt = p.clock.Now()
	if delay > maxQueueDelay {
		delay = maxQueueDelay
	}

	if err := p.send(ctx, p.captureQueueURL, msg, delay, "capture_job"); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "capture job retry enqueued",
		"sighting_id", msg.SightingID,
		"retry_count", msg.RetryCount,
		"delay_seconds", int(delay.Seconds()),
		"trace_id", msg.TraceID,
	)
	return nil
}

// EnqueueScheduled publishes a deferred notification with as much queue-side
// delay as SQS allows. When DeliverAt sits beyond the delay ceiling the
// consumer re-enqueues on receipt until the remaining wait fits.
func (p *Producer) EnqueueScheduled(ctx context.Context, msg types.ScheduledNotificationMessage) error {
	if msg.TraceID == "" {
		msg.TraceID = uuid.New().String()
	}

	delay := time.Duration(0)
	if remaining := msg.DeliverAt.Sub(p.clock.Now()); remaining > 0 {
		delay = remaining
	}
	if delay > maxQueueDelay {
		delay = maxQueueDelay
	}

	if err := p.send(ctx, p.scheduledQueueURL, msg, delay, "scheduled_notification"); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "scheduled notification enqueued",
		"user_id", msg.UserID,
		"type", string(msg.Type),
		"deliver_at", msg.DeliverAt,
		"delay_seconds", int(delay.Seconds()),
		"trace_id", msg.TraceID,
	)
	return nil
}

// send serializes the payload and dispatches it with an optional delay.
func (p *Producer) send(ctx context.Context, queueURL string, payload any, delay time.Duration, kind string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue,
			fmt.Sprintf("failed to marshal %s message", kind), err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(kind),
			},
		},
	}
	if delay > 0 {
		input.DelaySeconds = int32(delay.Seconds())
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue,
			fmt.Sprintf("failed to send %s message", kind), err)
	}
	return nil
}
