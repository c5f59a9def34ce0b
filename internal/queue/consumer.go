package queue

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"rainbowwatch/internal/types"
)

const (
	receiveBatchSize  = 10
	receiveWaitSecs   = 20
	visibilityTimeout = 60
)

// Handler processes one raw message body. Returning nil or a permanent error
// deletes the message; a transient error leaves it for redelivery after the
// visibility timeout, and the queue redrive policy bounds total attempts.
type Handler func(ctx context.Context, body []byte) error

// Consumer is a long-polling SQS worker loop.
type Consumer struct {
	client   SQSClient
	queueURL string
	handler  Handler
	logger   *slog.Logger
}

// NewConsumer creates a Consumer for one queue.
func NewConsumer(client SQSClient, queueURL string, handler Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:   client,
		queueURL: queueURL,
		handler:  handler,
		logger:   logger,
	}
}

// Run polls until the context is cancelled. Receive failures are logged and
// the loop continues; messages within a batch are processed sequentially so
// handler-level concurrency stays the handler's decision.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "consumer started", "queue_url", c.queueURL)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: receiveBatchSize,
			WaitTimeSeconds:     receiveWaitSecs,
			VisibilityTimeout:   visibilityTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.ErrorContext(ctx, "receive failed", "queue_url", c.queueURL, "error", err)
			continue
		}

		for _, msg := range out.Messages {
			c.process(ctx, msg.Body, msg.ReceiptHandle)
		}
	}
}

func (c *Consumer) process(ctx context.Context, body, receiptHandle *string) {
	if body == nil || receiptHandle == nil {
		return
	}

	err := c.handler(ctx, []byte(*body))
	if err != nil && IsTransient(err) {
		// Leave the message in flight; SQS redelivers after the visibility
		// timeout and the redrive policy caps attempts.
		c.logger.WarnContext(ctx, "transient handler failure, message will be redelivered",
			"queue_url", c.queueURL,
			"error", err,
		)
		return
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "permanent handler failure, discarding message",
			"queue_url", c.queueURL,
			"error", err,
		)
	}

	if _, derr := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	}); derr != nil {
		c.logger.ErrorContext(ctx, "delete failed", "queue_url", c.queueURL, "error", derr)
	}
}

// IsTransient classifies a handler error. Typed application errors carry
// their own retryability; anything untyped is assumed transient so unknown
// failures get a second chance.
func IsTransient(err error) bool {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable()
	}
	return true
}
