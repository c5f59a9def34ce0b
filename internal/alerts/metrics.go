package alerts

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"rainbowwatch/internal/types"
)

// metricNamespace is the CloudWatch namespace for dispatch metrics.
const metricNamespace = "RainbowWatch/Notifications"

// MetricResult labels a delivery outcome dimension.
type MetricResult string

const (
	MetricResultSuccess MetricResult = "success"
	MetricResultFailure MetricResult = "failure"
	MetricResultSkipped MetricResult = "skipped"
)

// DeliveryMetrics records per-device delivery outcomes. Metric emission is
// best-effort: failures are logged and never propagate to dispatch.
type DeliveryMetrics interface {
	RecordDelivery(ctx context.Context, platform types.Platform, result MetricResult)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertion that CloudWatchDeliveryMetrics implements
// DeliveryMetrics.
var _ DeliveryMetrics = (*CloudWatchDeliveryMetrics)(nil)

// CloudWatchDeliveryMetrics emits DeliveryAttempt metrics with Platform and
// Result dimensions.
type CloudWatchDeliveryMetrics struct {
	client CloudWatchClient
	logger *slog.Logger
}

// NewCloudWatchDeliveryMetrics creates a metrics emitter publishing to the
// RainbowWatch notification namespace.
func NewCloudWatchDeliveryMetrics(client CloudWatchClient, logger *slog.Logger) *CloudWatchDeliveryMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchDeliveryMetrics{client: client, logger: logger}
}

// RecordDelivery implements DeliveryMetrics.
func (m *CloudWatchDeliveryMetrics) RecordDelivery(ctx context.Context, platform types.Platform, result MetricResult) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(metricNamespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("DeliveryAttempt"),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String("Platform"), Value: aws.String(string(platform))},
					{Name: aws.String("Result"), Value: aws.String(string(result))},
				},
			},
		},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.WarnContext(ctx, "failed to emit delivery metric",
			"platform", string(platform),
			"result", string(result),
			"error", err,
		)
	}
}

// Compile-time assertion that NoopDeliveryMetrics implements DeliveryMetrics.
var _ DeliveryMetrics = NoopDeliveryMetrics{}

// NoopDeliveryMetrics discards all metrics. Used in local development and
// tests.
type NoopDeliveryMetrics struct{}

// RecordDelivery implements DeliveryMetrics.
func (NoopDeliveryMetrics) RecordDelivery(context.Context, types.Platform, MetricResult) {}
