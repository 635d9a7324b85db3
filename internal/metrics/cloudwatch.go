// Package metrics emits service telemetry to AWS CloudWatch.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"heliogate/internal/intake"
)

// Metric and dimension names.
const (
	MetricWebhookOutcome = "WebhookOutcome"
	MetricWebhookLatency = "WebhookLatency"
	MetricAPIRequest     = "APIRequestCount"
	MetricAPILatency     = "APILatency"

	DimGateway  = "Gateway"
	DimOutcome  = "Outcome"
	DimMethod   = "Method"
	DimEndpoint = "Endpoint"
	DimStatus   = "Status"
)

// CloudWatchClient abstracts PutMetricData for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRecorder publishes webhook outcomes and request metrics. Publish
// errors are logged and never surface to callers.
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	gateway   string
	logger    *slog.Logger
}

// NewCloudWatchRecorder creates a recorder for namespace. gateway is attached
// to outcome metrics as a dimension.
func NewCloudWatchRecorder(client CloudWatchClient, namespace, gateway string, logger *slog.Logger) *CloudWatchRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRecorder{
		client:    client,
		namespace: namespace,
		gateway:   gateway,
		logger:    logger,
	}
}

// RecordOutcome implements intake.OutcomeMetrics: one count datum keyed by
// outcome label and one latency datum.
func (m *CloudWatchRecorder) RecordOutcome(ctx context.Context, out intake.Outcome, duration time.Duration) {
	gatewayDim := dimension(DimGateway, m.gateway)
	m.put(ctx, "webhook outcome",
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricWebhookOutcome),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{gatewayDim, dimension(DimOutcome, out.Label())},
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricWebhookLatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: []cwtypes.Dimension{gatewayDim},
		},
	)
}

// RecordRequest implements core.MetricsCollector.
func (m *CloudWatchRecorder) RecordRequest(ctx context.Context, method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		dimension(DimMethod, method),
		dimension(DimEndpoint, endpoint),
		dimension(DimStatus, status),
	}
	m.put(ctx, "api request",
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricAPIRequest),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricAPILatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims[:2],
		},
	)
}

func (m *CloudWatchRecorder) put(ctx context.Context, what string, data ...cwtypes.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to record "+what+" metric", "error", err)
	}
}

func dimension(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

// Nop discards all metrics. Used when metrics are disabled.
type Nop struct{}

func (Nop) RecordOutcome(context.Context, intake.Outcome, time.Duration) {}

func (Nop) RecordRequest(context.Context, string, string, string, time.Duration) {}

var (
	_ intake.OutcomeMetrics = (*CloudWatchRecorder)(nil)
	_ intake.OutcomeMetrics = Nop{}
)
