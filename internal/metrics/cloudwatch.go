// Package metrics publishes service telemetry to CloudWatch.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"pathsynch/internal/core"
	"pathsynch/internal/types"
)

// publishTimeout bounds each PutMetricData call so a CloudWatch stall can
// never back up the request path.
const publishTimeout = 5 * time.Second

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertion that CloudWatchCollector implements MetricsCollector.
var _ core.MetricsCollector = (*CloudWatchCollector)(nil)

// CloudWatchCollector emits request telemetry and counter events under the
// PathSynch namespace. Publish failures are logged and dropped; telemetry
// never fails a caller.
type CloudWatchCollector struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchCollector creates a collector publishing to the PathSynch
// namespace. If logger is nil, slog.Default() is used.
func NewCloudWatchCollector(client CloudWatchClient, logger *slog.Logger) *CloudWatchCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchCollector{
		client:    client,
		namespace: types.MetricNamespace,
		logger:    logger,
	}
}

// RecordRequest emits the APILatency metric for one handled request, with
// endpoint and status dimensions. Runs synchronously; the middleware calls
// it after the response is written, off the latency-critical path.
func (c *CloudWatchCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimEndpoint), Value: aws.String(method + " " + endpoint)},
		{Name: aws.String(types.DimStatus), Value: aws.String(status)},
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricAPILatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims,
			},
		},
	}

	c.publish(input, "request metric")
}

// Count emits a count-of-one event metric with the given dimensions. Used
// by the worker and maintenance paths for job and cache telemetry.
func (c *CloudWatchCollector) Count(metricName string, dimensions map[string]string) {
	c.CountN(metricName, 1, dimensions)
}

// CountN emits an event metric with an explicit value.
func (c *CloudWatchCollector) CountN(metricName string, value float64, dimensions map[string]string) {
	dims := make([]cwtypes.Dimension, 0, len(dimensions))
	for name, val := range dimensions {
		dims = append(dims, cwtypes.Dimension{
			Name:  aws.String(name),
			Value: aws.String(val),
		})
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricName),
				Value:      aws.Float64(value),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
		},
	}

	c.publish(input, metricName)
}

func (c *CloudWatchCollector) publish(input *cloudwatch.PutMetricDataInput, what string) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if _, err := c.client.PutMetricData(ctx, input); err != nil {
		c.logger.Warn("failed to publish metric",
			"metric", what,
			"error", err,
		)
	}
}
