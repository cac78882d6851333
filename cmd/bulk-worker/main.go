// Package main is the entrypoint for the Bulk Worker Lambda function.
//
// The Bulk Worker consumes job messages from the bulk jobs SQS queue and
// drives each claimed job through its validated rows: render a pitch per
// row, persist it, book the usage, and write cumulative progress so a
// mid-flight crash resumes instead of duplicating.
//
// Cold start:
//  1. Initialize structured logger.
//  2. Load application and AWS SDK configuration.
//  3. Open the database pool and build the job, pitch, and usage repositories.
//  4. Initialize the CloudWatch metrics collector.
//  5. Build the bulk processor, register the handler, call lambda.Start.
//
// Lambda SQS integration uses partial batch responses: messages that fail
// processing are returned in batchItemFailures so SQS redelivers only those.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"pathsynch/internal/bulk"
	"pathsynch/internal/config"
	"pathsynch/internal/db"
	"pathsynch/internal/metrics"
	"pathsynch/internal/types"
)

// Counter is the slice of the metrics collector the worker uses. Nil means
// telemetry is disabled.
type Counter interface {
	Count(metricName string, dimensions map[string]string)
}

// Handler holds the dependencies for the bulk worker Lambda handler.
type Handler struct {
	processor *bulk.Processor
	metrics   Counter
	logger    *slog.Logger
}

// Handle processes an SQS event containing one or more bulk job messages.
// Each message is processed independently; a failure in one never blocks
// the rest of the batch.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("failed to process SQS message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			// Report partial failure so SQS retries only this message.
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage handles a single SQS message. A nil return acknowledges the
// message; any error sends it back for redelivery.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var msg types.BulkJobMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.Error("failed to unmarshal bulk job message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		// Permanent parse failure, redelivery cannot fix it. ACK.
		return nil
	}

	logger := h.logger.With(
		"job_id", msg.JobID,
		"user_id", msg.UserID,
		"trace_id", msg.TraceID,
	)
	logger.InfoContext(ctx, "processing bulk job message", "priority", msg.Priority)
	h.count(types.MetricBulkJobStarted, nil)

	err := h.processor.Process(ctx, msg)
	switch {
	case err == nil:
		logger.InfoContext(ctx, "bulk job message handled")
		h.count(types.MetricBulkJobCompleted, nil)
		return nil
	case errors.Is(err, bulk.ErrRetryLater):
		// The job is mid-flight elsewhere with a fresh heartbeat. Return
		// the message so SQS redelivers after the visibility timeout.
		logger.InfoContext(ctx, "bulk job in progress elsewhere, returning message to queue")
		return err
	default:
		h.count(types.MetricBulkJobFailed, nil)
		return fmt.Errorf("processing job %s: %w", msg.JobID, err)
	}
}

func (h *Handler) count(name string, dims map[string]string) {
	if h.metrics != nil {
		h.metrics.Count(name, dims)
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("bulk worker initializing (cold start)")

	ctx := context.Background()

	cfg, err := config.LoadConfig(nil)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to open database pool", "error", err)
		os.Exit(1)
	}

	var counter Counter
	if cfg.Metrics.EnableMetrics {
		cwClient, cwErr := newCloudWatchClient(ctx, cfg)
		if cwErr != nil {
			logger.Error("failed to load AWS SDK config", "error", cwErr)
			os.Exit(1)
		}
		counter = metrics.NewCloudWatchCollector(cwClient, logger)
	}

	processor := bulk.NewProcessor(bulk.ProcessorConfig{
		Jobs:           db.NewBulkJobRepository(pool),
		Pitches:        db.NewPitchRepository(pool),
		Usage:          db.NewUsageRepository(pool),
		StaleThreshold: cfg.Maintenance.StaleJobThreshold,
		Logger:         logger,
	})

	handler := &Handler{
		processor: processor,
		metrics:   counter,
		logger:    logger,
	}

	logger.Info("bulk worker initialized",
		"queue_url", cfg.AWS.BulkJobQueue,
		"stale_threshold", cfg.Maintenance.StaleJobThreshold.String(),
	)

	lambda.Start(handler.Handle)
}

// newCloudWatchClient loads AWS SDK configuration and builds the CloudWatch
// client, honoring the local endpoint override.
func newCloudWatchClient(ctx context.Context, cfg *config.Config) (*cloudwatch.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, err
	}
	return cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	}), nil
}
