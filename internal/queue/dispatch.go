// Package queue provides the SQS producer that hands created bulk jobs to
// the worker fleet.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"pathsynch/internal/config"
	"pathsynch/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// JobDispatcher serializes a BulkJobMessage and sends it to the bulk jobs
// queue. The upload handler is its only producer: validation and job
// persistence happen before dispatch, so a lost message can always be
// recovered by re-enqueueing the job id.
type JobDispatcher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewJobDispatcher creates a JobDispatcher reading the queue URL from the
// AWS configuration.
func NewJobDispatcher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *JobDispatcher {
	return &JobDispatcher{
		client:   client,
		queueURL: awsCfg.BulkJobQueue,
		logger:   logger,
	}
}

// Dispatch enqueues one job message. Priority-plan messages carry a
// "priority" attribute so the worker can drain them first.
func (d *JobDispatcher) Dispatch(ctx context.Context, msg types.BulkJobMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal BulkJobMessage: %w", err)
	}

	priority := "false"
	if msg.Priority {
		priority = "true"
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"trace_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.TraceID),
			},
			"priority": {
				DataType:    aws.String("String"),
				StringValue: aws.String(priority),
			},
		},
	}

	if _, err := d.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send BulkJobMessage to %s: %w", d.queueURL, err)
	}

	d.logger.InfoContext(ctx, "bulk job message sent",
		"queue_url", d.queueURL,
		"job_id", msg.JobID,
		"user_id", msg.UserID,
		"trace_id", msg.TraceID,
		"priority", msg.Priority,
	)

	return nil
}
