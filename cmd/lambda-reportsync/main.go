package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-reportsync

import (
	"context"
	"log"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"execal-client/internal/bootstrap"
	"execal-client/internal/reportsync"
	"execal-client/internal/shared/config"
	"execal-client/internal/shared/metrics"
	"execal-client/internal/shared/storage/db"
	"execal-client/internal/shared/telemetry"
)

var (
	initOnce  sync.Once
	initErr   error
	processor reportsync.Processor
)

func initApp() {
	cfg := config.Load()
	cfg.QueueURL = ""
	built, err := bootstrap.Build(context.Background(), cfg, db.ProfileLambda)
	if err != nil {
		initErr = err
		return
	}
	processor = built.Syncer
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		log.Printf("bootstrap error: %v", initErr)
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return processBatch(ctx, processor, event), nil
}

// processBatch reports retryable failures only. Messages that can never
// succeed are dropped so they do not block the batch.
func processBatch(ctx context.Context, p reportsync.Processor, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		err := reportsync.HandleMessage(ctx, p, record.Body)
		switch {
		case err == nil:
			metrics.IncSyncJob("completed")
		case reportsync.Unrecoverable(err):
			telemetry.Error("reportsync.invalid_message", map[string]any{
				"sqs_message_id": record.MessageId,
				"error":          err.Error(),
			})
			metrics.IncSyncJob("deleted_unrecoverable")
		default:
			telemetry.Error("reportsync.failed", map[string]any{
				"sqs_message_id": record.MessageId,
				"error":          err.Error(),
			})
			metrics.IncSyncJob("failed")
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}
