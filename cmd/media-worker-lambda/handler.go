package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/tendant/simple-media/pkg/mediaingest"
)

const eventSourceSQS = "aws:sqs"

type batchHandler interface {
	HandleBatch(ctx context.Context, records []mediaingest.StorageRecord) error
}

type handler struct {
	listener batchHandler
	logger   *slog.Logger
}

func newHandler(listener batchHandler, logger *slog.Logger) *handler {
	return &handler{listener: listener, logger: logger}
}

type envelope struct {
	Records []struct {
		EventSource string `json:"eventSource"`
	} `json:"Records"`
}

// Handle dispatches on the record source. Direct S3 invocations fail as a
// whole so Lambda retries them; SQS batches report failed messages
// individually.
func (h *handler) Handle(ctx context.Context, payload json.RawMessage) (any, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode invocation: %w", err)
	}
	if len(env.Records) == 0 {
		h.logger.Info("Invocation without records, ignoring")
		return nil, nil
	}

	switch env.Records[0].EventSource {
	case eventSourceSQS:
		var event events.SQSEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("decode sqs event: %w", err)
		}
		return h.handleSQS(ctx, event), nil
	default:
		var event events.S3Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("decode s3 event: %w", err)
		}
		return nil, h.listener.HandleBatch(ctx, mediaingest.RecordsFromS3Event(event))
	}
}

func (h *handler) handleSQS(ctx context.Context, event events.SQSEvent) events.SQSEventResponse {
	var resp events.SQSEventResponse
	for _, msg := range event.Records {
		var s3Event events.S3Event
		if err := json.Unmarshal([]byte(msg.Body), &s3Event); err != nil {
			// Redelivering a body that never decodes cannot succeed
			h.logger.Error("Dropping undecodable queue message", "message_id", msg.MessageId, "err", err)
			continue
		}

		if err := h.listener.HandleBatch(ctx, mediaingest.RecordsFromS3Event(s3Event)); err != nil {
			h.logger.Warn("Queue message failed, leaving for redelivery", "message_id", msg.MessageId, "err", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: msg.MessageId})
		}
	}
	return resp
}
