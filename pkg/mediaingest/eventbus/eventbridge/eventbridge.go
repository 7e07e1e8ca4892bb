// Package eventbridge publishes media events to an Amazon EventBridge bus.
// The event type becomes the DetailType and the full envelope the Detail.
package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/tendant/simple-media/pkg/mediaingest"
)

// API is the subset of the EventBridge client used by Publisher
type API interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher implements mediaingest.EventPublisher
type Publisher struct {
	client  API
	busName string
	source  string
}

// New creates a publisher for busName. source is required by EventBridge.
func New(client API, busName, source string) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("eventbridge client is required")
	}
	if source == "" {
		return nil, errors.New("event source is required")
	}
	if busName == "" {
		busName = "default"
	}
	return &Publisher{client: client, busName: busName, source: source}, nil
}

// Entry builds the PutEvents entry for event
func (p *Publisher) Entry(event mediaingest.Event) (types.PutEventsRequestEntry, error) {
	detail, err := json.Marshal(event)
	if err != nil {
		return types.PutEventsRequestEntry{}, fmt.Errorf("encode event %s: %w", event.ID, err)
	}

	entry := types.PutEventsRequestEntry{
		EventBusName: aws.String(p.busName),
		Source:       aws.String(p.source),
		DetailType:   aws.String(event.Type),
		Detail:       aws.String(string(detail)),
	}
	if !event.OccurredAt.IsZero() {
		entry.Time = aws.Time(event.OccurredAt)
	}
	return entry, nil
}

// Publish sends one event. PutEvents reports per-entry failures in the
// response body, so a nil error alone does not mean success.
func (p *Publisher) Publish(ctx context.Context, event mediaingest.Event) error {
	entry, err := p.Entry(event)
	if err != nil {
		return err
	}

	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return fmt.Errorf("publish %s event %s: %w", event.Type, event.ID, err)
	}
	if out.FailedEntryCount > 0 {
		code, message := "unknown", ""
		if len(out.Entries) > 0 {
			code = aws.ToString(out.Entries[0].ErrorCode)
			message = aws.ToString(out.Entries[0].ErrorMessage)
		}
		return fmt.Errorf("publish %s event %s rejected: %s %s", event.Type, event.ID, code, message)
	}
	return nil
}
