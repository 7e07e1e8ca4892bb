package mediaingest

import (
	"context"
	"log/slog"
)

// NoopEventPublisher is a no-operation implementation of EventPublisher
type NoopEventPublisher struct{}

// NewNoopEventPublisher creates a new no-operation publisher
func NewNoopEventPublisher() EventPublisher {
	return &NoopEventPublisher{}
}

// Publish does nothing and returns nil
func (n *NoopEventPublisher) Publish(ctx context.Context, event Event) error {
	return nil
}

// LoggingEventPublisher logs events but takes no other action.
// Useful for development and debugging
type LoggingEventPublisher struct {
	logger *slog.Logger
}

// NewLoggingEventPublisher creates a new logging publisher
func NewLoggingEventPublisher(logger *slog.Logger) EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventPublisher{logger: logger}
}

// Publish logs the event
func (l *LoggingEventPublisher) Publish(ctx context.Context, event Event) error {
	l.logger.InfoContext(ctx, "Event published", "event_id", event.ID, "type", event.Type, "tenant_id", event.TenantID, "payload", event.Payload)
	return nil
}
