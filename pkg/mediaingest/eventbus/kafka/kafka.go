// Package kafka publishes media events to a Kafka topic and consumes bucket
// notifications from another one.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/tendant/simple-media/pkg/mediaingest"
)

const (
	_defaultConnAttempts = 10
	_defaultConnTimeout  = time.Second
	_defaultMaxAttempts  = 5
)

// Option configures connection behaviour for Publisher and Consumer
type Option func(*connSettings)

type connSettings struct {
	attempts    int
	timeout     time.Duration
	logger      *slog.Logger
	source      string
	maxAttempts int
}

// ConnAttempts sets how many times the broker is pinged before giving up
func ConnAttempts(attempts int) Option {
	return func(s *connSettings) {
		s.attempts = attempts
	}
}

// ConnTimeout sets the pause between ping attempts
func ConnTimeout(timeout time.Duration) Option {
	return func(s *connSettings) {
		s.timeout = timeout
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *connSettings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxAttempts caps how often the consumer runs one notification before
// committing it as failed. Values below 1 keep the default.
func WithMaxAttempts(attempts int) Option {
	return func(s *connSettings) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
	}
}

// WithSource sets the value of the "source" header on published messages
func WithSource(source string) Option {
	return func(s *connSettings) {
		s.source = source
	}
}

func newSettings(opts []Option) connSettings {
	s := connSettings{
		attempts:    _defaultConnAttempts,
		timeout:     _defaultConnTimeout,
		logger:      slog.Default(),
		maxAttempts: _defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func connect(ctx context.Context, brokers []string, s connSettings, role string) error {
	if len(brokers) == 0 {
		return errors.New("at least one kafka broker is required")
	}

	var err error
	for attempts := s.attempts; attempts > 0; attempts-- {
		err = ping(ctx, brokers[0])
		if err == nil {
			return nil
		}
		s.logger.Warn("Kafka is not reachable, retrying", "role", role, "attempts_left", attempts-1, "err", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.timeout):
		}
	}
	return fmt.Errorf("kafka %s: connection attempts exhausted: %w", role, err)
}

func ping(ctx context.Context, broker string) error {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("dial %s: %w", broker, err)
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		return fmt.Errorf("list brokers: %w", err)
	}
	return nil
}

// MessageWriter is the subset of *kafka.Writer used by Publisher
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements mediaingest.EventPublisher. Messages are keyed by
// tenant so that events for one tenant stay ordered within a partition.
type Publisher struct {
	writer MessageWriter
	topic  string
	source string
}

// NewPublisher pings the brokers and returns a publisher writing to topic
func NewPublisher(ctx context.Context, brokers []string, topic string, opts ...Option) (*Publisher, error) {
	s := newSettings(opts)
	if topic == "" {
		return nil, errors.New("kafka events topic is required")
	}
	if err := connect(ctx, brokers, s, "publisher"); err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return NewPublisherFromWriter(writer, topic, s.source), nil
}

// NewPublisherFromWriter wraps an existing writer
func NewPublisherFromWriter(writer MessageWriter, topic, source string) *Publisher {
	return &Publisher{writer: writer, topic: topic, source: source}
}

// Message builds the Kafka message for event
func (p *Publisher) Message(event mediaingest.Event) (kafka.Message, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event %s: %w", event.ID, err)
	}

	headers := []kafka.Header{
		{Key: "event_id", Value: []byte(event.ID)},
		{Key: "event_type", Value: []byte(event.Type)},
	}
	if p.source != "" {
		headers = append(headers, kafka.Header{Key: "source", Value: []byte(p.source)})
	}

	return kafka.Message{
		Topic:   p.topic,
		Key:     []byte(event.TenantID),
		Value:   body,
		Headers: headers,
		Time:    event.OccurredAt,
	}, nil
}

// Publish writes a single event and waits for all in-sync replicas
func (p *Publisher) Publish(ctx context.Context, event mediaingest.Event) error {
	msg, err := p.Message(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s event %s: %w", event.Type, event.ID, err)
	}
	return nil
}

// Close flushes and closes the writer
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
