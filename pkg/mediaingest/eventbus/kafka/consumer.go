package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/segmentio/kafka-go"
	"github.com/tendant/simple-media/pkg/mediaingest"
)

// MessageReader is the subset of *kafka.Reader used by Consumer
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// BatchHandler handles the storage records decoded from one message
type BatchHandler interface {
	HandleBatch(ctx context.Context, records []mediaingest.StorageRecord) error
}

// Consumer reads MinIO/S3 bucket notifications from a topic and feeds them to
// a BatchHandler. A message is committed after it was handled, after it failed
// permanently, or after its retry attempts ran out. Raw uploads left behind by
// abandoned messages stay in the bucket until the retention rule removes them.
type Consumer struct {
	reader      MessageReader
	handler     BatchHandler
	backoff     time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// NewConsumer pings the brokers and joins groupID on topic
func NewConsumer(ctx context.Context, brokers []string, groupID, topic string, handler BatchHandler, opts ...Option) (*Consumer, error) {
	s := newSettings(opts)
	if topic == "" || groupID == "" {
		return nil, errors.New("kafka notifications topic and group id are required")
	}
	if err := connect(ctx, brokers, s, "consumer"); err != nil {
		return nil, err
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	c := NewConsumerFromReader(reader, handler, s.logger)
	c.SetMaxAttempts(s.maxAttempts)
	return c, nil
}

// NewConsumerFromReader wraps an existing reader
func NewConsumerFromReader(reader MessageReader, handler BatchHandler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader:      reader,
		handler:     handler,
		backoff:     5 * time.Second,
		maxAttempts: _defaultMaxAttempts,
		logger:      logger,
	}
}

// SetBackoff sets the wait before a retryable failure is re-attempted
func (c *Consumer) SetBackoff(d time.Duration) {
	c.backoff = d
}

// SetMaxAttempts sets how often one message is handled before it is committed
// as failed. Values below 1 are ignored.
func (c *Consumer) SetMaxAttempts(attempts int) {
	if attempts > 0 {
		c.maxAttempts = attempts
	}
}

// DecodeNotification parses a bucket notification message body
func DecodeNotification(value []byte) ([]mediaingest.StorageRecord, error) {
	var event events.S3Event
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, fmt.Errorf("decode bucket notification: %w", err)
	}
	return mediaingest.RecordsFromS3Event(event), nil
}

// Run consumes until ctx is cancelled
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch notification: %w", err)
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// handle retries retryable failures in place, up to maxAttempts, so later
// messages on the partition wait behind at most a bounded number of retries.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	records, err := DecodeNotification(msg.Value)
	if err != nil {
		c.logger.Error("Dropping undecodable notification", "offset", msg.Offset, "partition", msg.Partition, "err", err)
		return c.commit(ctx, msg)
	}

	for attempt := 1; ; attempt++ {
		err := c.handler.HandleBatch(ctx, records)
		if err == nil {
			return c.commit(ctx, msg)
		}
		if !mediaingest.IsRetryable(err) {
			c.logger.Error("Notification failed permanently", "offset", msg.Offset, "err", err)
			return c.commit(ctx, msg)
		}
		if attempt >= c.maxAttempts {
			c.logger.Error("Notification retries exhausted, skipping", "offset", msg.Offset, "partition", msg.Partition, "attempts", attempt, "err", err)
			return c.commit(ctx, msg)
		}

		c.logger.Warn("Notification failed, retrying", "offset", msg.Offset, "attempt", attempt, "backoff", c.backoff, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff):
		}
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
	}
	return nil
}

// Close closes the reader
func (c *Consumer) Close() error {
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
