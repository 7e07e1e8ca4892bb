package mediaingest

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// RecordProcessor processes one accepted storage record; *Worker implements it.
type RecordProcessor interface {
	Process(ctx context.Context, record StorageRecord) (*ImageRecord, error)
}

// StorageEventListener filters object-created notifications down to raw
// uploads in the media bucket and hands them to the worker one at a time.
type StorageEventListener struct {
	bucket    string
	processor RecordProcessor
	logger    *slog.Logger
}

// NewStorageEventListener creates a listener for the media bucket
func NewStorageEventListener(bucket string, processor RecordProcessor, logger *slog.Logger) *StorageEventListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &StorageEventListener{
		bucket:    bucket,
		processor: processor,
		logger:    logger,
	}
}

// RecordsFromS3Event converts an S3 (or MinIO) notification into storage
// records, URL-decoding the object keys.
func RecordsFromS3Event(event events.S3Event) []StorageRecord {
	records := make([]StorageRecord, 0, len(event.Records))
	for _, r := range event.Records {
		records = append(records, StorageRecord{
			Bucket:    r.S3.Bucket.Name,
			Key:       DecodeNotificationKey(r.S3.Object.Key),
			Size:      r.S3.Object.Size,
			EventName: r.EventName,
		})
	}
	return records
}

// isObjectCreated matches both "ObjectCreated:Put" (S3) and
// "s3:ObjectCreated:Put" (MinIO). An empty name is accepted.
func isObjectCreated(eventName string) bool {
	if eventName == "" {
		return true
	}
	return strings.HasPrefix(strings.TrimPrefix(eventName, "s3:"), "ObjectCreated:")
}

// Accept reports whether the record refers to a raw upload in the media bucket.
func (l *StorageEventListener) Accept(record StorageRecord) (UploadDescriptor, bool) {
	if record.Bucket != l.bucket {
		l.logger.Info("Ignoring notification from unexpected bucket", "bucket", record.Bucket, "expected", l.bucket, "key", record.Key)
		return UploadDescriptor{}, false
	}
	if !isObjectCreated(record.EventName) {
		l.logger.Debug("Ignoring non-create notification", "event", record.EventName, "key", record.Key)
		return UploadDescriptor{}, false
	}
	desc, ok := ParseUploadKey(record.Key)
	if !ok {
		l.logger.Debug("Ignoring key outside upload prefix", "key", record.Key)
		return UploadDescriptor{}, false
	}
	return desc, true
}

// HandleBatch processes records sequentially. It returns the first retryable
// error so that the transport redelivers the batch; records that already
// completed converge on replay. Permanent failures are logged and dropped.
func (l *StorageEventListener) HandleBatch(ctx context.Context, records []StorageRecord) error {
	for _, record := range records {
		if _, ok := l.Accept(record); !ok {
			continue
		}
		if _, err := l.processor.Process(ctx, record); err != nil {
			if IsRetryable(err) {
				return err
			}
			l.logger.Error("Dropping notification after permanent failure", "key", record.Key, "err", err)
		}
	}
	return nil
}

// HandleS3Event is a convenience for transports that receive S3 events
func (l *StorageEventListener) HandleS3Event(ctx context.Context, event events.S3Event) error {
	return l.HandleBatch(ctx, RecordsFromS3Event(event))
}
