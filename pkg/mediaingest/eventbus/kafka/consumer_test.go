package kafka

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/mediaingest"
	eventmemory "github.com/tendant/simple-media/pkg/mediaingest/eventbus/memory"
	"github.com/tendant/simple-media/pkg/mediaingest/imageproc"
	repomemory "github.com/tendant/simple-media/pkg/mediaingest/repo/memory"
	storagememory "github.com/tendant/simple-media/pkg/mediaingest/storage/memory"
)

const notificationBody = `{"Records":[{"eventName":"s3:ObjectCreated:Put","s3":{"bucket":{"name":"media"},"object":{"key":"uploads/t1/a1/i1/original/my+photo.jpg","size":1024}}}]}`

// fakeReader serves queued messages and then blocks until ctx is cancelled
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type scriptedHandler struct {
	errs    []error
	batches [][]mediaingest.StorageRecord
}

func (h *scriptedHandler) HandleBatch(ctx context.Context, records []mediaingest.StorageRecord) error {
	h.batches = append(h.batches, records)
	if len(h.errs) == 0 {
		return nil
	}
	err := h.errs[0]
	h.errs = h.errs[1:]
	return err
}

func runConsumer(t *testing.T, handler BatchHandler, msgs ...kafka.Message) *fakeReader {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reader := &fakeReader{queue: msgs, cancel: cancel}
	c := NewConsumerFromReader(reader, handler, nil)
	c.SetBackoff(time.Millisecond)
	c.SetMaxAttempts(3)

	require.NoError(t, c.Run(ctx))
	return reader
}

func TestDecodeNotification(t *testing.T) {
	records, err := DecodeNotification([]byte(notificationBody))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "media", records[0].Bucket)
	assert.Equal(t, "uploads/t1/a1/i1/original/my photo.jpg", records[0].Key)
	assert.Equal(t, int64(1024), records[0].Size)

	_, err = DecodeNotification([]byte("not json"))
	require.Error(t, err)
}

func TestConsumer_CommitsAfterSuccess(t *testing.T) {
	handler := &scriptedHandler{}
	reader := runConsumer(t, handler, kafka.Message{Offset: 7, Value: []byte(notificationBody)})

	assert.Len(t, handler.batches, 1)
	assert.Equal(t, []int64{7}, reader.committed)
}

func TestConsumer_RetriesRetryableFailure(t *testing.T) {
	handler := &scriptedHandler{errs: []error{
		&mediaingest.StageError{Stage: mediaingest.StageDownload, Retryable: true, Err: errors.New("timeout")},
	}}
	reader := runConsumer(t, handler, kafka.Message{Offset: 3, Value: []byte(notificationBody)})

	assert.Len(t, handler.batches, 2)
	assert.Equal(t, []int64{3}, reader.committed)
}

func TestConsumer_CommitsPermanentFailure(t *testing.T) {
	handler := &scriptedHandler{errs: []error{
		&mediaingest.StageError{Stage: mediaingest.StageDecode, Retryable: false, Err: errors.New("corrupt")},
	}}
	reader := runConsumer(t, handler, kafka.Message{Offset: 4, Value: []byte(notificationBody)})

	assert.Len(t, handler.batches, 1)
	assert.Equal(t, []int64{4}, reader.committed)
}

func TestConsumer_CommitsUndecodableMessage(t *testing.T) {
	handler := &scriptedHandler{}
	reader := runConsumer(t, handler,
		kafka.Message{Offset: 1, Value: []byte("{broken")},
		kafka.Message{Offset: 2, Value: []byte(notificationBody)},
	)

	assert.Len(t, handler.batches, 1)
	assert.Equal(t, []int64{1, 2}, reader.committed)
}

func TestConsumer_SkipsMessageAfterMaxAttempts(t *testing.T) {
	retryable := &mediaingest.StageError{Stage: mediaingest.StageDecode, Retryable: true, Err: errors.New("corrupt")}
	handler := &scriptedHandler{errs: []error{retryable, retryable, retryable}}
	reader := runConsumer(t, handler,
		kafka.Message{Offset: 1, Value: []byte(notificationBody)},
		kafka.Message{Offset: 2, Value: []byte(notificationBody)},
	)

	assert.Len(t, handler.batches, 4)
	assert.Equal(t, []int64{1, 2}, reader.committed)
}

func notificationFor(key string) []byte {
	return []byte(fmt.Sprintf(`{"Records":[{"eventName":"s3:ObjectCreated:Put","s3":{"bucket":{"name":"media"},"object":{"key":%q}}}]}`, key))
}

func TestConsumer_CorruptUploadDoesNotBlockPartition(t *testing.T) {
	blobs := storagememory.New("media")
	repo := repomemory.New()
	events := eventmemory.NewRecorder()

	worker, err := mediaingest.NewWorker(
		mediaingest.WithBlobStore(blobs),
		mediaingest.WithMetadataStore(repo),
		mediaingest.WithEventPublisher(events),
		mediaingest.WithVariantGenerator(imageproc.New()),
		mediaingest.WithVariantSpecs([]mediaingest.VariantSpec{{Label: "md", LongEdge: 20}}),
		mediaingest.WithWorkDir(t.TempDir()),
	)
	require.NoError(t, err)
	listener := mediaingest.NewStorageEventListener("media", worker, nil)

	badKey := mediaingest.UploadKey("t1", "a1", "bad1", "bad.jpg")
	blobs.Put(badKey, "image/jpeg", []byte("definitely not a jpeg"))

	var good bytes.Buffer
	require.NoError(t, imaging.Encode(&good, image.NewNRGBA(image.Rect(0, 0, 50, 50)), imaging.JPEG))
	goodKey := mediaingest.UploadKey("t1", "a1", "good1", "good.jpg")
	blobs.Put(goodKey, "image/jpeg", good.Bytes())

	reader := runConsumer(t, listener,
		kafka.Message{Offset: 1, Value: notificationFor(badKey)},
		kafka.Message{Offset: 2, Value: notificationFor(goodKey)},
	)

	assert.Equal(t, []int64{1, 2}, reader.committed)

	rec, err := repo.GetImage(context.Background(), "t1", "good1")
	require.NoError(t, err)
	assert.NotNil(t, rec.ProcessedAt)
	assert.False(t, blobs.Exists(goodKey))
	assert.Len(t, events.OfType(mediaingest.EventTypeImageProcessed), 1)

	// the corrupt upload stays for inspection and the retention rule
	assert.True(t, blobs.Exists(badKey))
	_, err = repo.GetImage(context.Background(), "t1", "bad1")
	assert.ErrorIs(t, err, mediaingest.ErrImageNotFound)
}
