package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/tendant/simple-media/pkg/mediaingest"
)

// Backend is an in-memory implementation of mediaingest.BlobStore and
// mediaingest.CredentialIssuer
type Backend struct {
	mu           sync.RWMutex
	bucket       string
	objects      map[string][]byte
	contentTypes map[string]string
	deletes      map[string]int
}

// New creates a new in-memory storage backend
func New(bucket string) *Backend {
	return &Backend{
		bucket:       bucket,
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
		deletes:      make(map[string]int),
	}
}

// Put stores an object, as a client upload would
func (b *Backend) Put(key, contentType string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key] = append([]byte(nil), data...)
	b.contentTypes[key] = contentType
}

// Download downloads content directly
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, *mediaingest.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, nil, &mediaingest.StorageError{Backend: "memory", Key: objectKey, Op: "download", Err: mediaingest.ErrObjectNotFound}
	}

	meta := &mediaingest.ObjectMeta{
		Key:         objectKey,
		Size:        int64(len(data)),
		ContentType: b.contentTypes[objectKey],
	}
	return io.NopCloser(bytes.NewReader(data)), meta, nil
}

// Upload uploads content with parameters
func (b *Backend) Upload(ctx context.Context, params mediaingest.UploadParams, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	mimeType := params.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	b.Put(params.ObjectKey, mimeType, data)
	return nil
}

// Delete deletes content. Deleting a missing key is a no-op.
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; exists {
		b.deletes[objectKey]++
	}
	delete(b.objects, objectKey)
	delete(b.contentTypes, objectKey)
	return nil
}

// PresignUpload returns a credential that only has meaning to this backend
func (b *Backend) PresignUpload(ctx context.Context, params mediaingest.PresignUploadParams) (*mediaingest.UploadCredential, error) {
	return &mediaingest.UploadCredential{
		URL: fmt.Sprintf("memory://%s", b.bucket),
		Fields: map[string]string{
			"key":                  params.Key,
			"content-type-prefix":  params.ContentTypePrefix,
			"content-length-range": fmt.Sprintf("%d,%d", params.MinSizeBytes, params.MaxSizeBytes),
		},
		Key:       params.Key,
		ExpiresAt: time.Now().UTC().Add(params.Expires),
	}, nil
}

// Exists reports whether key is stored
func (b *Backend) Exists(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.objects[key]
	return ok
}

// ContentType returns the stored content type of key
func (b *Backend) ContentType(key string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.contentTypes[key]
}

// Deletes returns how many times an existing object at key was removed
func (b *Backend) Deletes(key string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.deletes[key]
}

// Keys returns all stored keys in lexical order
func (b *Backend) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
