package mediaingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Worker stages
const (
	StageWorkDir  = "workdir"
	StageDownload = "download"
	StageDecode   = "decode"
	StageVariant  = "variant"
	StageOriginal = "original"
	StagePersist  = "persist"
	StagePublish  = "publish"
)

// Worker runs the per-object ingest pipeline:
// download -> variants -> original -> persist -> publish -> cleanup.
type Worker struct {
	blobs       BlobStore
	images      ImageMetadataStore
	publisher   EventPublisher
	generator   VariantGenerator
	specs       []VariantSpec
	workDir     string
	concurrency int
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
	newEventID  func() string
}

// WorkerOption configures a Worker
type WorkerOption func(*Worker)

// WithBlobStore sets the storage the raw and public objects live in
func WithBlobStore(store BlobStore) WorkerOption {
	return func(w *Worker) {
		w.blobs = store
	}
}

// WithMetadataStore sets the ImageRecord store
func WithMetadataStore(store ImageMetadataStore) WorkerOption {
	return func(w *Worker) {
		w.images = store
	}
}

// WithEventPublisher sets the publisher for ImageProcessed events
func WithEventPublisher(publisher EventPublisher) WorkerOption {
	return func(w *Worker) {
		w.publisher = publisher
	}
}

// WithVariantGenerator sets the image transformer
func WithVariantGenerator(generator VariantGenerator) WorkerOption {
	return func(w *Worker) {
		w.generator = generator
	}
}

// WithVariantSpecs sets the variant list. The list is normalized, so an empty
// or invalid list results in DefaultVariantSpecs.
func WithVariantSpecs(specs []VariantSpec) WorkerOption {
	return func(w *Worker) {
		w.specs = NormalizeVariantSpecs(specs)
	}
}

// WithWorkDir sets the parent directory for per-record scratch directories
func WithWorkDir(dir string) WorkerOption {
	return func(w *Worker) {
		w.workDir = dir
	}
}

// WithVariantConcurrency bounds how many variants are generated at once, and so
// how many variant files are resident on local disk. Default 1.
func WithVariantConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithMetrics enables Prometheus metrics
func WithMetrics(m *Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWorker creates a new Worker with the given options
func NewWorker(opts ...WorkerOption) (*Worker, error) {
	w := &Worker{
		specs:       DefaultVariants(),
		concurrency: 1,
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
		newEventID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(w)
	}

	switch {
	case w.blobs == nil:
		return nil, fmt.Errorf("blob store is required")
	case w.images == nil:
		return nil, fmt.Errorf("metadata store is required")
	case w.publisher == nil:
		return nil, fmt.Errorf("event publisher is required")
	case w.generator == nil:
		return nil, fmt.Errorf("variant generator is required")
	}
	return w, nil
}

// VariantSpecs returns the active variant list
func (w *Worker) VariantSpecs() []VariantSpec {
	specs := make([]VariantSpec, len(w.specs))
	copy(specs, w.specs)
	return specs
}

type sourceFile struct {
	path        string
	contentType string
	sizeBytes   int64
}

// Process runs the pipeline for one notified object. A key outside the upload
// pattern is skipped and returns (nil, nil). Any returned error should cause
// the invoking transport to redeliver the notification when IsRetryable is true.
func (w *Worker) Process(ctx context.Context, record StorageRecord) (result *ImageRecord, err error) {
	start := time.Now()

	desc, ok := ParseUploadKey(record.Key)
	if !ok {
		w.logger.Debug("Skipping non-upload key", "key", record.Key)
		w.metrics.observeRecord(OutcomeSkipped, time.Since(start))
		return nil, nil
	}

	logger := w.logger.With("key", record.Key, "tenant_id", desc.TenantID, "album_id", desc.AlbumID, "image_id", desc.ImageID)
	outcome := OutcomeProcessed
	defer func() {
		if err != nil {
			outcome = OutcomeFailed
			logger.Error("Ingest failed", "err", err, "retryable", IsRetryable(err))
		}
		w.metrics.observeRecord(outcome, time.Since(start))
	}()

	workDir, err := os.MkdirTemp(w.workDir, "ingest-*")
	if err != nil {
		return nil, &StageError{Stage: StageWorkDir, Key: record.Key, Retryable: true, Err: err}
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			logger.Warn("Failed to remove work directory", "dir", workDir, "err", rmErr)
		}
	}()

	source, err := w.download(ctx, desc, workDir)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			prior, done, lookupErr := w.alreadyProcessed(ctx, desc)
			if lookupErr != nil {
				return nil, &StageError{Stage: StageDownload, Key: record.Key, Retryable: true, Err: errors.Join(err, lookupErr)}
			}
			if done {
				logger.Info("Raw upload already processed and removed, skipping")
				outcome = OutcomeDuplicate
				return prior, nil
			}
			return nil, &StageError{Stage: StageDownload, Key: record.Key, Retryable: false, Err: err}
		}
		return nil, &StageError{Stage: StageDownload, Key: record.Key, Retryable: true, Err: err}
	}
	logger.Info("Downloaded raw upload", "size_bytes", source.sizeBytes, "content_type", source.contentType)

	if _, _, err := w.generator.Probe(source.path); err != nil {
		return nil, &StageError{Stage: StageDecode, Key: record.Key, Retryable: true, Err: err}
	}

	variants, err := w.generateVariants(ctx, desc, source, workDir)
	if err != nil {
		return nil, err
	}

	original, originalType, err := w.publishOriginal(ctx, desc, source, workDir)
	if err != nil {
		return nil, err
	}

	rec, err := w.persist(ctx, desc, source, original, originalType, variants)
	if err != nil {
		return nil, err
	}

	event := Event{
		ID:         w.newEventID(),
		Type:       EventTypeImageProcessed,
		OccurredAt: w.now(),
		TenantID:   desc.TenantID,
		Payload: ImageProcessedPayload{
			AlbumID:     desc.AlbumID,
			ImageID:     desc.ImageID,
			OriginalKey: rec.OriginalKey,
			Variants:    rec.Variants,
		},
	}
	if err := w.publisher.Publish(ctx, event); err != nil {
		return nil, &StageError{Stage: StagePublish, Key: record.Key, Retryable: true, Err: err}
	}

	// The raw upload is only removed once the event is out; retention rules
	// collect anything left behind.
	if err := w.blobs.Delete(ctx, desc.Key()); err != nil {
		w.metrics.incCleanupFailures()
		logger.Warn("Failed to delete raw upload", "err", err)
	}

	logger.Info("Image processed", "variants", len(rec.Variants), "event_id", event.ID)
	return rec, nil
}

func (w *Worker) download(ctx context.Context, desc UploadDescriptor, workDir string) (*sourceFile, error) {
	reader, meta, err := w.blobs.Download(ctx, desc.Key())
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	path := filepath.Join(workDir, "source"+fileExt(desc.Filename))
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create source file: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(file, reader)
	if err != nil {
		return nil, fmt.Errorf("write source file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("close source file: %w", err)
	}

	source := &sourceFile{path: path, sizeBytes: written}
	if meta != nil && meta.ContentType != "" && meta.ContentType != "application/octet-stream" {
		source.contentType = meta.ContentType
	} else {
		source.contentType, err = sniffContentType(path)
		if err != nil {
			return nil, err
		}
	}
	return source, nil
}

func sniffContentType(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open source file: %w", err)
	}
	defer file.Close()

	buffer := make([]byte, 512)
	n, err := io.ReadFull(file, buffer)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read source file: %w", err)
	}
	return http.DetectContentType(buffer[:n]), nil
}

// generateVariants produces one public object per active spec. At most
// w.concurrency variant files exist on disk at a time; each is removed as soon
// as it has been uploaded.
func (w *Worker) generateVariants(ctx context.Context, desc UploadDescriptor, source *sourceFile, workDir string) ([]Variant, error) {
	variants := make([]Variant, len(w.specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i, spec := range w.specs {
		g.Go(func() error {
			variant, err := w.generateVariant(gctx, desc, source, workDir, spec)
			if err != nil {
				return &StageError{Stage: StageVariant + ":" + spec.Label, Key: desc.Key(), Retryable: true, Err: err}
			}
			variants[i] = variant
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return variants, nil
}

func (w *Worker) generateVariant(ctx context.Context, desc UploadDescriptor, source *sourceFile, workDir string, spec VariantSpec) (Variant, error) {
	if err := ctx.Err(); err != nil {
		return Variant{}, err
	}

	path := filepath.Join(workDir, "variant-"+spec.Label+fileExt(desc.Filename))
	defer os.Remove(path)

	result, err := w.generator.Generate(source.path, path, spec.LongEdge)
	if err != nil {
		return Variant{}, fmt.Errorf("resize to %d: %w", spec.LongEdge, err)
	}

	key := desc.PublicKey(spec.Label)
	if err := w.uploadFile(ctx, key, path, result.ContentType); err != nil {
		return Variant{}, err
	}
	w.metrics.incVariants()

	return Variant{
		Label:     spec.Label,
		Key:       key,
		Width:     result.Width,
		Height:    result.Height,
		SizeBytes: result.SizeBytes,
	}, nil
}

// publishOriginal also returns the content type the original was written
// with. Sources the generator cannot encode (webp, no extension) come out as
// JPEG under the unchanged key.
func (w *Worker) publishOriginal(ctx context.Context, desc UploadDescriptor, source *sourceFile, workDir string) (Variant, string, error) {
	path := filepath.Join(workDir, "original"+fileExt(desc.Filename))
	defer os.Remove(path)

	result, err := w.generator.Normalize(source.path, path)
	if err != nil {
		return Variant{}, "", &StageError{Stage: StageOriginal, Key: desc.Key(), Retryable: true, Err: err}
	}

	key := desc.PublicKey(OriginalLabel)
	if err := w.uploadFile(ctx, key, path, result.ContentType); err != nil {
		return Variant{}, "", &StageError{Stage: StageOriginal, Key: desc.Key(), Retryable: true, Err: err}
	}

	return Variant{
		Label:     OriginalLabel,
		Key:       key,
		Width:     result.Width,
		Height:    result.Height,
		SizeBytes: result.SizeBytes,
	}, result.ContentType, nil
}

func (w *Worker) uploadFile(ctx context.Context, key, path, contentType string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	if err := w.blobs.Upload(ctx, UploadParams{ObjectKey: key, MimeType: contentType}, file); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (w *Worker) persist(ctx context.Context, desc UploadDescriptor, source *sourceFile, original Variant, originalType string, variants []Variant) (*ImageRecord, error) {
	prior, err := w.images.GetImage(ctx, desc.TenantID, desc.ImageID)
	if err != nil && !errors.Is(err, ErrImageNotFound) {
		return nil, &StageError{Stage: StagePersist, Key: desc.Key(), Retryable: true, Err: err}
	}

	rec := mergeImageRecord(prior, desc, source, original, originalType, variants, w.now())
	if err := w.images.PutImage(ctx, rec); err != nil {
		return nil, &StageError{Stage: StagePersist, Key: desc.Key(), Retryable: true, Err: err}
	}
	return rec, nil
}

// mergeImageRecord overlays freshly derived fields on a prior record. Identity
// fields set on first processing (created time, filename) are kept; everything
// derived from the bytes is replaced. ContentType describes the published
// original, which may differ from the upload when it was re-encoded.
func mergeImageRecord(prior *ImageRecord, desc UploadDescriptor, source *sourceFile, original Variant, originalType string, variants []Variant, now time.Time) *ImageRecord {
	rec := &ImageRecord{}
	if prior != nil {
		*rec = *prior
	}

	rec.ID = desc.ImageID
	rec.TenantID = desc.TenantID
	rec.AlbumID = desc.AlbumID
	if rec.Filename == "" {
		rec.Filename = desc.Filename
	}
	switch {
	case originalType != "":
		rec.ContentType = originalType
	case rec.ContentType == "":
		rec.ContentType = source.contentType
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	rec.SizeBytes = source.sizeBytes
	rec.Width = original.Width
	rec.Height = original.Height
	rec.OriginalKey = original.Key
	rec.Variants = append([]Variant(nil), variants...)
	processedAt := now
	rec.ProcessedAt = &processedAt
	return rec
}

// alreadyProcessed reports whether a processed record exists. Lookup errors
// other than ErrImageNotFound are returned so the caller can retry.
func (w *Worker) alreadyProcessed(ctx context.Context, desc UploadDescriptor) (*ImageRecord, bool, error) {
	prior, err := w.images.GetImage(ctx, desc.TenantID, desc.ImageID)
	if err != nil {
		if errors.Is(err, ErrImageNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if prior == nil || prior.ProcessedAt == nil {
		return nil, false, nil
	}
	return prior, true, nil
}
