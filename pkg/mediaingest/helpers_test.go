package mediaingest_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/mediaingest"
	eventmemory "github.com/tendant/simple-media/pkg/mediaingest/eventbus/memory"
	"github.com/tendant/simple-media/pkg/mediaingest/imageproc"
	repomemory "github.com/tendant/simple-media/pkg/mediaingest/repo/memory"
	storagememory "github.com/tendant/simple-media/pkg/mediaingest/storage/memory"
)

const testBucket = "media"

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func encodeImage(t *testing.T, width, height int, format imaging.Format) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y += 7 {
		for x := 0; x < width; x += 7 {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

// failingDeletes wraps a BlobStore and fails every Delete
type failingDeletes struct {
	mediaingest.BlobStore
	mu       sync.Mutex
	attempts int
}

func (f *failingDeletes) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	return errors.New("access denied")
}

// failingDownloads fails every Download with err
type failingDownloads struct {
	mediaingest.BlobStore
	err error
}

func (f *failingDownloads) Download(ctx context.Context, key string) (io.ReadCloser, *mediaingest.ObjectMeta, error) {
	return nil, nil, f.err
}

// failingLookups fails every GetImage with err
type failingLookups struct {
	mediaingest.ImageMetadataStore
	err error
}

func (f *failingLookups) GetImage(ctx context.Context, tenantID, imageID string) (*mediaingest.ImageRecord, error) {
	return nil, f.err
}

type pipeline struct {
	blobs    *storagememory.Backend
	repo     *repomemory.Repository
	events   *eventmemory.Recorder
	registry *prometheus.Registry
	worker   *mediaingest.Worker
}

func newPipeline(t *testing.T, opts ...mediaingest.WorkerOption) *pipeline {
	t.Helper()
	p := &pipeline{
		blobs:    storagememory.New(testBucket),
		repo:     repomemory.New(),
		events:   eventmemory.NewRecorder(),
		registry: prometheus.NewRegistry(),
	}
	metrics, err := mediaingest.NewMetrics(p.registry)
	require.NoError(t, err)

	base := []mediaingest.WorkerOption{
		mediaingest.WithBlobStore(p.blobs),
		mediaingest.WithMetadataStore(p.repo),
		mediaingest.WithEventPublisher(p.events),
		mediaingest.WithVariantGenerator(imageproc.New()),
		mediaingest.WithWorkDir(t.TempDir()),
		mediaingest.WithMetrics(metrics),
		mediaingest.WithClock(func() time.Time { return fixedNow }),
	}
	p.worker, err = mediaingest.NewWorker(append(base, opts...)...)
	require.NoError(t, err)
	return p
}

// counterValue sums the counter samples of name matching the given labels
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := true
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					matched = false
				}
			}
			if matched {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total
}

func newGenerator() mediaingest.VariantGenerator {
	return imageproc.New()
}
