package memory

import (
	"context"
	"sync"

	"github.com/tendant/simple-media/pkg/mediaingest"
)

// Repository implements mediaingest.ImageMetadataStore and
// mediaingest.AlbumLookup using in-memory storage
type Repository struct {
	mu     sync.RWMutex
	images map[string]*mediaingest.ImageRecord // "tenant/image" -> record
	albums map[string]*mediaingest.Album       // "tenant/album" -> album
	puts   map[string]int
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		images: make(map[string]*mediaingest.ImageRecord),
		albums: make(map[string]*mediaingest.Album),
		puts:   make(map[string]int),
	}
}

func compositeKey(tenantID, id string) string {
	return tenantID + "/" + id
}

func copyRecord(rec *mediaingest.ImageRecord) *mediaingest.ImageRecord {
	cp := *rec
	cp.Variants = append([]mediaingest.Variant(nil), rec.Variants...)
	if rec.ProcessedAt != nil {
		processedAt := *rec.ProcessedAt
		cp.ProcessedAt = &processedAt
	}
	return &cp
}

// GetImage returns a copy of the stored record
func (r *Repository) GetImage(ctx context.Context, tenantID, imageID string) (*mediaingest.ImageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.images[compositeKey(tenantID, imageID)]
	if !exists {
		return nil, mediaingest.ErrImageNotFound
	}
	return copyRecord(rec), nil
}

// PutImage overwrites the stored record
func (r *Repository) PutImage(ctx context.Context, record *mediaingest.ImageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := compositeKey(record.TenantID, record.ID)
	r.images[key] = copyRecord(record)
	r.puts[key]++
	return nil
}

// Puts returns how many times the record was written
func (r *Repository) Puts(tenantID, imageID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.puts[compositeKey(tenantID, imageID)]
}

// Count returns the number of stored image records
func (r *Repository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.images)
}

// GetAlbum returns the album or mediaingest.ErrAlbumNotFound
func (r *Repository) GetAlbum(ctx context.Context, tenantID, albumID string) (*mediaingest.Album, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	album, exists := r.albums[compositeKey(tenantID, albumID)]
	if !exists {
		return nil, mediaingest.ErrAlbumNotFound
	}
	cp := *album
	return &cp, nil
}

// PutAlbum registers an album; albums are owned elsewhere, this exists for
// tests and local development
func (r *Repository) PutAlbum(album mediaingest.Album) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.albums[compositeKey(album.TenantID, album.AlbumID)] = &album
}
