package mediaingest

import (
	"context"
	"io"
)

// AlbumLookup resolves albums owned by the external album domain.
type AlbumLookup interface {
	// GetAlbum returns the album or ErrAlbumNotFound
	GetAlbum(ctx context.Context, tenantID, albumID string) (*Album, error)
}

// CredentialIssuer mints scoped write credentials for the media bucket
type CredentialIssuer interface {
	PresignUpload(ctx context.Context, params PresignUploadParams) (*UploadCredential, error)
}

// BlobStore defines the storage operations the ingest worker needs
type BlobStore interface {
	// Download opens the object for reading and reports its metadata
	Download(ctx context.Context, objectKey string) (io.ReadCloser, *ObjectMeta, error)

	// Upload writes the object, replacing any existing object at the key
	Upload(ctx context.Context, params UploadParams, reader io.Reader) error

	// Delete removes the object. Deleting a missing object succeeds.
	Delete(ctx context.Context, objectKey string) error
}

// ImageMetadataStore persists ImageRecords keyed by (tenant, image).
type ImageMetadataStore interface {
	// GetImage returns the record or ErrImageNotFound
	GetImage(ctx context.Context, tenantID, imageID string) (*ImageRecord, error)

	// PutImage overwrites the record unconditionally
	PutImage(ctx context.Context, record *ImageRecord) error
}

// EventPublisher delivers events at least once, without ordering guarantees
// across events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// VariantResult describes an encoded image written to disk
type VariantResult struct {
	Width       int
	Height      int
	SizeBytes   int64
	ContentType string
}

// VariantGenerator transforms local image files.
type VariantGenerator interface {
	// Probe returns the orientation-corrected dimensions of the source
	Probe(srcPath string) (width, height int, err error)

	// Generate resizes the source to fit within longEdge x longEdge without
	// cropping or enlarging, and writes it to dstPath
	Generate(srcPath, dstPath string, longEdge int) (VariantResult, error)

	// Normalize writes the orientation-corrected source at its full size
	Normalize(srcPath, dstPath string) (VariantResult, error)
}
