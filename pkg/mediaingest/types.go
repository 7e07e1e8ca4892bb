package mediaingest

import (
	"time"
)

// Event type names
const (
	EventTypeImageUploaded  = "ImageUploaded"
	EventTypeImageProcessed = "ImageProcessed"
)

// UploadDescriptor identifies a raw upload. It is derived from the storage key
// and never persisted on its own.
type UploadDescriptor struct {
	TenantID string `json:"tenantId"`
	AlbumID  string `json:"albumId"`
	ImageID  string `json:"imageId"`
	Filename string `json:"filename"`
}

// VariantSpec names a derived size by the length of its long edge.
type VariantSpec struct {
	Label    string `json:"label"`
	LongEdge int    `json:"longEdge"`
}

// Variant is one resized derivative stored under the public prefix.
type Variant struct {
	Label     string `json:"label"`
	Key       string `json:"key"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	SizeBytes int64  `json:"sizeBytes"`
}

// ImageRecord is the authoritative metadata for a processed image.
type ImageRecord struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	AlbumID     string     `json:"albumId"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"contentType"`
	SizeBytes   int64      `json:"sizeBytes"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	CreatedAt   time.Time  `json:"createdAt"`
	OriginalKey string     `json:"originalKey"`
	Variants    []Variant  `json:"variants"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

// Album is the subset of the album domain object this package depends on.
type Album struct {
	TenantID string `json:"tenantId"`
	AlbumID  string `json:"albumId"`
	Name     string `json:"name,omitempty"`
}

// Event is the envelope published to the event bus.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	TenantID   string    `json:"tenantId"`
	Payload    any       `json:"payload"`
}

// ImageUploadedPayload is the payload of an ImageUploaded event
type ImageUploadedPayload struct {
	AlbumID string `json:"albumId"`
	ImageID string `json:"imageId"`
}

// ImageProcessedPayload is the payload of an ImageProcessed event
type ImageProcessedPayload struct {
	AlbumID     string    `json:"albumId"`
	ImageID     string    `json:"imageId"`
	OriginalKey string    `json:"originalKey"`
	Variants    []Variant `json:"variants"`
}

// UploadCredential is a time-boxed, constrained permission to write one object
// directly to the media bucket with an HTML form POST.
type UploadCredential struct {
	URL       string            `json:"url"`
	Fields    map[string]string `json:"fields"`
	Key       string            `json:"key"`
	ExpiresAt time.Time         `json:"expiresAtIso"`
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	ETag        string
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey    string
	MimeType     string
	CacheControl string
}

// PresignUploadParams describes the constraints placed on an upload credential.
type PresignUploadParams struct {
	Key               string
	ContentTypePrefix string
	MinSizeBytes      int64
	MaxSizeBytes      int64
	Expires           time.Duration
}

// StorageRecord is a single object-created notification.
type StorageRecord struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	Size      int64  `json:"size,omitempty"`
	EventName string `json:"eventName,omitempty"`
}
