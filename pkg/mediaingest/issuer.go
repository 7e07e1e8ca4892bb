package mediaingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Upload credential defaults
const (
	DefaultMaxUploadSizeBytes int64 = 50 << 20
	DefaultUploadURLExpiry          = 300 * time.Second
	minUploadSizeBytes        int64 = 1
)

// IssueUploadRequest asks for a credential to upload one image into an album.
type IssueUploadRequest struct {
	TenantID    string `json:"tenantId"`
	AlbumID     string `json:"albumId"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	// ImageID is optional; one is generated when empty
	ImageID string `json:"imageId,omitempty"`
}

// IssueUploadResult is returned by UploadURLIssuer.Issue
type IssueUploadResult struct {
	ImageID    string            `json:"imageId"`
	Credential *UploadCredential `json:"credential"`
}

// UploadURLIssuer mints write credentials for validated (tenant, album) pairs.
type UploadURLIssuer struct {
	albums       AlbumLookup
	credentials  CredentialIssuer
	maxSizeBytes int64
	expiry       time.Duration
	newID        func() string
	logger       *slog.Logger
}

// IssuerOption configures an UploadURLIssuer
type IssuerOption func(*UploadURLIssuer)

// WithMaxUploadSize overrides the upper bound of the credential's size range
func WithMaxUploadSize(bytes int64) IssuerOption {
	return func(i *UploadURLIssuer) {
		if bytes > 0 {
			i.maxSizeBytes = bytes
		}
	}
}

// WithUploadExpiry overrides how long credentials stay valid
func WithUploadExpiry(d time.Duration) IssuerOption {
	return func(i *UploadURLIssuer) {
		if d > 0 {
			i.expiry = d
		}
	}
}

// WithImageIDGenerator replaces uuid.NewString
func WithImageIDGenerator(fn func() string) IssuerOption {
	return func(i *UploadURLIssuer) {
		if fn != nil {
			i.newID = fn
		}
	}
}

// WithIssuerLogger sets the logger
func WithIssuerLogger(logger *slog.Logger) IssuerOption {
	return func(i *UploadURLIssuer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewUploadURLIssuer creates an issuer backed by the album lookup and the
// storage credential capability.
func NewUploadURLIssuer(albums AlbumLookup, credentials CredentialIssuer, opts ...IssuerOption) (*UploadURLIssuer, error) {
	if albums == nil {
		return nil, fmt.Errorf("album lookup is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("credential issuer is required")
	}

	i := &UploadURLIssuer{
		albums:       albums,
		credentials:  credentials,
		maxSizeBytes: DefaultMaxUploadSizeBytes,
		expiry:       DefaultUploadURLExpiry,
		newID:        uuid.NewString,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue validates the request, confirms the album exists and returns a
// credential for uploads/{tenantId}/{albumId}/{imageId}/original/{filename}.
// Issuing again for the same image ID simply yields a newer credential.
func (i *UploadURLIssuer) Issue(ctx context.Context, req IssueUploadRequest) (*IssueUploadResult, error) {
	if err := validateSegment("tenantId", req.TenantID); err != nil {
		return nil, err
	}
	if err := validateSegment("albumId", req.AlbumID); err != nil {
		return nil, err
	}
	if err := validateFilename(req.Filename); err != nil {
		return nil, err
	}
	prefix, err := contentTypePrefix(req.ContentType)
	if err != nil {
		return nil, err
	}
	if req.ImageID != "" {
		if err := validateSegment("imageId", req.ImageID); err != nil {
			return nil, err
		}
	}

	if _, err := i.albums.GetAlbum(ctx, req.TenantID, req.AlbumID); err != nil {
		return nil, err
	}

	imageID := req.ImageID
	if imageID == "" {
		imageID = i.newID()
	}
	key := UploadKey(req.TenantID, req.AlbumID, imageID, req.Filename)

	credential, err := i.credentials.PresignUpload(ctx, PresignUploadParams{
		Key:               key,
		ContentTypePrefix: prefix,
		MinSizeBytes:      minUploadSizeBytes,
		MaxSizeBytes:      i.maxSizeBytes,
		Expires:           i.expiry,
	})
	if err != nil {
		return nil, fmt.Errorf("presign upload for %s: %w", key, err)
	}

	i.logger.Info("Upload credential issued", "tenant_id", req.TenantID, "album_id", req.AlbumID, "image_id", imageID, "expires_at", credential.ExpiresAt)

	return &IssueUploadResult{
		ImageID:    imageID,
		Credential: credential,
	}, nil
}
