package mediaingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// UploadCompletionNotifier emits the advisory ImageUploaded signal once a
// client reports that its direct upload finished. Processing is driven by the
// storage notification, not by this call.
type UploadCompletionNotifier struct {
	albums    AlbumLookup
	publisher EventPublisher
	now       func() time.Time
	logger    *slog.Logger
}

// NewUploadCompletionNotifier creates a notifier
func NewUploadCompletionNotifier(albums AlbumLookup, publisher EventPublisher, logger *slog.Logger) (*UploadCompletionNotifier, error) {
	if albums == nil {
		return nil, fmt.Errorf("album lookup is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("event publisher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadCompletionNotifier{
		albums:    albums,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}, nil
}

// NotifyUploaded re-checks the album and publishes ImageUploaded with the image
// ID as event ID so consumers can drop duplicates.
func (n *UploadCompletionNotifier) NotifyUploaded(ctx context.Context, tenantID, albumID, imageID string) (*Event, error) {
	if err := validateSegment("tenantId", tenantID); err != nil {
		return nil, err
	}
	if err := validateSegment("albumId", albumID); err != nil {
		return nil, err
	}
	if err := validateSegment("imageId", imageID); err != nil {
		return nil, err
	}

	if _, err := n.albums.GetAlbum(ctx, tenantID, albumID); err != nil {
		return nil, err
	}

	event := Event{
		ID:         imageID,
		Type:       EventTypeImageUploaded,
		OccurredAt: n.now(),
		TenantID:   tenantID,
		Payload: ImageUploadedPayload{
			AlbumID: albumID,
			ImageID: imageID,
		},
	}
	if err := n.publisher.Publish(ctx, event); err != nil {
		return nil, fmt.Errorf("publish %s: %w", EventTypeImageUploaded, err)
	}

	n.logger.Info("Image upload reported", "tenant_id", tenantID, "album_id", albumID, "image_id", imageID)
	return &event, nil
}
