package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-media/pkg/mediaingest"
)

// UploadIssuer is implemented by *mediaingest.UploadURLIssuer
type UploadIssuer interface {
	Issue(ctx context.Context, req mediaingest.IssueUploadRequest) (*mediaingest.IssueUploadResult, error)
}

// UploadNotifier is implemented by *mediaingest.UploadCompletionNotifier
type UploadNotifier interface {
	NotifyUploaded(ctx context.Context, tenantID, albumID, imageID string) (*mediaingest.Event, error)
}

// BatchHandler is implemented by *mediaingest.StorageEventListener
type BatchHandler interface {
	HandleBatch(ctx context.Context, records []mediaingest.StorageRecord) error
}

// MediaHandler serves the upload, read and storage-notification endpoints
type MediaHandler struct {
	issuer   UploadIssuer
	notifier UploadNotifier
	images   mediaingest.ImageMetadataStore
	listener BatchHandler
	logger   *slog.Logger

	webhookToken string
}

// HandlerOption configures a MediaHandler
type HandlerOption func(*MediaHandler)

// WithWebhookToken enables /storage-events and requires MinIO's webhook
// auth_token on every call. Without a token the endpoint is not mounted.
func WithWebhookToken(token string) HandlerOption {
	return func(h *MediaHandler) {
		h.webhookToken = strings.TrimSpace(token)
	}
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(issuer UploadIssuer, notifier UploadNotifier, images mediaingest.ImageMetadataStore, listener BatchHandler, logger *slog.Logger, opts ...HandlerOption) *MediaHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &MediaHandler{
		issuer:   issuer,
		notifier: notifier,
		images:   images,
		listener: listener,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the routes mounted under /api/v1
func (h *MediaHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.Post("/albums/{albumID}/uploads", h.IssueUpload)
		r.Post("/albums/{albumID}/images/{imageID}/uploaded", h.NotifyUploaded)
		r.Get("/images/{imageID}", h.GetImage)
	})
	if h.webhookToken != "" {
		r.With(h.requireWebhookToken).Post("/storage-events", h.StorageEvents)
	}

	return r
}

// IssueUploadRequest is the request body for an upload credential
type IssueUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	ImageID     string `json:"imageId,omitempty"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// IssueUpload returns a presigned POST credential for a new image
func (h *MediaHandler) IssueUpload(w http.ResponseWriter, r *http.Request) {
	var req IssueUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.issuer.Issue(r.Context(), mediaingest.IssueUploadRequest{
		TenantID:    chi.URLParam(r, "tenantID"),
		AlbumID:     chi.URLParam(r, "albumID"),
		Filename:    req.Filename,
		ContentType: req.ContentType,
		ImageID:     req.ImageID,
	})
	if err != nil {
		h.handleError(w, r, "Failed to issue upload credential", err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// NotifyUploaded records that the client finished its direct upload
func (h *MediaHandler) NotifyUploaded(w http.ResponseWriter, r *http.Request) {
	event, err := h.notifier.NotifyUploaded(r.Context(),
		chi.URLParam(r, "tenantID"),
		chi.URLParam(r, "albumID"),
		chi.URLParam(r, "imageID"),
	)
	if err != nil {
		h.handleError(w, r, "Failed to record upload", err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, event)
}

// GetImage returns the processed ImageRecord
func (h *MediaHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	rec, err := h.images.GetImage(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "imageID"))
	if err != nil {
		h.handleError(w, r, "Failed to get image", err)
		return
	}
	render.JSON(w, r, rec)
}

// StorageEvents accepts MinIO webhook notifications. A 5xx response makes
// MinIO redeliver, so it is only returned for retryable failures.
func (h *MediaHandler) StorageEvents(w http.ResponseWriter, r *http.Request) {
	var event events.S3Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.writeError(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid notification body"})
		return
	}

	if err := h.listener.HandleBatch(r.Context(), mediaingest.RecordsFromS3Event(event)); err != nil {
		h.logger.Error("Storage notification failed", "err", err)
		h.writeError(w, r, http.StatusInternalServerError, ErrorResponse{Error: "processing failed"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireWebhookToken accepts "Authorization: Bearer <token>" and the bare
// token, which is what MinIO sends for a two-part auth_token.
func (h *MediaHandler) requireWebhookToken(next http.Handler) http.Handler {
	expected := []byte("Bearer " + h.webhookToken)
	bare := []byte(h.webhookToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, expected) != 1 && subtle.ConstantTimeCompare(got, bare) != 1 {
			h.logger.Warn("Rejected storage notification", "remote_addr", r.RemoteAddr)
			h.writeError(w, r, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *MediaHandler) handleError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var validationErr *mediaingest.ValidationError
	switch {
	case errors.As(err, &validationErr):
		h.writeError(w, r, http.StatusBadRequest, ErrorResponse{Error: validationErr.Reason, Field: validationErr.Field})
	case errors.Is(err, mediaingest.ErrValidation):
		h.writeError(w, r, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, mediaingest.ErrNotFound):
		h.writeError(w, r, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error(msg, "path", r.URL.Path, "err", err)
		h.writeError(w, r, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func (h *MediaHandler) writeError(w http.ResponseWriter, r *http.Request, status int, body ErrorResponse) {
	render.Status(r, status)
	render.JSON(w, r, body)
}
