package mediaingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "validation", err: &ValidationError{Field: "filename", Reason: "is required"}, want: false},
		{name: "album not found", err: ErrAlbumNotFound, want: false},
		{name: "wrapped not found", err: fmt.Errorf("lookup: %w", ErrImageNotFound), want: false},
		{name: "retryable stage", err: &StageError{Stage: StageDownload, Retryable: true, Err: errors.New("timeout")}, want: true},
		{name: "final stage", err: &StageError{Stage: StageDownload, Retryable: false, Err: ErrObjectNotFound}, want: false},
		{name: "unknown error", err: context.DeadlineExceeded, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	assert.ErrorIs(t, ErrAlbumNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrObjectNotFound, ErrNotFound)
	assert.ErrorIs(t, &ValidationError{Field: "x", Reason: "y"}, ErrValidation)

	storageErr := &StorageError{Backend: "s3", Key: "k", Op: "download", Err: ErrObjectNotFound}
	stageErr := &StageError{Stage: StageDownload, Key: "k", Err: storageErr}
	assert.ErrorIs(t, stageErr, ErrObjectNotFound)
	assert.Contains(t, stageErr.Error(), "download")
}

func TestContentTypePrefix(t *testing.T) {
	prefix, err := contentTypePrefix("image/jpeg")
	assert.NoError(t, err)
	assert.Equal(t, "image/", prefix)

	prefix, err = contentTypePrefix("image/png; charset=binary")
	assert.NoError(t, err)
	assert.Equal(t, "image/", prefix)

	for _, bad := range []string{"", "image", "/png", "not a type"} {
		_, err := contentTypePrefix(bad)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}
}
