package mediaingest

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrValidation indicates malformed input; never retried
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is the parent of all lookup misses
	ErrNotFound = errors.New("not found")

	// ErrAlbumNotFound indicates the album does not exist for the tenant
	ErrAlbumNotFound = fmt.Errorf("album %w", ErrNotFound)

	// ErrImageNotFound indicates no ImageRecord exists yet
	ErrImageNotFound = fmt.Errorf("image %w", ErrNotFound)

	// ErrObjectNotFound indicates the storage object does not exist
	ErrObjectNotFound = fmt.Errorf("object %w", ErrNotFound)
)

// ValidationError reports which input field was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// StageError represents a failed worker stage for a single upload key
type StageError struct {
	Stage     string
	Key       string
	Retryable bool
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("ingest stage %s failed for key %s: %v", e.Stage, e.Key, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the invoking transport should redeliver the
// notification that produced err. Validation and not-found errors are final;
// anything else is treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Retryable
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
		return false
	}
	return true
}
