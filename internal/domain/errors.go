package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery means the caller supplied neither or both modalities,
	// or a k below 1. Rejected before any remote call.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrAlreadyExists means an index was created twice with conflicting
	// configuration. Re-creation with identical configuration is not an error.
	ErrAlreadyExists = errors.New("index already exists")

	// ErrStoreUnavailable marks a transient vector store failure. Safe to
	// retry with backoff at the caller or ingestion level.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrUnavailable marks a transient model-serving failure.
	ErrUnavailable = errors.New("encoder unavailable")

	// ErrTimeout means a bounded operation exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")
)

// EncodingError reports malformed input or a model failure. When the failure
// is infrastructure-side, Err wraps ErrUnavailable or ErrTimeout.
type EncodingError struct {
	Modality Modality
	Reason   string
	Err      error
}

func (e *EncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encode %s: %s: %v", e.Modality, e.Reason, e.Err)
	}
	return fmt.Sprintf("encode %s: %s", e.Modality, e.Reason)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// DimensionMismatchError indicates encoder/store version skew. It should
// never occur at steady state and is not retriable.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: index expects %d, got %d", e.Want, e.Got)
}

// IsClientError reports whether err was caused by the caller's input rather
// than by infrastructure, so transports can choose a 4xx over a 5xx and
// callers know a retry is pointless.
func IsClientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout) {
		return false
	}
	if errors.Is(err, ErrInvalidQuery) {
		return true
	}
	var enc *EncodingError
	return errors.As(err, &enc)
}
