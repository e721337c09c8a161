package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidChunkConfig signals a bad window/overlap relationship.
	ErrInvalidChunkConfig = errors.New("invalid chunk configuration")
	// ErrInvalidDocType signals an unknown document type.
	ErrInvalidDocType = errors.New("invalid document type")
	// ErrUnsupportedFilter signals a filter key outside symbol/doc_type/timeframe.
	ErrUnsupportedFilter = errors.New("unsupported filter key")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrChunkNotFound signals a missing chunk.
	ErrChunkNotFound = errors.New("chunk not found")
	// ErrDimensionMismatch signals a vector whose length differs from the
	// collection dimension. Mixing dimensions is an error, never tolerated.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrRateLimited signals an exhausted generation quota.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding backend failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationProviderError signals a generation backend failure.
	ErrGenerationProviderError = errors.New("generation provider error")
	// ErrBackendUnavailable signals a backend that cannot be reached at construction.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// RateLimitScope identifies which sliding-window bucket was exhausted.
type RateLimitScope string

const (
	// ScopeMinute is the per-minute request cap.
	ScopeMinute RateLimitScope = "minute"
	// ScopeDay is the per-day request cap.
	ScopeDay RateLimitScope = "day"
)

// RateLimitError wraps ErrRateLimited with the exhausted scope and its cap.
type RateLimitError struct {
	Scope RateLimitScope
	Limit int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per %s", e.Limit, e.Scope)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// NewRateLimitError creates a rate limit error for the given scope.
func NewRateLimitError(scope RateLimitScope, limit int) error {
	return &RateLimitError{Scope: scope, Limit: limit}
}
