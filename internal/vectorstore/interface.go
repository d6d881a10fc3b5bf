// Package vectorstore defines the tenant-scoped point store contract and its
// implementations.
//
// The store is a tenant-agnostic record keeper: isolation is enforced by the
// filters callers build, never by the store itself. Filter builders in this
// package put the tenant match first and fail closed when it is missing.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyPoints indicates an empty or nil point batch.
	ErrEmptyPoints = errors.New("empty or nil points")

	// ErrEmptyPayload indicates an empty payload patch.
	ErrEmptyPayload = errors.New("empty payload patch")

	// ErrConnectionFailed indicates transport-level store failure.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrMissingTenantFilter indicates a filter without a leading tenant match.
	ErrMissingTenantFilter = errors.New("filter must lead with a tenant condition")
)

// ScrollOptions controls which parts of a point a scroll returns.
type ScrollOptions struct {
	WithPayload bool
	WithVector  bool
}

// Store is the contract against an existing vector point store.
//
// Implementations are transport-specific (Qdrant gRPC, in-memory); all of
// them operate on a single collection bound at construction time. Callers
// maintain tenant isolation through the Filter they pass in - every filter
// built by this package leads with the tenant match.
type Store interface {
	// Scroll returns all points matching the filter. Pagination is handled
	// internally; the result is the complete match set.
	Scroll(ctx context.Context, filter *Filter, opts ScrollOptions) ([]*Point, error)

	// BatchSave upserts points. Existing ids are overwritten.
	BatchSave(ctx context.Context, points []*Point) error

	// BatchDelete removes every point matching the filter.
	BatchDelete(ctx context.Context, filter *Filter) error

	// UpdatePayload merges the partial payload into every matching point.
	// Vectors are never touched.
	UpdatePayload(ctx context.Context, filter *Filter, payload map[string]interface{}) error

	// Search performs similarity search, best matches first.
	Search(ctx context.Context, vector []float32, limit uint64, filter *Filter) ([]*ScoredPoint, error)

	// EstimateSize returns the approximate wire size of a point batch in bytes.
	EstimateSize(points []*Point) int

	// Close releases the store connection.
	Close() error
}
