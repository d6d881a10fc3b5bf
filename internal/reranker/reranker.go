// Package reranker re-scores retrieved documents against the query using a
// dedicated rerank backend.
//
// Reranking is a quality refinement, never a gate: when the backend is
// unreachable, misconfigured or returns garbage, the orchestrator falls back
// to position-based scores so retrieval keeps working.
package reranker

import (
	"context"
	"errors"
)

// Sentinel errors.
var (
	// ErrProviderNotFound indicates an unknown provider name.
	ErrProviderNotFound = errors.New("reranker provider not found")

	// ErrInvalidProviderConfig indicates a provider config missing required fields.
	ErrInvalidProviderConfig = errors.New("invalid reranker provider config")
)

// Document is a retrieval candidate handed to the reranker.
type Document struct {
	ID      string
	Content string
	Score   float32 // similarity score from vector search
}

// ScoredDocument is a document with its rerank relevance score.
type ScoredDocument struct {
	Document
	RelevanceScore float64 // from the rerank backend, or the fallback formula
	OriginalIndex  int     // position in the input slice
}

// Result is one entry of a provider response: a reference into the candidate
// slice plus its relevance.
type Result struct {
	Index          int
	RelevanceScore float64
}

// Provider scores candidate texts against a query. Implementations return
// results best-first; indexes refer to the docs slice.
type Provider interface {
	// Rerank scores docs against the query, returning at most topN results.
	// topN <= 0 means no limit.
	Rerank(ctx context.Context, query string, docs []string, topN int) ([]Result, error)

	// Name identifies the provider in logs.
	Name() string

	// Close releases provider resources.
	Close() error
}

// State is the orchestrator lifecycle state.
type State int

const (
	// StateUninitialized means Init has not run.
	StateUninitialized State = iota
	// StateConfigLoaded means provider config was resolved but not yet applied.
	StateConfigLoaded
	// StateReady means a provider is active.
	StateReady
	// StateDegraded means no provider could be built; fallback scoring serves
	// all requests.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfigLoaded:
		return "config_loaded"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}
