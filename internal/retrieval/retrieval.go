// Package retrieval coordinates query embedding, filtered vector search and
// optional reranking into one read path.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/embeddings"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/reranker"
	"github.com/fyrsmithlabs/ragstore/internal/tenant"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// ErrInvalidInput indicates invalid caller arguments.
var ErrInvalidInput = errors.New("invalid input")

// defaultLimit applies when a query does not set one.
const defaultLimit = 10

// Query describes one retrieval request. Either Text or Vector must be set;
// when both are present the vector wins and no embedding call is made.
type Query struct {
	Text   string
	Vector []float32
	Limit  uint64

	// Optional scope narrowing. Zero values mean "no constraint".
	NodeTypes  []string
	URL        string
	DocID      string
	ResourceID string
	ProjectID  string

	// Rerank requests re-scoring of the hits against Text.
	Rerank bool
}

// Result is one retrieval hit.
type Result struct {
	ID      string                 `json:"id"`
	Content string                 `json:"content"`
	Score   float32                `json:"score"`
	Payload map[string]interface{} `json:"payload,omitempty"`

	// RelevanceScore is set when the result went through the reranker.
	RelevanceScore *float64 `json:"relevance_score,omitempty"`
}

// Coordinator runs the retrieval read path.
type Coordinator struct {
	store    vectorstore.Store
	embedder embeddings.Embedder
	reranker *reranker.Orchestrator
	logger   *logging.Logger
}

// New creates a Coordinator. The reranker may be nil; rerank requests are
// then answered with the plain search order.
func New(store vectorstore.Store, embedder embeddings.Embedder, rr *reranker.Orchestrator, logger *logging.Logger) (*Coordinator, error) {
	if store == nil || embedder == nil || logger == nil {
		return nil, fmt.Errorf("store, embedder and logger are required")
	}
	return &Coordinator{store: store, embedder: embedder, reranker: rr, logger: logger}, nil
}

// Retrieve searches the tenant's points for the query. Results come back
// best-first. Reranking only happens when the query asks for it.
func (c *Coordinator) Retrieve(ctx context.Context, tenantID string, q Query) ([]Result, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if q.Text == "" && len(q.Vector) == 0 {
		return nil, fmt.Errorf("%w: query text or vector required", ErrInvalidInput)
	}

	filter, err := c.buildFilter(tenantID, q)
	if err != nil {
		return nil, err
	}

	vector := q.Vector
	if len(vector) == 0 {
		vector, err = c.embedder.EmbedQuery(ctx, q.Text)
		if err != nil {
			return nil, fmt.Errorf("embedding query: %w", err)
		}
	}

	limit := q.Limit
	if limit == 0 {
		limit = defaultLimit
	}

	hits, err := c.store.Search(ctx, vector, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			ID:      h.ID,
			Content: h.Content(),
			Score:   h.Score,
			Payload: h.Payload,
		}
	}

	if q.Rerank && c.reranker != nil && len(results) > 0 {
		results = c.rerank(ctx, q.Text, results)
	}

	c.logger.Debug(ctx, "retrieved results",
		zap.Int("hits", len(results)),
		zap.Bool("reranked", q.Rerank),
	)
	return results, nil
}

// rerank re-orders results by backend relevance. The orchestrator absorbs
// every backend failure, so this cannot fail.
func (c *Coordinator) rerank(ctx context.Context, query string, results []Result) []Result {
	docs := make([]reranker.Document, len(results))
	for i, r := range results {
		docs[i] = reranker.Document{ID: r.ID, Content: r.Content, Score: r.Score}
	}

	scored := c.reranker.Rerank(ctx, query, docs)
	out := make([]Result, len(scored))
	for i, s := range scored {
		r := results[s.OriginalIndex]
		score := s.RelevanceScore
		r.RelevanceScore = &score
		out[i] = r
	}
	return out
}

// buildFilter assembles the tenant-first filter from the query's scope
// fields.
func (c *Coordinator) buildFilter(tenantID string, q Query) (*vectorstore.Filter, error) {
	var extra []vectorstore.Condition

	if len(q.NodeTypes) > 0 {
		for _, nt := range q.NodeTypes {
			if !vectorstore.NodeType(nt).Valid() {
				return nil, fmt.Errorf("%w: unknown node type: %q", ErrInvalidInput, nt)
			}
		}
		extra = append(extra, vectorstore.Condition{Field: vectorstore.KeyNodeType, MatchAny: q.NodeTypes})
	}
	if q.URL != "" {
		extra = append(extra, vectorstore.Condition{Field: vectorstore.KeyURL, Match: q.URL})
	}
	if q.DocID != "" {
		extra = append(extra, vectorstore.Condition{Field: vectorstore.KeyDocID, Match: q.DocID})
	}
	if q.ResourceID != "" {
		extra = append(extra, vectorstore.Condition{Field: vectorstore.KeyResourceID, Match: q.ResourceID})
	}
	if q.ProjectID != "" {
		extra = append(extra, vectorstore.Condition{Field: vectorstore.KeyProjectID, Match: q.ProjectID})
	}

	filter, err := vectorstore.TenantFilter(tenantID, extra...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return filter, nil
}

// Duplicate copies every stored point of the source entity into the target
// tenant under the target entity, without re-embedding. Point ids derive
// from the source tenant, target entity and chunk ordinal, so repeating a
// duplicate overwrites the previous copy.
func (c *Coordinator) Duplicate(ctx context.Context, sourceTenant, targetTenant string, source, target vectorstore.Entity) (int, error) {
	for _, id := range []string{sourceTenant, targetTenant} {
		if err := tenant.ValidateID(id); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	for _, e := range []vectorstore.Entity{source, target} {
		if !e.Type.Valid() {
			return 0, fmt.Errorf("%w: unknown node type: %q", ErrInvalidInput, e.Type)
		}
		if e.ID == "" {
			return 0, fmt.Errorf("%w: entity id required", ErrInvalidInput)
		}
	}

	filter, err := vectorstore.EntityFilter(sourceTenant, source)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	points, err := c.store.Scroll(ctx, filter, vectorstore.ScrollOptions{WithPayload: true, WithVector: true})
	if err != nil {
		return 0, fmt.Errorf("loading source points: %w", err)
	}
	if len(points) == 0 {
		return 0, nil
	}

	copies := make([]*vectorstore.Point, len(points))
	for i, p := range points {
		payload := make(map[string]interface{}, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = v
		}
		delete(payload, vectorstore.KeyDocID)
		delete(payload, vectorstore.KeyResourceID)
		payload[vectorstore.KeyTenantID] = targetTenant
		payload[vectorstore.KeyNodeType] = string(target.Type)
		payload[target.IDField()] = target.ID

		seq := p.Seq()
		if seq < 0 {
			seq = i
		}
		copies[i] = &vectorstore.Point{
			ID:      vectorstore.DeterministicID(sourceTenant, target.ID, strconv.Itoa(seq)),
			Vector:  p.Vector,
			Payload: payload,
		}
	}

	if err := c.store.BatchSave(ctx, copies); err != nil {
		return 0, fmt.Errorf("saving duplicated points: %w", err)
	}

	c.logger.Info(ctx, "duplicated entity points",
		zap.String("source_entity", source.ID),
		zap.String("target_entity", target.ID),
		zap.Int("points", len(copies)),
	)
	return len(copies), nil
}
