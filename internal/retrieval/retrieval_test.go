package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragstore/internal/config"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/reranker"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// staticEmbedder returns a fixed vector for any input.
type staticEmbedder struct {
	vector []float32
	calls  int
}

func (s *staticEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = s.vector
	}
	return out, nil
}

func (s *staticEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	return s.vector, nil
}

func seedPoints(t *testing.T, store *vectorstore.MemoryStore) {
	t.Helper()
	points := []*vectorstore.Point{
		{
			ID:     vectorstore.DeterministicID("doc-1", "0"),
			Vector: []float32{1, 0},
			Payload: map[string]interface{}{
				vectorstore.KeyTenantID:  "u-1",
				vectorstore.KeyNodeType:  string(vectorstore.NodeTypeDocument),
				vectorstore.KeyDocID:     "doc-1",
				vectorstore.KeyContent:   "vector databases",
				vectorstore.KeySeq:       0,
				vectorstore.KeyProjectID: "p-1",
			},
		},
		{
			ID:     vectorstore.DeterministicID("res-1", "0"),
			Vector: []float32{0, 1},
			Payload: map[string]interface{}{
				vectorstore.KeyTenantID:   "u-1",
				vectorstore.KeyNodeType:   string(vectorstore.NodeTypeResource),
				vectorstore.KeyResourceID: "res-1",
				vectorstore.KeyContent:    "cooking recipes",
				vectorstore.KeySeq:        0,
				vectorstore.KeyURL:        "https://example.com/recipes",
			},
		},
		{
			ID:     vectorstore.DeterministicID("doc-9", "0"),
			Vector: []float32{1, 0},
			Payload: map[string]interface{}{
				vectorstore.KeyTenantID: "u-2",
				vectorstore.KeyNodeType: string(vectorstore.NodeTypeDocument),
				vectorstore.KeyDocID:    "doc-9",
				vectorstore.KeyContent:  "other tenant data",
				vectorstore.KeySeq:      0,
			},
		},
	}
	require.NoError(t, store.BatchSave(context.Background(), points))
}

func newCoordinator(t *testing.T, store *vectorstore.MemoryStore, rr *reranker.Orchestrator) (*Coordinator, *staticEmbedder) {
	t.Helper()
	emb := &staticEmbedder{vector: []float32{1, 0}}
	c, err := New(store, emb, rr, logging.NewNop())
	require.NoError(t, err)
	return c, emb
}

func TestRetrieve(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	seedPoints(t, store)
	c, emb := newCoordinator(t, store, nil)

	results, err := c.Retrieve(context.Background(), "u-1", Query{Text: "databases"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "vector databases", results[0].Content)
	assert.Equal(t, 1, emb.calls)

	for _, r := range results {
		assert.NotEqual(t, "other tenant data", r.Content, "tenant isolation")
		assert.Nil(t, r.RelevanceScore, "no implicit rerank")
	}
}

func TestRetrieveWithVectorSkipsEmbedding(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	seedPoints(t, store)
	c, emb := newCoordinator(t, store, nil)

	results, err := c.Retrieve(context.Background(), "u-1", Query{Vector: []float32{0, 1}})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "cooking recipes", results[0].Content)
	assert.Equal(t, 0, emb.calls)
}

func TestRetrieveScopeFilters(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	seedPoints(t, store)
	c, _ := newCoordinator(t, store, nil)
	ctx := context.Background()

	t.Run("node types", func(t *testing.T) {
		results, err := c.Retrieve(ctx, "u-1", Query{Text: "q", NodeTypes: []string{"resource"}})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "cooking recipes", results[0].Content)
	})

	t.Run("url", func(t *testing.T) {
		results, err := c.Retrieve(ctx, "u-1", Query{Text: "q", URL: "https://example.com/recipes"})
		require.NoError(t, err)
		require.Len(t, results, 1)
	})

	t.Run("project id", func(t *testing.T) {
		results, err := c.Retrieve(ctx, "u-1", Query{Text: "q", ProjectID: "p-1"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "vector databases", results[0].Content)
	})

	t.Run("doc id no match", func(t *testing.T) {
		results, err := c.Retrieve(ctx, "u-1", Query{Text: "q", DocID: "doc-404"})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("invalid node type", func(t *testing.T) {
		_, err := c.Retrieve(ctx, "u-1", Query{Text: "q", NodeTypes: []string{"folder"}})
		require.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestRetrieveValidation(t *testing.T) {
	c, _ := newCoordinator(t, vectorstore.NewMemoryStore(), nil)
	ctx := context.Background()

	_, err := c.Retrieve(ctx, "", Query{Text: "q"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.Retrieve(ctx, "u-1", Query{})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRetrieveWithRerank(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	seedPoints(t, store)

	// A degraded orchestrator scores by position, preserving search order.
	rr := reranker.NewOrchestrator(config.RerankerConfig{}, logging.NewNop())
	defer rr.Close()
	c, _ := newCoordinator(t, store, rr)

	results, err := c.Retrieve(context.Background(), "u-1", Query{Text: "databases", Rerank: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.NotNil(t, results[0].RelevanceScore)
	assert.InDelta(t, 1.0, *results[0].RelevanceScore, 1e-9)
	require.NotNil(t, results[1].RelevanceScore)
	assert.InDelta(t, 0.9, *results[1].RelevanceScore, 1e-9)
}

func TestDuplicate(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	seedPoints(t, store)
	c, _ := newCoordinator(t, store, nil)
	ctx := context.Background()

	source := vectorstore.Entity{Type: vectorstore.NodeTypeDocument, ID: "doc-1"}
	target := vectorstore.Entity{Type: vectorstore.NodeTypeDocument, ID: "doc-copy"}

	n, err := c.Duplicate(ctx, "u-1", "u-3", source, target)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f, err := vectorstore.EntityFilter("u-3", target)
	require.NoError(t, err)
	points, err := store.Scroll(ctx, f, vectorstore.ScrollOptions{WithPayload: true, WithVector: true})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "vector databases", points[0].Content())
	assert.Equal(t, "u-3", points[0].TenantID())
	assert.Equal(t, "doc-copy", points[0].Payload[vectorstore.KeyDocID])
	assert.NotEmpty(t, points[0].Vector, "copied without re-embedding")
	assert.Equal(t, "p-1", points[0].Payload[vectorstore.KeyProjectID], "metadata preserved")

	// Source untouched.
	sf, err := vectorstore.EntityFilter("u-1", source)
	require.NoError(t, err)
	src, err := store.Scroll(ctx, sf, vectorstore.ScrollOptions{WithPayload: true})
	require.NoError(t, err)
	assert.Len(t, src, 1)
}

func TestDuplicateIdempotent(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	seedPoints(t, store)
	c, _ := newCoordinator(t, store, nil)
	ctx := context.Background()

	source := vectorstore.Entity{Type: vectorstore.NodeTypeDocument, ID: "doc-1"}
	target := vectorstore.Entity{Type: vectorstore.NodeTypeDocument, ID: "doc-copy"}

	_, err := c.Duplicate(ctx, "u-1", "u-3", source, target)
	require.NoError(t, err)
	_, err = c.Duplicate(ctx, "u-1", "u-3", source, target)
	require.NoError(t, err)

	f, err := vectorstore.EntityFilter("u-3", target)
	require.NoError(t, err)
	points, err := store.Scroll(ctx, f, vectorstore.ScrollOptions{WithPayload: true})
	require.NoError(t, err)
	assert.Len(t, points, 1, "repeat duplicate overwrites")
}

func TestDuplicateMissingSource(t *testing.T) {
	c, _ := newCoordinator(t, vectorstore.NewMemoryStore(), nil)

	n, err := c.Duplicate(context.Background(), "u-1", "u-2",
		vectorstore.Entity{Type: vectorstore.NodeTypeDocument, ID: "nope"},
		vectorstore.Entity{Type: vectorstore.NodeTypeDocument, ID: "dst"},
	)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDuplicateValidation(t *testing.T) {
	c, _ := newCoordinator(t, vectorstore.NewMemoryStore(), nil)
	ctx := context.Background()
	valid := vectorstore.Entity{Type: vectorstore.NodeTypeDocument, ID: "d"}

	_, err := c.Duplicate(ctx, "", "u-2", valid, valid)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.Duplicate(ctx, "u-1", "u-2", vectorstore.Entity{Type: "folder", ID: "x"}, valid)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.Duplicate(ctx, "u-1", "u-2", valid, vectorstore.Entity{Type: vectorstore.NodeTypeDocument})
	require.ErrorIs(t, err, ErrInvalidInput)
}
