package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/tenant"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// fakeEmbedder counts calls and derives a deterministic vector per text.
type fakeEmbedder struct {
	calls  int
	embeds int
	fail   error
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	f.embeds += len(texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), float32(t[0])}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

// paragraphSplitter splits on blank lines. Deterministic for tests.
type paragraphSplitter struct{}

func (paragraphSplitter) SplitText(text string) ([]string, error) {
	return strings.Split(text, "\n\n"), nil
}

func newTestIndexer(t *testing.T) (*Indexer, *vectorstore.MemoryStore, *fakeEmbedder) {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	emb := &fakeEmbedder{}
	ix, err := New(store, emb, paragraphSplitter{}, logging.NewNop())
	require.NoError(t, err)
	return ix, store, emb
}

var docEntity = vectorstore.Entity{Type: vectorstore.NodeTypeDocument, ID: "doc-1"}

func TestIndexFreshDocument(t *testing.T) {
	ix, store, emb := newTestIndexer(t)
	ctx := context.Background()

	stats, err := ix.Index(ctx, "u-1", docEntity, "alpha\n\nbeta", map[string]interface{}{"title": "T"})
	require.NoError(t, err)
	assert.Equal(t, &Stats{Chunks: 2, Reused: 0, Embedded: 2}, stats)
	assert.Equal(t, 1, emb.calls, "one backend call per Index")

	f, err := vectorstore.EntityFilter("u-1", docEntity)
	require.NoError(t, err)
	points, err := store.Scroll(ctx, f, vectorstore.ScrollOptions{WithPayload: true, WithVector: true})
	require.NoError(t, err)
	require.Len(t, points, 2)
	for _, p := range points {
		assert.Equal(t, "u-1", p.TenantID())
		assert.Equal(t, "T", p.Payload["title"])
		assert.NotEmpty(t, p.Vector)
		assert.Equal(t, vectorstore.PointID("u-1", docEntity, p.Seq()), p.ID)
	}
}

func TestIndexReusesUnchangedChunks(t *testing.T) {
	ix, store, emb := newTestIndexer(t)
	ctx := context.Background()

	_, err := ix.Index(ctx, "u-1", docEntity, "alpha\n\nbeta", nil)
	require.NoError(t, err)

	// Change the second paragraph only.
	stats, err := ix.Index(ctx, "u-1", docEntity, "alpha\n\ngamma", nil)
	require.NoError(t, err)
	assert.Equal(t, &Stats{Chunks: 2, Reused: 1, Embedded: 1}, stats)
	assert.Equal(t, 2, emb.calls)
	assert.Equal(t, 3, emb.embeds, "only the changed chunk hit the backend")
	assert.Equal(t, 2, store.Count(), "old chunks replaced, not accumulated")
}

func TestIndexAllUnchangedSkipsBackend(t *testing.T) {
	ix, _, emb := newTestIndexer(t)
	ctx := context.Background()

	_, err := ix.Index(ctx, "u-1", docEntity, "alpha\n\nbeta", nil)
	require.NoError(t, err)

	stats, err := ix.Index(ctx, "u-1", docEntity, "alpha\n\nbeta", nil)
	require.NoError(t, err)
	assert.Equal(t, &Stats{Chunks: 2, Reused: 2, Embedded: 0}, stats)
	assert.Equal(t, 1, emb.calls, "no backend call when every chunk is reused")
}

func TestIndexEmbedFailureLeavesStoreIntact(t *testing.T) {
	ix, store, emb := newTestIndexer(t)
	ctx := context.Background()

	_, err := ix.Index(ctx, "u-1", docEntity, "alpha", nil)
	require.NoError(t, err)

	emb.fail = errors.New("backend down")
	_, err = ix.Index(ctx, "u-1", docEntity, "changed", nil)
	require.Error(t, err)

	f, err := vectorstore.EntityFilter("u-1", docEntity)
	require.NoError(t, err)
	points, err := store.Scroll(ctx, f, vectorstore.ScrollOptions{WithPayload: true})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "alpha", points[0].Content())
}

func TestIndexEmptyTextRemovesChunks(t *testing.T) {
	ix, store, _ := newTestIndexer(t)
	ctx := context.Background()

	_, err := ix.Index(ctx, "u-1", docEntity, "alpha\n\nbeta", nil)
	require.NoError(t, err)

	stats, err := ix.Index(ctx, "u-1", docEntity, "   \n\n  ", nil)
	require.NoError(t, err)
	assert.Equal(t, &Stats{}, stats)
	assert.Equal(t, 0, store.Count())
}

func TestIndexValidation(t *testing.T) {
	ix, _, _ := newTestIndexer(t)
	ctx := context.Background()

	_, err := ix.Index(ctx, "", docEntity, "x", nil)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = ix.Index(ctx, "u-1", vectorstore.Entity{Type: "folder", ID: "f-1"}, "x", nil)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = ix.Index(ctx, "u-1", vectorstore.Entity{Type: vectorstore.NodeTypeDocument}, "x", nil)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = ix.Index(ctx, "u-1", docEntity, "x", map[string]interface{}{vectorstore.KeyTenantID: "u-2"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestIndexTenantIsolation(t *testing.T) {
	ix, store, _ := newTestIndexer(t)
	ctx := context.Background()

	_, err := ix.Index(ctx, "u-1", docEntity, "alpha", nil)
	require.NoError(t, err)
	_, err = ix.Index(ctx, "u-2", docEntity, "bravo", nil)
	require.NoError(t, err)

	// Same entity id, different tenants: reindexing one must not touch the other.
	_, err = ix.Index(ctx, "u-1", docEntity, "charlie", nil)
	require.NoError(t, err)

	f, err := vectorstore.EntityFilter("u-2", docEntity)
	require.NoError(t, err)
	points, err := store.Scroll(ctx, f, vectorstore.ScrollOptions{WithPayload: true})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "bravo", points[0].Content())
}

func TestIndexSameEntityIDAcrossTenants(t *testing.T) {
	ix, store, _ := newTestIndexer(t)
	ctx := context.Background()

	// All tenants share one collection and saves upsert by point id, so the
	// second tenant's points must not land on the first tenant's ids.
	_, err := ix.Index(ctx, "u-1", docEntity, "alpha\n\nbeta", nil)
	require.NoError(t, err)
	_, err = ix.Index(ctx, "u-2", docEntity, "gamma\n\ndelta", nil)
	require.NoError(t, err)

	assert.Equal(t, 4, store.Count())

	f, err := vectorstore.EntityFilter("u-1", docEntity)
	require.NoError(t, err)
	points, err := store.Scroll(ctx, f, vectorstore.ScrollOptions{WithPayload: true})
	require.NoError(t, err)
	require.Len(t, points, 2)
	contents := []string{points[0].Content(), points[1].Content()}
	assert.ElementsMatch(t, []string{"alpha", "beta"}, contents)
}

func TestIndexDocumentAndResourceShareID(t *testing.T) {
	ix, store, _ := newTestIndexer(t)
	ctx := context.Background()

	resEntity := vectorstore.Entity{Type: vectorstore.NodeTypeResource, ID: docEntity.ID}
	_, err := ix.Index(ctx, "u-1", docEntity, "alpha", nil)
	require.NoError(t, err)
	_, err = ix.Index(ctx, "u-1", resEntity, "omega", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, store.Count(), "document and resource with the same id coexist")

	f, err := vectorstore.EntityFilter("u-1", docEntity)
	require.NoError(t, err)
	points, err := store.Scroll(ctx, f, vectorstore.ScrollOptions{WithPayload: true})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "alpha", points[0].Content())
}

func TestIndexConcurrentWritersSameEntity(t *testing.T) {
	ix, store, _ := newTestIndexer(t)
	ctx := context.Background()

	// Interleaved delete/insert pairs would leave a mix of both writers'
	// chunks; serialized writers leave exactly one full set.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := fmt.Sprintf("alpha-%d\n\nbeta-%d", i, i)
			_, err := ix.Index(ctx, "u-1", docEntity, text, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 2, store.Count())
}

func TestDelete(t *testing.T) {
	ix, store, _ := newTestIndexer(t)
	ctx := context.Background()

	_, err := ix.Index(ctx, "u-1", docEntity, "alpha\n\nbeta", nil)
	require.NoError(t, err)

	require.NoError(t, ix.Delete(ctx, "u-1", docEntity))
	assert.Equal(t, 0, store.Count())

	err = ix.Delete(ctx, "", docEntity)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdatePayload(t *testing.T) {
	ix, store, _ := newTestIndexer(t)
	ctx := context.Background()

	_, err := ix.Index(ctx, "u-1", docEntity, "alpha\n\nbeta", nil)
	require.NoError(t, err)

	err = ix.UpdatePayload(ctx, "u-1", docEntity, nil)
	require.ErrorIs(t, err, ErrInvalidInput)

	err = ix.UpdatePayload(ctx, "u-1", docEntity, map[string]interface{}{vectorstore.KeySeq: 9})
	require.ErrorIs(t, err, ErrInvalidInput)

	err = ix.UpdatePayload(ctx, "u-1", docEntity, map[string]interface{}{"title": "Renamed"})
	require.NoError(t, err)

	f, err := vectorstore.EntityFilter("u-1", docEntity)
	require.NoError(t, err)
	points, err := store.Scroll(ctx, f, vectorstore.ScrollOptions{WithPayload: true, WithVector: true})
	require.NoError(t, err)
	for _, p := range points {
		assert.Equal(t, "Renamed", p.Payload["title"])
		assert.NotEmpty(t, p.Vector)
	}
}

func TestIndexRejectsInvalidTenantFormat(t *testing.T) {
	ix, _, _ := newTestIndexer(t)
	_, err := ix.Index(context.Background(), "../other", docEntity, "x", nil)
	require.ErrorIs(t, err, ErrInvalidInput)
	require.NotErrorIs(t, err, tenant.ErrMissingTenant)
}

func TestNewDefaultSplitter(t *testing.T) {
	s, err := NewDefaultSplitter(100, 10)
	require.NoError(t, err)

	chunks, err := s.SplitText("one two three")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	_, err = NewDefaultSplitter(0, 0)
	require.Error(t, err)
	_, err = NewDefaultSplitter(100, 100)
	require.Error(t, err)
}
