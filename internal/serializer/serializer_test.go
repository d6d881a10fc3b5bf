package serializer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

var srcEntity = vectorstore.Entity{Type: vectorstore.NodeTypeDocument, ID: "doc-src"}

func seedEntity(t *testing.T, store *vectorstore.MemoryStore, tenantID string, entity vectorstore.Entity, chunks []string) {
	t.Helper()
	points := make([]*vectorstore.Point, len(chunks))
	for i, c := range chunks {
		points[i] = &vectorstore.Point{
			ID:     vectorstore.DeterministicID(entity.ID, string(rune('0'+i))),
			Vector: []float32{float32(i), 1, 2},
			Payload: map[string]interface{}{
				vectorstore.KeyTenantID: tenantID,
				vectorstore.KeyNodeType: string(entity.Type),
				entity.IDField():        entity.ID,
				vectorstore.KeyContent:  c,
				vectorstore.KeySeq:      i,
				"title":                 "Notes",
			},
		}
	}
	require.NoError(t, store.BatchSave(context.Background(), points))
}

func TestExportImportRoundTrip(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	s, err := New(store, logging.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	seedEntity(t, store, "u-1", srcEntity, []string{"alpha", "beta", "gamma"})

	bundle, err := s.Export(ctx, "u-1", srcEntity)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, bundle.Version)
	assert.Equal(t, 3, bundle.Count)
	assert.NotEmpty(t, bundle.Data)

	target := vectorstore.Entity{Type: vectorstore.NodeTypeResource, ID: "res-dst"}
	n, err := s.Import(ctx, "u-2", target, bundle)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	f, err := vectorstore.EntityFilter("u-2", target)
	require.NoError(t, err)
	points, err := store.Scroll(ctx, f, vectorstore.ScrollOptions{WithPayload: true, WithVector: true})
	require.NoError(t, err)
	require.Len(t, points, 3)

	contents := make(map[string]bool)
	for _, p := range points {
		contents[p.Content()] = true
		assert.Equal(t, "u-2", p.TenantID())
		assert.Equal(t, string(vectorstore.NodeTypeResource), p.Payload[vectorstore.KeyNodeType])
		assert.Equal(t, "res-dst", p.Payload[vectorstore.KeyResourceID])
		assert.NotContains(t, p.Payload, vectorstore.KeyDocID, "source id field removed")
		assert.Equal(t, "Notes", p.Payload["title"], "free-form metadata preserved")
		assert.Len(t, p.Vector, 3, "vectors survive without re-embedding")
	}
	assert.True(t, contents["alpha"] && contents["beta"] && contents["gamma"])
}

func TestImportIsIdempotent(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	s, err := New(store, logging.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	seedEntity(t, store, "u-1", srcEntity, []string{"alpha", "beta"})
	bundle, err := s.Export(ctx, "u-1", srcEntity)
	require.NoError(t, err)

	target := vectorstore.Entity{Type: vectorstore.NodeTypeDocument, ID: "doc-dst"}
	_, err = s.Import(ctx, "u-2", target, bundle)
	require.NoError(t, err)
	_, err = s.Import(ctx, "u-2", target, bundle)
	require.NoError(t, err)

	f, err := vectorstore.EntityFilter("u-2", target)
	require.NoError(t, err)
	points, err := store.Scroll(ctx, f, vectorstore.ScrollOptions{WithPayload: true})
	require.NoError(t, err)
	assert.Len(t, points, 2, "re-import overwrites, never duplicates")
}

func TestImportSameBundleIntoTwoTenants(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	s, err := New(store, logging.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	seedEntity(t, store, "u-1", srcEntity, []string{"alpha", "beta"})
	bundle, err := s.Export(ctx, "u-1", srcEntity)
	require.NoError(t, err)

	// Same target entity id in both tenants; ids are tenant-scoped so the
	// second import must not overwrite the first tenant's points.
	target := vectorstore.Entity{Type: vectorstore.NodeTypeDocument, ID: "doc-dst"}
	_, err = s.Import(ctx, "u-2", target, bundle)
	require.NoError(t, err)
	_, err = s.Import(ctx, "u-3", target, bundle)
	require.NoError(t, err)

	for _, tenantID := range []string{"u-2", "u-3"} {
		f, err := vectorstore.EntityFilter(tenantID, target)
		require.NoError(t, err)
		points, err := store.Scroll(ctx, f, vectorstore.ScrollOptions{WithPayload: true})
		require.NoError(t, err)
		assert.Len(t, points, 2, "tenant %s keeps its imported points", tenantID)
	}
}

func TestExportEmptyEntity(t *testing.T) {
	s, err := New(vectorstore.NewMemoryStore(), logging.NewNop())
	require.NoError(t, err)

	bundle, err := s.Export(context.Background(), "u-1", srcEntity)
	require.NoError(t, err)
	assert.Equal(t, 0, bundle.Count)
	assert.Empty(t, bundle.Data)

	// An empty bundle imports as a no-op.
	n, err := s.Import(context.Background(), "u-2", srcEntity, bundle)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestImportErrors(t *testing.T) {
	s, err := New(vectorstore.NewMemoryStore(), logging.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("unknown version", func(t *testing.T) {
		_, err := s.Import(ctx, "u-1", srcEntity, &Bundle{Version: 99, Count: 1, Data: []byte{1}})
		require.ErrorIs(t, err, ErrUnknownVersion)
	})

	t.Run("corrupt data", func(t *testing.T) {
		_, err := s.Import(ctx, "u-1", srcEntity, &Bundle{Version: CurrentVersion, Count: 1, Data: []byte{0xff, 0x01}})
		require.ErrorIs(t, err, ErrCorruptBundle)
	})

	t.Run("nil bundle", func(t *testing.T) {
		_, err := s.Import(ctx, "u-1", srcEntity, nil)
		require.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("invalid tenant", func(t *testing.T) {
		_, err := s.Import(ctx, "", srcEntity, &Bundle{Version: CurrentVersion})
		require.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("invalid entity", func(t *testing.T) {
		_, err := s.Export(ctx, "u-1", vectorstore.Entity{Type: "folder", ID: "x"})
		require.ErrorIs(t, err, ErrInvalidInput)
	})
}
