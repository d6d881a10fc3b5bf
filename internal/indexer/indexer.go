// Package indexer turns documents into embedded chunks and keeps them
// current in the vector store.
//
// Re-indexing is incremental at the chunk level: chunks whose content is
// byte-identical to an already stored chunk of the same entity reuse the
// stored vector and skip the embedding backend entirely. Replacement is
// delete-then-insert, so stale chunks never outlive a reindex.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/embeddings"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/tenant"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// ErrInvalidInput indicates the caller passed invalid arguments. It is
// surfaced synchronously, before any store mutation.
var ErrInvalidInput = errors.New("invalid input")

// reservedKeys are payload keys the indexer owns. Caller metadata and
// payload patches may not set them.
var reservedKeys = map[string]struct{}{
	vectorstore.KeyTenantID:   {},
	vectorstore.KeyContent:    {},
	vectorstore.KeyNodeType:   {},
	vectorstore.KeyDocID:      {},
	vectorstore.KeyResourceID: {},
	vectorstore.KeySeq:        {},
}

// Stats reports what an Index call did.
type Stats struct {
	// Chunks is the number of chunks stored.
	Chunks int `json:"chunks"`
	// Reused is how many chunks reused a stored vector.
	Reused int `json:"reused"`
	// Embedded is how many chunks went through the embedding backend.
	Embedded int `json:"embedded"`
}

// Indexer chunks, embeds and stores documents.
type Indexer struct {
	store    vectorstore.Store
	embedder embeddings.Embedder
	splitter Splitter
	logger   *logging.Logger

	// locks serializes writers per entity: replacement is two store calls
	// (delete, insert) and interleaved writers would leave duplicate points
	// or a transient empty window.
	locks sync.Map // entity key -> *sync.Mutex
}

// New creates an Indexer.
func New(store vectorstore.Store, embedder embeddings.Embedder, splitter Splitter, logger *logging.Logger) (*Indexer, error) {
	if store == nil || embedder == nil || splitter == nil || logger == nil {
		return nil, fmt.Errorf("store, embedder, splitter and logger are required")
	}
	return &Indexer{store: store, embedder: embedder, splitter: splitter, logger: logger}, nil
}

// Index chunks fullText, embeds the chunks that are new for this entity, and
// replaces the entity's stored points. Chunks byte-identical to an already
// stored chunk reuse the stored vector. At most one embedding backend call is
// made per Index call.
//
// The stored points are deleted only after embedding succeeded, so a backend
// failure leaves the previous index intact. Indexing empty text removes the
// entity's points. Writers to the same entity are serialized; different
// entities index concurrently.
func (ix *Indexer) Index(ctx context.Context, tenantID string, entity vectorstore.Entity, fullText string, metadata map[string]interface{}) (*Stats, error) {
	if err := validateEntity(tenantID, entity); err != nil {
		return nil, err
	}
	if err := validateMetadata(metadata); err != nil {
		return nil, err
	}

	filter, err := vectorstore.EntityFilter(tenantID, entity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	unlock := ix.lockEntity(tenantID, entity)
	defer unlock()

	chunks, err := ix.chunk(fullText)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		if err := ix.store.BatchDelete(ctx, filter); err != nil {
			return nil, fmt.Errorf("removing stored chunks: %w", err)
		}
		ix.logger.Info(ctx, "indexed empty document, removed stored chunks",
			zap.String("entity_id", entity.ID),
			zap.String("node_type", string(entity.Type)),
		)
		return &Stats{}, nil
	}

	existing, err := ix.store.Scroll(ctx, filter, vectorstore.ScrollOptions{WithPayload: true, WithVector: true})
	if err != nil {
		return nil, fmt.Errorf("loading stored chunks: %w", err)
	}
	stored := make(map[string][]float32, len(existing))
	for _, p := range existing {
		if c := p.Content(); c != "" && p.Vector != nil {
			stored[c] = p.Vector
		}
	}

	vectors := make([][]float32, len(chunks))
	var toEmbed []string
	var toEmbedIdx []int
	for i, chunk := range chunks {
		if v, ok := stored[chunk]; ok {
			vectors[i] = v
			continue
		}
		toEmbed = append(toEmbed, chunk)
		toEmbedIdx = append(toEmbedIdx, i)
	}

	if len(toEmbed) > 0 {
		embedded, err := ix.embedder.EmbedDocuments(ctx, toEmbed)
		if err != nil {
			// Stored points are untouched at this point.
			return nil, fmt.Errorf("embedding %d chunks: %w", len(toEmbed), err)
		}
		for j, v := range embedded {
			vectors[toEmbedIdx[j]] = v
		}
	}

	points := make([]*vectorstore.Point, len(chunks))
	for i, chunk := range chunks {
		payload := map[string]interface{}{
			vectorstore.KeyTenantID: tenantID,
			vectorstore.KeyNodeType: string(entity.Type),
			entity.IDField():        entity.ID,
			vectorstore.KeyContent:  chunk,
			vectorstore.KeySeq:      i,
		}
		for k, v := range metadata {
			payload[k] = v
		}
		points[i] = &vectorstore.Point{
			ID:      vectorstore.PointID(tenantID, entity, i),
			Vector:  vectors[i],
			Payload: payload,
		}
	}

	if err := ix.store.BatchDelete(ctx, filter); err != nil {
		return nil, fmt.Errorf("removing stale chunks: %w", err)
	}
	if err := ix.store.BatchSave(ctx, points); err != nil {
		return nil, fmt.Errorf("saving chunks: %w", err)
	}

	stats := &Stats{
		Chunks:   len(chunks),
		Reused:   len(chunks) - len(toEmbed),
		Embedded: len(toEmbed),
	}
	ix.logger.Info(ctx, "indexed document",
		zap.String("entity_id", entity.ID),
		zap.String("node_type", string(entity.Type)),
		zap.Int("chunks", stats.Chunks),
		zap.Int("reused", stats.Reused),
		zap.Int("embedded", stats.Embedded),
	)
	return stats, nil
}

// Delete removes every stored chunk of the entity.
func (ix *Indexer) Delete(ctx context.Context, tenantID string, entity vectorstore.Entity) error {
	if err := validateEntity(tenantID, entity); err != nil {
		return err
	}
	filter, err := vectorstore.EntityFilter(tenantID, entity)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	unlock := ix.lockEntity(tenantID, entity)
	defer unlock()

	if err := ix.store.BatchDelete(ctx, filter); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	ix.logger.Info(ctx, "deleted document chunks",
		zap.String("entity_id", entity.ID),
		zap.String("node_type", string(entity.Type)),
	)
	return nil
}

// UpdatePayload merges the patch into every stored chunk of the entity
// without touching vectors. The patch may not be empty and may not rewrite
// keys the indexer owns.
func (ix *Indexer) UpdatePayload(ctx context.Context, tenantID string, entity vectorstore.Entity, patch map[string]interface{}) error {
	if err := validateEntity(tenantID, entity); err != nil {
		return err
	}
	if len(patch) == 0 {
		return fmt.Errorf("%w: empty payload patch", ErrInvalidInput)
	}
	if err := validateMetadata(patch); err != nil {
		return err
	}
	filter, err := vectorstore.EntityFilter(tenantID, entity)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := ix.store.UpdatePayload(ctx, filter, patch); err != nil {
		return fmt.Errorf("updating payload: %w", err)
	}
	return nil
}

// lockEntity acquires the entity's write lock and returns its release func.
func (ix *Indexer) lockEntity(tenantID string, entity vectorstore.Entity) func() {
	key := tenantID + "/" + string(entity.Type) + "/" + entity.ID
	v, _ := ix.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// chunk splits the text and drops whitespace-only chunks.
func (ix *Indexer) chunk(fullText string) ([]string, error) {
	if strings.TrimSpace(fullText) == "" {
		return nil, nil
	}
	raw, err := ix.splitter.SplitText(fullText)
	if err != nil {
		return nil, fmt.Errorf("splitting text: %w", err)
	}
	chunks := make([]string, 0, len(raw))
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func validateEntity(tenantID string, entity vectorstore.Entity) error {
	if err := tenant.ValidateID(tenantID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !entity.Type.Valid() {
		return fmt.Errorf("%w: unknown node type: %q", ErrInvalidInput, entity.Type)
	}
	if entity.ID == "" {
		return fmt.Errorf("%w: entity id required", ErrInvalidInput)
	}
	return nil
}

func validateMetadata(metadata map[string]interface{}) error {
	for k := range metadata {
		if _, reserved := reservedKeys[k]; reserved {
			return fmt.Errorf("%w: metadata key %q is reserved", ErrInvalidInput, k)
		}
	}
	return nil
}
