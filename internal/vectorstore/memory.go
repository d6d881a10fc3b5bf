package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and single-process
// deployments. It applies the same filter semantics as the Qdrant store.
//
// No library in the ecosystem exposes both raw stored vectors and filtered
// scroll over an in-process index, so this one is hand-rolled.
type MemoryStore struct {
	mu     sync.RWMutex
	points map[string]*Point
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{points: make(map[string]*Point)}
}

func (m *MemoryStore) Scroll(ctx context.Context, filter *Filter, opts ScrollOptions) ([]*Point, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Point
	for _, p := range m.points {
		if !matchesFilter(p, filter) {
			continue
		}
		out = append(out, clonePoint(p, opts))
	}
	// Map iteration order is random; callers get a stable order.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) BatchSave(ctx context.Context, points []*Point) error {
	if len(points) == 0 {
		return ErrEmptyPoints
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.ID] = clonePoint(p, ScrollOptions{WithPayload: true, WithVector: true})
	}
	return nil
}

func (m *MemoryStore) BatchDelete(ctx context.Context, filter *Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if matchesFilter(p, filter) {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *MemoryStore) UpdatePayload(ctx context.Context, filter *Filter, payload map[string]interface{}) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.points {
		if !matchesFilter(p, filter) {
			continue
		}
		if p.Payload == nil {
			p.Payload = make(map[string]interface{}, len(payload))
		}
		for k, v := range payload {
			p.Payload[k] = v
		}
	}
	return nil
}

func (m *MemoryStore) Search(ctx context.Context, vector []float32, limit uint64, filter *Filter) ([]*ScoredPoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []*ScoredPoint
	for _, p := range m.points {
		if !matchesFilter(p, filter) {
			continue
		}
		hits = append(hits, &ScoredPoint{
			Point: *clonePoint(p, ScrollOptions{WithPayload: true}),
			Score: cosineSimilarity(vector, p.Vector),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if uint64(len(hits)) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryStore) EstimateSize(points []*Point) int {
	return EstimatePointsSize(points)
}

func (m *MemoryStore) Close() error {
	return nil
}

// Count returns the number of stored points. Test helper.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

func matchesFilter(p *Point, f *Filter) bool {
	for _, c := range f.Must {
		if !matchesCondition(p, c) {
			return false
		}
	}
	return true
}

func matchesCondition(p *Point, c Condition) bool {
	v, ok := p.Payload[c.Field]
	if !ok {
		return false
	}
	if len(c.MatchAny) > 0 {
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, want := range c.MatchAny {
			if s == want {
				return true
			}
		}
		return false
	}
	return v == c.Match
}

func clonePoint(p *Point, opts ScrollOptions) *Point {
	out := &Point{ID: p.ID}
	if opts.WithVector && p.Vector != nil {
		out.Vector = append([]float32(nil), p.Vector...)
	}
	if opts.WithPayload && p.Payload != nil {
		out.Payload = make(map[string]interface{}, len(p.Payload))
		for k, v := range p.Payload {
			out.Payload[k] = v
		}
	}
	return out
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

var _ Store = (*MemoryStore)(nil)
