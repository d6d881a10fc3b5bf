package reranker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/config"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
)

// baselineProvider is tried once when the configured default provider cannot
// be built.
const baselineProvider = "jina"

// Orchestrator owns provider selection and the failure policy around
// reranking.
//
// It moves through a small lifecycle: uninitialized, config loaded, then
// ready or degraded. A degraded orchestrator still answers every Rerank call
// using position-based fallback scores; callers never need to care which
// state it is in.
type Orchestrator struct {
	mu        sync.RWMutex
	state     State
	provider  Provider
	active    config.RerankerProviderConfig
	cfg       config.RerankerConfig
	logger    *logging.Logger
}

// NewOrchestrator builds an orchestrator and resolves its provider. The
// returned orchestrator is usable regardless of whether a provider could be
// built.
func NewOrchestrator(cfg config.RerankerConfig, logger *logging.Logger) *Orchestrator {
	o := &Orchestrator{
		state:  StateUninitialized,
		logger: logger,
	}
	o.Reconfigure(cfg)
	return o
}

// Reconfigure swaps the configuration and re-resolves the provider. The
// previous provider is closed.
func (o *Orchestrator) Reconfigure(cfg config.RerankerConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.provider != nil {
		_ = o.provider.Close()
		o.provider = nil
	}

	o.cfg = cfg
	o.state = StateConfigLoaded

	name := cfg.DefaultProvider
	provider, providerCfg, err := o.buildProvider(name)
	if err != nil && name != baselineProvider {
		o.logger.Warn(context.Background(), "default rerank provider unavailable, trying baseline",
			zap.String("provider", name),
			zap.String("baseline", baselineProvider),
			zap.Error(err),
		)
		provider, providerCfg, err = o.buildProvider(baselineProvider)
	}
	if err != nil {
		o.logger.Warn(context.Background(), "no rerank provider available, serving fallback scores",
			zap.Error(err),
		)
		o.state = StateDegraded
		return
	}

	o.provider = provider
	o.active = providerCfg
	o.state = StateReady
	o.logger.Info(context.Background(), "rerank provider ready",
		zap.String("provider", provider.Name()),
	)
}

// buildProvider resolves a provider name against the registry and the
// configuration. Callers hold the lock.
func (o *Orchestrator) buildProvider(name string) (Provider, config.RerankerProviderConfig, error) {
	if name == "" {
		return nil, config.RerankerProviderConfig{}, fmt.Errorf("%w: no default provider configured", ErrProviderNotFound)
	}
	providerCfg, ok := o.cfg.Providers[name]
	if !ok {
		if _, registered := factories[name]; !registered {
			return nil, config.RerankerProviderConfig{}, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
		}
	}
	p, err := factoryFor(name)(name, providerCfg, o.cfg.Timeout.Duration())
	if err != nil {
		return nil, config.RerankerProviderConfig{}, err
	}
	return p, providerCfg, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Rerank scores docs against the query. Documents with empty content are
// excluded from the candidate pool. Results come back in the provider's
// order with scores below the configured threshold filtered out.
//
// Every failure mode - degraded state, backend error, malformed response -
// degrades to position-based fallback scores over the full input, preserving
// its order and count. Rerank never returns an error for backend trouble;
// retrieval results must survive a dead reranker.
func (o *Orchestrator) Rerank(ctx context.Context, query string, docs []Document) []ScoredDocument {
	if len(docs) == 0 {
		return []ScoredDocument{}
	}

	o.mu.RLock()
	state := o.state
	provider := o.provider
	active := o.active
	o.mu.RUnlock()

	if state != StateReady {
		return fallbackScores(docs)
	}

	// Candidate pool: non-empty content only, remembering input positions.
	candidates := make([]Document, 0, len(docs))
	positions := make([]int, 0, len(docs))
	for i, d := range docs {
		if d.Content == "" {
			continue
		}
		candidates = append(candidates, d)
		positions = append(positions, i)
	}
	if len(candidates) == 0 {
		return []ScoredDocument{}
	}

	contents := make([]string, len(candidates))
	for i, d := range candidates {
		contents[i] = d.Content
	}

	results, err := provider.Rerank(ctx, query, contents, active.TopN)
	if err != nil {
		o.logger.Warn(ctx, "rerank backend failed, using fallback scores",
			zap.String("provider", provider.Name()),
			zap.Error(err),
		)
		return fallbackScores(docs)
	}

	scored := make([]ScoredDocument, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(candidates) {
			o.logger.Warn(ctx, "rerank backend returned out-of-range index, dropping",
				zap.String("provider", provider.Name()),
				zap.Int("index", r.Index),
				zap.Int("candidates", len(candidates)),
			)
			continue
		}
		if r.RelevanceScore < active.RelevanceThreshold {
			continue
		}
		scored = append(scored, ScoredDocument{
			Document:       candidates[r.Index],
			RelevanceScore: r.RelevanceScore,
			OriginalIndex:  positions[r.Index],
		})
	}
	return scored
}

// Close releases the active provider.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.provider != nil {
		err := o.provider.Close()
		o.provider = nil
		return err
	}
	return nil
}

// fallbackScores assigns position-based scores over the full input: the
// first document gets 1.0 and each subsequent one 0.1 less. Order and count
// are preserved and no threshold applies; the fallback must not silently
// drop results.
func fallbackScores(docs []Document) []ScoredDocument {
	scored := make([]ScoredDocument, len(docs))
	for i, d := range docs {
		scored[i] = ScoredDocument{
			Document:       d,
			RelevanceScore: 1 - float64(i)*0.1,
			OriginalIndex:  i,
		}
	}
	return scored
}
