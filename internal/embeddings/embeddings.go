// Package embeddings provides text embedding over HTTP backends.
//
// Two providers are supported: "tei" (Hugging Face text-embeddings-inference)
// and "openai" (the /v1/embeddings wire format, which many hosted and local
// backends speak). Both return one vector per input, in input order.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/ragstore/internal/config"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
)

// Sentinel errors.
var (
	// ErrEmptyInput indicates there was nothing to embed.
	ErrEmptyInput = errors.New("empty embedding input")

	// ErrBackendFailure indicates the embedding backend failed.
	ErrBackendFailure = errors.New("embedding backend failure")
)

// Embedder generates vector representations of text.
//
// EmbedDocuments makes exactly one backend call for the whole input slice;
// callers own any batching policy. The result has one vector per input, in
// input order.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder creates an embedder for the configured provider. When a rate
// limit is configured the returned embedder waits on a shared limiter before
// every backend call.
func NewEmbedder(cfg *config.EmbeddingsConfig, logger *logging.Logger) (Embedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embeddings config required")
	}

	httpClient := &http.Client{Timeout: cfg.Timeout.Duration()}

	var embedder Embedder
	switch cfg.Provider {
	case "tei":
		embedder = &teiEmbedder{
			baseURL:   cfg.BaseURL,
			batchSize: cfg.BatchSize,
			client:    httpClient,
			logger:    logger,
		}
	case "openai":
		embedder = &openAIEmbedder{
			baseURL:    cfg.BaseURL,
			model:      cfg.Model,
			apiKey:     cfg.APIKey.Value(),
			dimensions: cfg.Dimensions,
			batchSize:  cfg.BatchSize,
			client:     httpClient,
			logger:     logger,
		}
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	if cfg.RateLimit > 0 {
		embedder = &rateLimitedEmbedder{
			inner:   embedder,
			limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		}
	}

	return embedder, nil
}

// warnOversizedBatch logs a batch larger than the configured batch size.
// Batches pass through to the backend unsplit; splitting is caller policy.
func warnOversizedBatch(ctx context.Context, logger *logging.Logger, batch, configured int) {
	if configured > 0 && batch > configured {
		logger.Warn(ctx, "embedding batch exceeds configured batch size",
			zap.Int("batch", batch),
			zap.Int("batch_size", configured),
		)
	}
}

// rateLimitedEmbedder wraps an Embedder with a token bucket.
type rateLimitedEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

func (r *rateLimitedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limiter: %w", err)
	}
	return r.inner.EmbedDocuments(ctx, texts)
}

func (r *rateLimitedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limiter: %w", err)
	}
	return r.inner.EmbedQuery(ctx, text)
}
