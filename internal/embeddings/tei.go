package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/logging"
)

// teiEmbedder talks to a text-embeddings-inference server.
//
// Wire format: POST {base}/embed with {"inputs": [...], "truncate": true},
// response is a bare array of vectors.
type teiEmbedder struct {
	baseURL   string
	batchSize int
	client    *http.Client
	logger    *logging.Logger
}

type teiRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

func (e *teiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	warnOversizedBatch(ctx, e.logger, len(texts), e.batchSize)

	body, err := json.Marshal(teiRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("encoding embed request: %w", err)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrBackendFailure, resp.StatusCode, msg)
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrBackendFailure, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrBackendFailure, len(vectors), len(texts))
	}

	e.logger.Debug(ctx, "embedded documents",
		zap.Int("count", len(texts)),
		zap.Duration("duration", time.Since(start)),
	)
	return vectors, nil
}

func (e *teiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
