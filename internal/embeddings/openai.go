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

// openAIEmbedder speaks the /v1/embeddings wire format.
type openAIEmbedder struct {
	baseURL    string
	model      string
	apiKey     string
	dimensions int
	batchSize  int
	client     *http.Client
	logger     *logging.Logger
}

type openAIRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *openAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	warnOversizedBatch(ctx, e.logger, len(texts), e.batchSize)

	body, err := json.Marshal(openAIRequest{Model: e.model, Input: texts, Dimensions: e.dimensions})
	if err != nil {
		return nil, fmt.Errorf("encoding embed request: %w", err)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrBackendFailure, resp.StatusCode, msg)
	}

	var decoded openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrBackendFailure, err)
	}
	if len(decoded.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrBackendFailure, len(decoded.Data), len(texts))
	}

	// The API documents data as input-ordered but indexes it anyway.
	vectors := make([][]float32, len(texts))
	for _, d := range decoded.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrBackendFailure, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}

	e.logger.Debug(ctx, "embedded documents",
		zap.Int("count", len(texts)),
		zap.String("model", e.model),
		zap.Duration("duration", time.Since(start)),
	)
	return vectors, nil
}

func (e *openAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
