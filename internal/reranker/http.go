package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/ragstore/internal/config"
)

// httpProvider speaks the /v1/rerank wire format used by Cohere, Jina and
// compatible self-hosted backends.
type httpProvider struct {
	name    string
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
		Document       string  `json:"document,omitempty"`
	} `json:"results"`
}

// newHTTPProvider validates the config and builds an HTTP provider.
func newHTTPProvider(name string, cfg config.RerankerProviderConfig, timeout time.Duration) (*httpProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: provider %q: base_url required", ErrInvalidProviderConfig, name)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: provider %q: model required", ErrInvalidProviderConfig, name)
	}
	if cfg.TopN <= 0 {
		return nil, fmt.Errorf("%w: provider %q: top_n required", ErrInvalidProviderConfig, name)
	}
	if cfg.RelevanceThreshold < 0 || cfg.RelevanceThreshold > 1 {
		return nil, fmt.Errorf("%w: provider %q: relevance_threshold must be in [0, 1]", ErrInvalidProviderConfig, name)
	}
	return &httpProvider{
		name:    name,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		apiKey:  cfg.APIKey.Value(),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (p *httpProvider) Rerank(ctx context.Context, query string, docs []string, topN int) ([]Result, error) {
	body, err := json.Marshal(rerankRequest{
		Model:     p.model,
		Query:     query,
		Documents: docs,
		TopN:      topN,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank backend status %d: %s", resp.StatusCode, msg)
	}

	var decoded rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding rerank response: %w", err)
	}

	results := make([]Result, len(decoded.Results))
	for i, r := range decoded.Results {
		results[i] = Result{Index: r.Index, RelevanceScore: r.RelevanceScore}
	}
	return results, nil
}

func (p *httpProvider) Name() string { return p.name }

func (p *httpProvider) Close() error { return nil }
