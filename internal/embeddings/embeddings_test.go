package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ragstore/internal/config"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
)

func newTestEmbedder(t *testing.T, cfg *config.EmbeddingsConfig) Embedder {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = config.Duration(5 * time.Second)
	}
	e, err := NewEmbedder(cfg, logging.NewNop())
	require.NoError(t, err)
	return e
}

func TestTEIEmbedder(t *testing.T) {
	var gotPath string
	var gotBody teiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		vectors := make([][]float32, len(gotBody.Inputs))
		for i := range vectors {
			vectors[i] = []float32{float32(i), 1}
		}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	}))
	defer srv.Close()

	e := newTestEmbedder(t, &config.EmbeddingsConfig{Provider: "tei", BaseURL: srv.URL})

	vectors, err := e.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "/embed", gotPath)
	assert.Equal(t, []string{"a", "b"}, gotBody.Inputs)
	assert.True(t, gotBody.Truncate)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 1}, vectors[1])

	vec, err := e.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)
}

func TestTEIEmbedderErrors(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		e := newTestEmbedder(t, &config.EmbeddingsConfig{Provider: "tei", BaseURL: "http://127.0.0.1:0"})
		_, err := e.EmbedDocuments(context.Background(), nil)
		require.ErrorIs(t, err, ErrEmptyInput)
	})

	t.Run("backend error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		e := newTestEmbedder(t, &config.EmbeddingsConfig{Provider: "tei", BaseURL: srv.URL})
		_, err := e.EmbedDocuments(context.Background(), []string{"a"})
		require.ErrorIs(t, err, ErrBackendFailure)
	})

	t.Run("vector count mismatch", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewEncoder(w).Encode([][]float32{{1}}))
		}))
		defer srv.Close()

		e := newTestEmbedder(t, &config.EmbeddingsConfig{Provider: "tei", BaseURL: srv.URL})
		_, err := e.EmbedDocuments(context.Background(), []string{"a", "b"})
		require.ErrorIs(t, err, ErrBackendFailure)
	})
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		// Return data out of order; the client must reorder by index.
		resp := openAIResponse{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: []float32{float32(i)}})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	e := newTestEmbedder(t, &config.EmbeddingsConfig{
		Provider: "openai",
		BaseURL:  srv.URL,
		Model:    "text-embedding-3-small",
		APIKey:   config.Secret("sk-test"),
	})

	vectors, err := e.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{0}, vectors[0])
	assert.Equal(t, []float32{2}, vectors[2])
}

func TestOpenAIEmbedderSendsDimensions(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		resp := openAIResponse{}
		resp.Data = append(resp.Data, struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}{Index: 0, Embedding: []float32{1}})
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	e := newTestEmbedder(t, &config.EmbeddingsConfig{
		Provider:   "openai",
		BaseURL:    srv.URL,
		Model:      "text-embedding-3-small",
		APIKey:     config.Secret("sk-test"),
		Dimensions: 256,
	})

	_, err := e.EmbedDocuments(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.EqualValues(t, 256, gotBody["dimensions"])

	// Unset dimensions stays off the wire so the provider default applies.
	gotBody = nil
	e = newTestEmbedder(t, &config.EmbeddingsConfig{
		Provider: "openai",
		BaseURL:  srv.URL,
		Model:    "text-embedding-3-small",
		APIKey:   config.Secret("sk-test"),
	})
	_, err = e.EmbedDocuments(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.NotContains(t, gotBody, "dimensions")
}

func TestOversizedBatchWarnsButPassesThrough(t *testing.T) {
	var gotCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotCount = len(req.Inputs)
		vectors := make([][]float32, len(req.Inputs))
		for i := range vectors {
			vectors[i] = []float32{1}
		}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	}))
	defer srv.Close()

	tl := logging.NewTestLogger()
	e, err := NewEmbedder(&config.EmbeddingsConfig{
		Provider:  "tei",
		BaseURL:   srv.URL,
		Timeout:   config.Duration(5 * time.Second),
		BatchSize: 2,
	}, tl.Logger)
	require.NoError(t, err)

	vectors, err := e.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vectors, 3)
	assert.Equal(t, 3, gotCount, "batch goes to the backend in one request")
	tl.AssertLogged(t, zapcore.WarnLevel, "batch exceeds")
}

func TestNewEmbedderUnknownProvider(t *testing.T) {
	_, err := NewEmbedder(&config.EmbeddingsConfig{Provider: "cohere"}, logging.NewNop())
	require.Error(t, err)
}

func TestRateLimitedEmbedder(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.NoError(t, json.NewEncoder(w).Encode([][]float32{{1}}))
	}))
	defer srv.Close()

	e := newTestEmbedder(t, &config.EmbeddingsConfig{
		Provider:  "tei",
		BaseURL:   srv.URL,
		RateLimit: 1000,
		RateBurst: 1,
	})

	for i := 0; i < 3; i++ {
		_, err := e.EmbedDocuments(context.Background(), []string{"x"})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)
}
