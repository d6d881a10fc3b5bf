// Package config provides configuration loading for ragstore.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/ragstore/internal/logging"
)

// Config is the root configuration for ragstore.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Qdrant     QdrantConfig     `koanf:"qdrant"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Reranker   RerankerConfig   `koanf:"reranker"`
	Indexer    IndexerConfig    `koanf:"indexer"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ReadTimeout     Duration `koanf:"read_timeout"`
	WriteTimeout    Duration `koanf:"write_timeout"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// QdrantConfig configures the Qdrant vector store connection.
type QdrantConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	Collection     string   `koanf:"collection"`
	VectorSize     uint64   `koanf:"vector_size"`
	UseTLS         bool     `koanf:"use_tls"`
	APIKey         Secret   `koanf:"api_key"`
	RequestTimeout Duration `koanf:"request_timeout"`
	MaxRetries     int      `koanf:"max_retries"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend: "tei" or "openai".
	Provider string   `koanf:"provider"`
	BaseURL  string   `koanf:"base_url"`
	Model    string   `koanf:"model"`
	APIKey   Secret   `koanf:"api_key"`
	Timeout  Duration `koanf:"timeout"`

	// BatchSize is the advisory embedding batch size. Batches always go to
	// the backend in one request; larger batches are logged, not split.
	BatchSize int `koanf:"batch_size"`
	// Dimensions is the embedding dimensionality. Sent to providers that
	// accept it and checked against qdrant.vector_size. 0 means the
	// provider's default.
	Dimensions int `koanf:"dimensions"`

	// RateLimit caps embedding requests per second. 0 disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	// RateBurst is the limiter burst size.
	RateBurst int `koanf:"rate_burst"`
}

// RerankerProviderConfig configures one rerank backend.
type RerankerProviderConfig struct {
	BaseURL            string  `koanf:"base_url"`
	Model              string  `koanf:"model"`
	APIKey             Secret  `koanf:"api_key"`
	TopN               int     `koanf:"top_n"`
	RelevanceThreshold float64 `koanf:"relevance_threshold"`
}

// RerankerConfig configures reranking. Providers maps a provider name to its
// backend settings; DefaultProvider selects which one serves requests.
type RerankerConfig struct {
	Enabled         bool                              `koanf:"enabled"`
	DefaultProvider string                            `koanf:"default_provider"`
	Providers       map[string]RerankerProviderConfig `koanf:"providers"`
	Timeout         Duration                          `koanf:"timeout"`
}

// IndexerConfig configures document chunking.
type IndexerConfig struct {
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`
}

// applyDefaults fills in defaults for unset values.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8087
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = Duration(30 * time.Second)
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = Duration(60 * time.Second)
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = "ragstore"
	}
	if cfg.Qdrant.VectorSize == 0 {
		cfg.Qdrant.VectorSize = 768
	}
	if cfg.Qdrant.RequestTimeout == 0 {
		cfg.Qdrant.RequestTimeout = Duration(30 * time.Second)
	}
	if cfg.Qdrant.MaxRetries == 0 {
		cfg.Qdrant.MaxRetries = 3
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "tei"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = Duration(60 * time.Second)
	}
	if cfg.Embeddings.RateBurst == 0 {
		cfg.Embeddings.RateBurst = 4
	}

	if cfg.Reranker.Timeout == 0 {
		cfg.Reranker.Timeout = Duration(30 * time.Second)
	}
	for name, p := range cfg.Reranker.Providers {
		if p.TopN == 0 {
			p.TopN = 10
		}
		cfg.Reranker.Providers[name] = p
	}

	if cfg.Indexer.ChunkSize == 0 {
		cfg.Indexer.ChunkSize = 1000
	}
	if cfg.Indexer.ChunkOverlap == 0 {
		cfg.Indexer.ChunkOverlap = 200
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port: %d", c.Server.Port)
	}
	if _, err := logging.LevelFromString(c.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging: invalid format: %s", c.Logging.Format)
	}
	if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
		return fmt.Errorf("qdrant: invalid port: %d", c.Qdrant.Port)
	}
	if c.Qdrant.Collection == "" {
		return fmt.Errorf("qdrant: collection required")
	}
	switch c.Embeddings.Provider {
	case "tei", "openai":
	default:
		return fmt.Errorf("embeddings: unknown provider: %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Provider == "openai" && !c.Embeddings.APIKey.IsSet() {
		return fmt.Errorf("embeddings: openai provider requires api_key")
	}
	if c.Embeddings.RateLimit < 0 {
		return fmt.Errorf("embeddings: rate_limit cannot be negative")
	}
	if c.Embeddings.BatchSize < 0 {
		return fmt.Errorf("embeddings: batch_size cannot be negative")
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings: dimensions cannot be negative")
	}
	if c.Embeddings.Dimensions > 0 && uint64(c.Embeddings.Dimensions) != c.Qdrant.VectorSize {
		return fmt.Errorf("embeddings: dimensions %d does not match qdrant vector_size %d",
			c.Embeddings.Dimensions, c.Qdrant.VectorSize)
	}
	if c.Indexer.ChunkSize <= 0 {
		return fmt.Errorf("indexer: chunk_size must be positive")
	}
	if c.Indexer.ChunkOverlap < 0 || c.Indexer.ChunkOverlap >= c.Indexer.ChunkSize {
		return fmt.Errorf("indexer: chunk_overlap must be in [0, chunk_size)")
	}
	return nil
}

// LoggingSettings converts the logging section into the logging package's
// config, which carries a parsed zap level.
func (c *Config) LoggingSettings() (*logging.Config, error) {
	level, err := logging.LevelFromString(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	lc := logging.NewDefaultConfig()
	lc.Level = level
	lc.Format = c.Logging.Format
	return lc, nil
}
