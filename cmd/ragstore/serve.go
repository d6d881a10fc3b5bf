package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/config"
	"github.com/fyrsmithlabs/ragstore/internal/embeddings"
	httpserver "github.com/fyrsmithlabs/ragstore/internal/http"
	"github.com/fyrsmithlabs/ragstore/internal/indexer"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/reranker"
	"github.com/fyrsmithlabs/ragstore/internal/retrieval"
	"github.com/fyrsmithlabs/ragstore/internal/serializer"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ragstore HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		return runServe(ctx)
	},
}

// runServe wires all services and blocks until the context is cancelled.
func runServe(ctx context.Context) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logCfg, err := cfg.LoggingSettings()
	if err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	store, err := vectorstore.NewQdrantStore(&vectorstore.QdrantConfig{
		Host:           cfg.Qdrant.Host,
		Port:           cfg.Qdrant.Port,
		CollectionName: cfg.Qdrant.Collection,
		VectorSize:     cfg.Qdrant.VectorSize,
		UseTLS:         cfg.Qdrant.UseTLS,
		APIKey:         cfg.Qdrant.APIKey.Value(),
		RequestTimeout: cfg.Qdrant.RequestTimeout.Duration(),
		MaxRetries:     cfg.Qdrant.MaxRetries,
	}, logger)
	if err != nil {
		return fmt.Errorf("connecting to vector store: %w", err)
	}
	defer store.Close()

	embedder, err := embeddings.NewEmbedder(&cfg.Embeddings, logger)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	splitter, err := indexer.NewDefaultSplitter(cfg.Indexer.ChunkSize, cfg.Indexer.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("creating splitter: %w", err)
	}

	ix, err := indexer.New(store, embedder, splitter, logger)
	if err != nil {
		return fmt.Errorf("creating indexer: %w", err)
	}

	var rr *reranker.Orchestrator
	if cfg.Reranker.Enabled {
		rr = reranker.NewOrchestrator(cfg.Reranker, logger)
		defer rr.Close()
	}

	coordinator, err := retrieval.New(store, embedder, rr, logger)
	if err != nil {
		return fmt.Errorf("creating retrieval coordinator: %w", err)
	}

	ser, err := serializer.New(store, logger)
	if err != nil {
		return fmt.Errorf("creating serializer: %w", err)
	}

	srv, err := httpserver.NewServer(ix, coordinator, ser, rr, logger, cfg.Server)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "shutdown error", zap.Error(err))
		return err
	}
	logger.Info(shutdownCtx, "server shutdown complete")
	return nil
}
