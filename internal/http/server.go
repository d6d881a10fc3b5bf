// Package http provides the HTTP API for ragstore.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/config"
	"github.com/fyrsmithlabs/ragstore/internal/indexer"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/reranker"
	"github.com/fyrsmithlabs/ragstore/internal/retrieval"
	"github.com/fyrsmithlabs/ragstore/internal/serializer"
)

// Server provides HTTP endpoints for indexing, retrieval and bundle
// transfer.
type Server struct {
	echo        *echo.Echo
	indexer     *indexer.Indexer
	coordinator *retrieval.Coordinator
	serializer  *serializer.Serializer
	reranker    *reranker.Orchestrator
	logger      *logging.Logger
	config      config.ServerConfig
}

// NewServer creates the HTTP server and registers its routes.
func NewServer(
	ix *indexer.Indexer,
	coordinator *retrieval.Coordinator,
	ser *serializer.Serializer,
	rr *reranker.Orchestrator,
	logger *logging.Logger,
	cfg config.ServerConfig,
) (*Server, error) {
	if ix == nil || coordinator == nil || ser == nil || logger == nil {
		return nil, fmt.Errorf("indexer, coordinator, serializer and logger are required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)

			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", requestID),
			)
			return err
		}
	})

	s := &Server{
		echo:        e,
		indexer:     ix,
		coordinator: coordinator,
		serializer:  ser,
		reranker:    rr,
		logger:      logger,
		config:      cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/index", s.handleIndex)
	v1.DELETE("/index", s.handleDelete)
	v1.PATCH("/index/payload", s.handleUpdatePayload)
	v1.POST("/retrieve", s.handleRetrieve)
	v1.POST("/duplicate", s.handleDuplicate)
	v1.POST("/export", s.handleExport)
	v1.POST("/import", s.handleImport)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))

	s.echo.Server.ReadTimeout = s.config.ReadTimeout.Duration()
	s.echo.Server.WriteTimeout = s.config.WriteTimeout.Duration()
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	RerankerState string `json:"reranker_state,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if s.reranker != nil {
		resp.RerankerState = s.reranker.State().String()
	}
	return c.JSON(http.StatusOK, resp)
}
