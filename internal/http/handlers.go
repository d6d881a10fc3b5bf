package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/indexer"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/retrieval"
	"github.com/fyrsmithlabs/ragstore/internal/serializer"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// EntityRef addresses a document or resource in request bodies.
type EntityRef struct {
	NodeType string `json:"node_type"`
	EntityID string `json:"entity_id"`
}

func (r EntityRef) entity() vectorstore.Entity {
	return vectorstore.Entity{Type: vectorstore.NodeType(r.NodeType), ID: r.EntityID}
}

// IndexRequest is the request body for POST /api/v1/index.
type IndexRequest struct {
	EntityRef
	TenantID string                 `json:"tenant_id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (s *Server) handleIndex(c echo.Context) error {
	var req IndexRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := logging.WithTenantID(c.Request().Context(), req.TenantID)
	stats, err := s.indexer.Index(ctx, req.TenantID, req.entity(), req.Text, req.Metadata)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// DeleteRequest is the request body for DELETE /api/v1/index.
type DeleteRequest struct {
	EntityRef
	TenantID string `json:"tenant_id"`
}

func (s *Server) handleDelete(c echo.Context) error {
	var req DeleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := logging.WithTenantID(c.Request().Context(), req.TenantID)
	if err := s.indexer.Delete(ctx, req.TenantID, req.entity()); err != nil {
		return s.mapError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// UpdatePayloadRequest is the request body for PATCH /api/v1/index/payload.
type UpdatePayloadRequest struct {
	EntityRef
	TenantID string                 `json:"tenant_id"`
	Patch    map[string]interface{} `json:"patch"`
}

func (s *Server) handleUpdatePayload(c echo.Context) error {
	var req UpdatePayloadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := logging.WithTenantID(c.Request().Context(), req.TenantID)
	if err := s.indexer.UpdatePayload(ctx, req.TenantID, req.entity(), req.Patch); err != nil {
		return s.mapError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RetrieveRequest is the request body for POST /api/v1/retrieve.
type RetrieveRequest struct {
	TenantID   string    `json:"tenant_id"`
	Query      string    `json:"query"`
	Vector     []float32 `json:"vector,omitempty"`
	Limit      uint64    `json:"limit,omitempty"`
	NodeTypes  []string  `json:"node_types,omitempty"`
	URL        string    `json:"url,omitempty"`
	DocID      string    `json:"doc_id,omitempty"`
	ResourceID string    `json:"resource_id,omitempty"`
	ProjectID  string    `json:"project_id,omitempty"`
	Rerank     bool      `json:"rerank,omitempty"`
}

// RetrieveResponse is the response body for POST /api/v1/retrieve.
type RetrieveResponse struct {
	Results []retrieval.Result `json:"results"`
}

func (s *Server) handleRetrieve(c echo.Context) error {
	var req RetrieveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := logging.WithTenantID(c.Request().Context(), req.TenantID)
	results, err := s.coordinator.Retrieve(ctx, req.TenantID, retrieval.Query{
		Text:       req.Query,
		Vector:     req.Vector,
		Limit:      req.Limit,
		NodeTypes:  req.NodeTypes,
		URL:        req.URL,
		DocID:      req.DocID,
		ResourceID: req.ResourceID,
		ProjectID:  req.ProjectID,
		Rerank:     req.Rerank,
	})
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, RetrieveResponse{Results: results})
}

// DuplicateRequest is the request body for POST /api/v1/duplicate.
type DuplicateRequest struct {
	SourceTenant string    `json:"source_tenant"`
	TargetTenant string    `json:"target_tenant"`
	Source       EntityRef `json:"source"`
	Target       EntityRef `json:"target"`
}

// DuplicateResponse is the response body for POST /api/v1/duplicate.
type DuplicateResponse struct {
	Points int `json:"points"`
}

func (s *Server) handleDuplicate(c echo.Context) error {
	var req DuplicateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := logging.WithTenantID(c.Request().Context(), req.SourceTenant)
	n, err := s.coordinator.Duplicate(ctx, req.SourceTenant, req.TargetTenant,
		req.Source.entity(), req.Target.entity())
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, DuplicateResponse{Points: n})
}

// ExportRequest is the request body for POST /api/v1/export.
type ExportRequest struct {
	EntityRef
	TenantID string `json:"tenant_id"`
}

func (s *Server) handleExport(c echo.Context) error {
	var req ExportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := logging.WithTenantID(c.Request().Context(), req.TenantID)
	bundle, err := s.serializer.Export(ctx, req.TenantID, req.entity())
	if err != nil {
		return s.mapError(c, err)
	}
	// Bundle.Data is []byte; JSON encoding base64s it.
	return c.JSON(http.StatusOK, bundle)
}

// ImportRequest is the request body for POST /api/v1/import.
type ImportRequest struct {
	EntityRef
	TenantID string            `json:"tenant_id"`
	Bundle   serializer.Bundle `json:"bundle"`
}

// ImportResponse is the response body for POST /api/v1/import.
type ImportResponse struct {
	Points int `json:"points"`
}

func (s *Server) handleImport(c echo.Context) error {
	var req ImportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := logging.WithTenantID(c.Request().Context(), req.TenantID)
	n, err := s.serializer.Import(ctx, req.TenantID, req.entity(), &req.Bundle)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, ImportResponse{Points: n})
}

// mapError translates domain errors into HTTP status codes. Validation
// failures are the caller's fault; everything else is a 500.
func (s *Server) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, indexer.ErrInvalidInput),
		errors.Is(err, retrieval.ErrInvalidInput),
		errors.Is(err, serializer.ErrInvalidInput),
		errors.Is(err, serializer.ErrUnknownVersion),
		errors.Is(err, serializer.ErrCorruptBundle):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(c.Request().Context(), "request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
