// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/graph"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultSearchLimit   = 20
	maxSearchLimit       = 500
	defaultSnapshotLimit = 100
)

const requestIDKey = "request_id"

// requestID propagates or assigns X-Request-ID.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Set(requestIDKey, id)
		c.Next()
	}
}

func (s *Server) requestLogger(c *gin.Context, handler string) *slog.Logger {
	return s.logger.With(slog.String("request_id", c.GetString(requestIDKey)), slog.String("handler", handler))
}

// HandleHealth handles GET /v1/components/health.
func (s *Server) HandleHealth(c *gin.Context) {
	reg := s.holder.Get()
	c.JSON(http.StatusOK, HealthResponse{
		Status:     "ok",
		Components: reg.Len(),
		Edges:      reg.EdgeCount(),
	})
}

// HandleGraph handles GET /v1/components/graph.
//
// Description:
//
//	Returns the whole registry in its serialized form. The optional
//	project query parameter keeps only that project's entry.
//
// Response:
//
//	200 OK: graph.SerializableRegistry
func (s *Server) HandleGraph(c *gin.Context) {
	out := s.holder.Get().ToSerializable()
	if project := c.Query("project"); project != "" {
		kept := out.Projects[:0]
		for _, p := range out.Projects {
			if p.Name == project {
				kept = append(kept, p)
			}
		}
		out.Projects = kept
	}
	c.JSON(http.StatusOK, out)
}

// HandleStats handles GET /v1/components/stats.
func (s *Server) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.holder.Get().Stats())
}

// HandleSearch handles GET /v1/components/search.
//
// Query Parameters:
//
//	q: Name fragment (required)
//	project: Restrict to one project (optional)
//	limit: Maximum results, default 20, at most 500 (optional)
//
// Response:
//
//	200 OK: SearchResponse
//	400 Bad Request: Missing q or invalid limit
func (s *Server) HandleSearch(c *gin.Context) {
	logger := s.requestLogger(c, "HandleSearch")

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "q parameter is required", Code: "MISSING_PARAMETER"})
		return
	}

	limit := defaultSearchLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer", Code: "INVALID_PARAMETER"})
			return
		}
		limit = min(parsed, maxSearchLimit)
	}

	results, err := s.holder.Get().Search(c.Request.Context(), query, c.Query("project"), limit)
	if err != nil {
		logger.Warn("search failed", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: "SEARCH_CANCELLED"})
		return
	}
	if results == nil {
		results = []graph.SearchResult{}
	}
	c.JSON(http.StatusOK, SearchResponse{Query: query, Results: results})
}

// HandleComponent handles GET /v1/components/:id.
//
// Response:
//
//	200 OK: ComponentResponse
//	404 Not Found: Unknown id
func (s *Server) HandleComponent(c *gin.Context) {
	id := c.Param("id")
	reg := s.holder.Get()

	info, ok := reg.GetComponent(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "component not found: " + id, Code: "NOT_FOUND"})
		return
	}
	deps := reg.GetDependencies(id)
	if deps == nil {
		deps = []graph.DependencyEdge{}
	}
	dependents := reg.GetDependents(id)
	if dependents == nil {
		dependents = []string{}
	}
	c.JSON(http.StatusOK, ComponentResponse{Component: info, Dependencies: deps, Dependents: dependents})
}

// HandleTraverse handles GET /v1/components/:id/traverse.
//
// Response:
//
//	200 OK: TraverseResponse
//	404 Not Found: Unknown id
func (s *Server) HandleTraverse(c *gin.Context) {
	id := c.Param("id")
	steps, err := s.holder.Get().TraverseFrom(id)
	if err != nil {
		if errors.Is(err, graph.ErrComponentNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "TRAVERSE_FAILED"})
		return
	}
	c.JSON(http.StatusOK, TraverseResponse{Root: id, Steps: steps})
}

func (s *Server) requireSnapshots(c *gin.Context) bool {
	if s.snapshots == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "snapshot persistence not configured",
			Code:  "SNAPSHOTS_NOT_AVAILABLE",
		})
		return false
	}
	return true
}

// HandleListSnapshots handles GET /v1/snapshots.
func (s *Server) HandleListSnapshots(c *gin.Context) {
	if !s.requireSnapshots(c) {
		return
	}
	logger := s.requestLogger(c, "HandleListSnapshots")

	limit := defaultSnapshotLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	list, err := s.snapshots.List(c.Request.Context(), s.workspaceRoot, limit)
	if err != nil {
		logger.Error("failed to list snapshots", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list snapshots: " + err.Error(), Code: "SNAPSHOT_LIST_FAILED"})
		return
	}
	if list == nil {
		list = []*graph.SnapshotMetadata{}
	}
	c.JSON(http.StatusOK, ListSnapshotsResponse{Snapshots: list})
}

// HandleSaveSnapshot handles POST /v1/snapshots.
//
// Response:
//
//	201 Created: graph.SnapshotMetadata
//	400 Bad Request: Invalid body
func (s *Server) HandleSaveSnapshot(c *gin.Context) {
	if !s.requireSnapshots(c) {
		return
	}
	logger := s.requestLogger(c, "HandleSaveSnapshot")

	var req SaveSnapshotRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
			return
		}
	}

	meta, err := s.snapshots.Save(c.Request.Context(), s.holder.Get(), s.workspaceRoot, req.Label)
	if err != nil {
		logger.Error("failed to save snapshot", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to save snapshot: " + err.Error(), Code: "SNAPSHOT_SAVE_FAILED"})
		return
	}
	logger.Info("snapshot saved", slog.String("snapshot_id", meta.SnapshotID))
	c.JSON(http.StatusCreated, meta)
}

// HandleDeleteSnapshot handles DELETE /v1/snapshots/:id.
func (s *Server) HandleDeleteSnapshot(c *gin.Context) {
	if !s.requireSnapshots(c) {
		return
	}
	id := c.Param("id")
	if err := s.snapshots.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, graph.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "SNAPSHOT_DELETE_FAILED"})
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleDiffSnapshot handles GET /v1/snapshots/:id/diff.
//
// Description:
//
//	Compares the stored snapshot (base) with the registry currently
//	served (target, reported as "current").
//
// Response:
//
//	200 OK: graph.RegistryDiff
//	404 Not Found: Unknown snapshot
func (s *Server) HandleDiffSnapshot(c *gin.Context) {
	if !s.requireSnapshots(c) {
		return
	}
	logger := s.requestLogger(c, "HandleDiffSnapshot")
	id := c.Param("id")

	base, _, err := s.snapshots.Load(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, graph.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})
			return
		}
		logger.Error("failed to load snapshot", slog.String("snapshot_id", id), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "SNAPSHOT_LOAD_FAILED"})
		return
	}
	diff, err := graph.DiffRegistries(base, s.holder.Get(), id, "current")
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "DIFF_FAILED"})
		return
	}
	c.JSON(http.StatusOK, diff)
}
