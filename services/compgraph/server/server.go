// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes a component registry over a read-only HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/graph"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/workspace"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Option configures a Server.
type Option func(*Server)

// WithSnapshots enables the snapshot endpoints for workspaceRoot.
func WithSnapshots(mgr *graph.SnapshotManager, workspaceRoot string) Option {
	return func(s *Server) {
		s.snapshots = mgr
		s.workspaceRoot = workspaceRoot
	}
}

// WithMetricsHandler serves h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithEvents enables GET /v1/components/events, streaming the events
// published to hub.
func WithEvents(hub *EventHub) Option {
	return func(s *Server) {
		s.events = hub
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server serves the registry published by a RegistryHolder.
//
// Thread Safety:
//
//	Safe for concurrent use. Each request reads the registry current at
//	the time it starts.
type Server struct {
	holder        *workspace.RegistryHolder
	snapshots     *graph.SnapshotManager
	workspaceRoot string
	metrics       http.Handler
	events        *EventHub
	logger        *slog.Logger
	engine        *gin.Engine
}

// New creates a server and registers its routes.
func New(holder *workspace.RegistryHolder, opts ...Option) *Server {
	s := &Server{holder: holder, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), otelgin.Middleware("compgraph"), s.requestID())
	s.engine = engine
	s.RegisterRoutes(engine.Group("/v1"))
	if s.metrics != nil {
		engine.GET("/metrics", gin.WrapH(s.metrics))
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// RegisterRoutes registers the API under rg.
//
// Endpoints:
//
//	GET  /components/health - Health and registry size
//	GET  /components/graph - Serialized registry
//	GET  /components/stats - Registry statistics
//	GET  /components/search - Ranked name search (q, project, limit)
//	GET  /components/events - Websocket stream of rebuild events
//	GET  /components/:id - Component with its edges
//	GET  /components/:id/traverse - Depth-first traversal
//	GET  /snapshots - List snapshots
//	POST /snapshots - Save the current registry
//	DELETE /snapshots/:id - Delete a snapshot
//	GET  /snapshots/:id/diff - Diff a snapshot against the current registry
func (s *Server) RegisterRoutes(rg *gin.RouterGroup) {
	components := rg.Group("/components")
	{
		components.GET("/health", s.HandleHealth)
		components.GET("/graph", s.HandleGraph)
		components.GET("/stats", s.HandleStats)
		components.GET("/search", s.HandleSearch)
		components.GET("/events", s.HandleEvents)
		components.GET("/:id", s.HandleComponent)
		components.GET("/:id/traverse", s.HandleTraverse)
	}

	snapshots := rg.Group("/snapshots")
	{
		snapshots.GET("", s.HandleListSnapshots)
		snapshots.POST("", s.HandleSaveSnapshot)
		snapshots.DELETE("/:id", s.HandleDeleteSnapshot)
		snapshots.GET("/:id/diff", s.HandleDiffSnapshot)
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
