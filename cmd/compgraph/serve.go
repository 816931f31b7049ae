// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/config"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/graph"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/server"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/telemetry"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/workspace"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func (a *app) serveCommand() *cobra.Command {
	var (
		t       targets
		noWatch bool
	)
	cmd := &cobra.Command{
		Use:   "serve [roots...]",
		Short: "Analyze, then serve the graph over HTTP and rebuild on change",
		Long: `Serve builds the graph once, publishes it at /v1/components and
rebuilds it whenever a source or configuration file under a project root
changes. Snapshots of the served graph can be saved through /v1/snapshots.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			t.Roots = defaultRoots(args)
			return a.serve(cmd.Context(), t, !noWatch)
		},
	}
	t.register(cmd)
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not rebuild on file changes")
	cmd.Flags().String("addr", config.DefaultServerAddr, "listen address")
	cmd.Flags().String("trace-exporter", "none", "trace exporter: none, stdout, otlp")
	cmd.Flags().String("metric-exporter", "prometheus", "metric exporter: none, stdout, prometheus")
	cmd.Flags().String("otlp-endpoint", "", "OTLP gRPC endpoint, e.g. localhost:4317")
	cmd.Flags().Duration("debounce", config.DefaultWatchDebounce, "file change debounce window")
	return cmd
}

func (a *app) serve(ctx context.Context, t targets, watch bool) error {
	gin.SetMode(gin.ReleaseMode)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	shutdown, err := telemetry.Init(ctx, telemetryConfig(a.cfg))
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			a.logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	fsys := afero.NewOsFs()
	orch, projects, result, err := a.runAnalysis(ctx, fsys, t)
	if err != nil {
		return err
	}
	a.logger.Info("initial analysis complete",
		slog.String("run_id", result.RunID),
		slog.Int("components", result.Stats.RegistryComponents),
		slog.Int("edges", result.Stats.RegistryEdges),
		slog.Bool("errors", result.HasErrors()))

	holder := workspace.NewRegistryHolder(orch.Registry())

	root, err := t.workspaceRoot()
	if err != nil {
		return err
	}
	db, err := graph.OpenSnapshotDB(a.cfg.Snapshot.Dir, a.logger)
	if err != nil {
		return err
	}
	defer db.Close()
	snapshots, err := graph.NewSnapshotManager(db, a.logger)
	if err != nil {
		return err
	}

	hub := server.NewEventHub()
	if watch {
		w := workspace.NewWatcher(orch, holder, projects,
			workspace.WithRebuildCallback(func(result *workspace.RunResult, err error) {
				hub.Publish(server.NewRebuildEvent(result, err))
			}),
			workspace.WithDebounce(a.cfg.Watch.Debounce),
			workspace.WithRegistryOptions(a.cfg.RegistryOptions()...),
			workspace.WithWatcherLogger(a.logger),
			workspace.WithProjectLoader(func(context.Context) ([]*workspace.Project, error) {
				reloaded, errs := a.loadProjects(fsys, t)
				for _, e := range errs {
					a.logger.Warn("project skipped", slog.String("root", e.Root), slog.String("error", e.Err.Error()))
				}
				if len(reloaded) == 0 {
					return nil, errors.New("no projects left after reload")
				}
				return reloaded, nil
			}),
		)
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	opts := []server.Option{
		server.WithSnapshots(snapshots, root),
		server.WithEvents(hub),
		server.WithLogger(a.logger),
	}
	if h := telemetry.MetricsHandler(); h != nil {
		opts = append(opts, server.WithMetricsHandler(h))
	}
	return server.New(holder, opts...).ListenAndServe(ctx, a.cfg.Server.Addr)
}

func telemetryConfig(cfg *config.Config) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceName = cfg.Telemetry.ServiceName
	tc.ServiceVersion = version
	tc.TraceExporter = cfg.Telemetry.TraceExporter
	tc.MetricExporter = cfg.Telemetry.MetricExporter
	if cfg.Telemetry.OTLPEndpoint != "" {
		tc.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	return tc
}
