// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("compgraph.workspace")
	meter  = otel.Meter("compgraph.workspace")
)

var (
	runLatency    metric.Float64Histogram
	runFiles      metric.Int64Counter
	runFileErrors metric.Int64Counter
	runEdgeErrors metric.Int64Counter
	watchRebuilds metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runLatency, err = meter.Float64Histogram(
			"compgraph_run_duration_seconds",
			metric.WithDescription("Duration of full workspace runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runFiles, err = meter.Int64Counter(
			"compgraph_run_files_total",
			metric.WithDescription("Total number of source files processed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runFileErrors, err = meter.Int64Counter(
			"compgraph_run_file_errors_total",
			metric.WithDescription("Total number of files that failed to parse or extract"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runEdgeErrors, err = meter.Int64Counter(
			"compgraph_run_edge_errors_total",
			metric.WithDescription("Total number of rejected dependency edges"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		watchRebuilds, err = meter.Int64Counter(
			"compgraph_watch_rebuilds_total",
			metric.WithDescription("Total number of rebuilds triggered by file changes"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordRunMetrics(ctx context.Context, result *RunResult) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("incomplete", result.Incomplete))
	runLatency.Record(ctx, time.Duration(result.Stats.DurationMilli*int64(time.Millisecond)).Seconds(), attrs)
	runFiles.Add(ctx, int64(result.Stats.FilesProcessed))
	runFileErrors.Add(ctx, int64(result.Stats.FilesFailed))
	runEdgeErrors.Add(ctx, int64(len(result.EdgeErrors)))
}

func recordWatchRebuild(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	watchRebuilds.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

func startRunSpan(ctx context.Context, runID string, projects int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Orchestrator.Run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.projects", projects),
		),
	)
}

func setRunSpanResult(span trace.Span, result *RunResult) {
	span.SetAttributes(
		attribute.Int("run.files", result.Stats.FilesProcessed),
		attribute.Int("run.files_failed", result.Stats.FilesFailed),
		attribute.Int("run.components", result.Stats.RegistryComponents),
		attribute.Int("run.edges", result.Stats.RegistryEdges),
		attribute.Int("run.edge_errors", len(result.EdgeErrors)),
	)
}

func withProjectAttrs(p *Project) []trace.SpanStartOption {
	return []trace.SpanStartOption{
		trace.WithAttributes(
			attribute.String("project.name", p.Name),
			attribute.String("project.role", p.Role.String()),
		),
	}
}
