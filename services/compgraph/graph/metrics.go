// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

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
	tracer = otel.Tracer("compgraph.graph")
	meter  = otel.Meter("compgraph.graph")
)

var (
	operationLatency metric.Float64Histogram
	operationTotal   metric.Int64Counter
	batchEdgeErrors  metric.Int64Counter
	searchResults    metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		operationLatency, err = meter.Float64Histogram(
			"compgraph_registry_operation_duration_seconds",
			metric.WithDescription("Duration of component registry operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		operationTotal, err = meter.Int64Counter(
			"compgraph_registry_operation_total",
			metric.WithDescription("Total component registry operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		batchEdgeErrors, err = meter.Int64Counter(
			"compgraph_registry_edge_errors_total",
			metric.WithDescription("Total dependency edges rejected while applying batches"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		searchResults, err = meter.Int64Histogram(
			"compgraph_registry_search_results",
			metric.WithDescription("Number of results returned by component search"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordOperationMetrics(ctx context.Context, operation string, duration time.Duration, success bool) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", success),
	)
	operationLatency.Record(ctx, duration.Seconds(), attrs)
	operationTotal.Add(ctx, 1, attrs)
}

func recordBatchEdgeErrors(ctx context.Context, n int) {
	if n == 0 || initMetrics() != nil {
		return
	}
	batchEdgeErrors.Add(ctx, int64(n))
}

func recordSearchResults(ctx context.Context, n int) {
	if initMetrics() != nil {
		return
	}
	searchResults.Record(ctx, int64(n))
}

func startOperationSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ComponentRegistry."+operation)
}
