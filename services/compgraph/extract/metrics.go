// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

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
	tracer = otel.Tracer("compgraph.extract")
	meter  = otel.Meter("compgraph.extract")
)

var (
	extractLatency   metric.Float64Histogram
	componentsFound  metric.Int64Counter
	usagesFound      metric.Int64Counter
	unresolvedUsages metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		extractLatency, err = meter.Float64Histogram(
			"compgraph_extract_duration_seconds",
			metric.WithDescription("Duration of per-file component extraction"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		componentsFound, err = meter.Int64Counter(
			"compgraph_extract_components_total",
			metric.WithDescription("Total number of root components extracted"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		usagesFound, err = meter.Int64Counter(
			"compgraph_extract_usages_total",
			metric.WithDescription("Total number of distinct component usages extracted"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		unresolvedUsages, err = meter.Int64Counter(
			"compgraph_extract_unresolved_total",
			metric.WithDescription("Total number of usages whose origin could not be resolved"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordExtractMetrics(ctx context.Context, duration time.Duration, decls []ComponentDeclaration) {
	if initMetrics() != nil {
		return
	}
	extractLatency.Record(ctx, duration.Seconds())
	componentsFound.Add(ctx, int64(len(decls)))

	var usages, unresolved, external int64
	for _, d := range decls {
		for _, u := range d.Usages {
			usages++
			if !u.Resolved {
				unresolved++
			}
			if u.External {
				external++
			}
		}
	}
	usagesFound.Add(ctx, usages-external, metric.WithAttributes(attribute.Bool("external", false)))
	usagesFound.Add(ctx, external, metric.WithAttributes(attribute.Bool("external", true)))
	unresolvedUsages.Add(ctx, unresolved)
}

func startExtractSpan(ctx context.Context, filePath string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Extractor.Extract",
		trace.WithAttributes(attribute.String("extract.file", filePath)),
	)
}

func setExtractSpanResult(span trace.Span, decls []ComponentDeclaration) {
	usages := 0
	for _, d := range decls {
		usages += len(d.Usages)
	}
	span.SetAttributes(
		attribute.Int("extract.component_count", len(decls)),
		attribute.Int("extract.usage_count", usages),
	)
}
