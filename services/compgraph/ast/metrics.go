// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for source parsing.
var (
	tracer = otel.Tracer("compgraph.ast")
	meter  = otel.Meter("compgraph.ast")
)

// Metrics for parsing operations.
var (
	parseLatency       metric.Float64Histogram
	parseTotal         metric.Int64Counter
	declarationsParsed metric.Int64Histogram
	jsxElementsParsed  metric.Int64Histogram
	parseErrors        metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		parseLatency, err = meter.Float64Histogram(
			"compgraph_parse_duration_seconds",
			metric.WithDescription("Duration of source parsing operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseTotal, err = meter.Int64Counter(
			"compgraph_parse_total",
			metric.WithDescription("Total number of parse operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		declarationsParsed, err = meter.Int64Histogram(
			"compgraph_parse_declarations",
			metric.WithDescription("Number of declarations found per parse"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		jsxElementsParsed, err = meter.Int64Histogram(
			"compgraph_parse_jsx_elements",
			metric.WithDescription("Number of JSX elements found per parse"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseErrors, err = meter.Int64Counter(
			"compgraph_parse_errors_total",
			metric.WithDescription("Total number of failed parse operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordParseMetrics records metrics for a parse operation.
//
// Parameters:
//   - ctx: Context for metric recording
//   - language: Language being parsed ("typescript", "javascript")
//   - duration: How long the parse took
//   - facts: Parse result, nil on failure
func recordParseMetrics(ctx context.Context, language string, duration time.Duration, facts *Facts) {
	if err := initMetrics(); err != nil {
		return
	}

	success := facts != nil
	attrs := metric.WithAttributes(
		attribute.String("language", language),
		attribute.Bool("success", success),
	)

	parseLatency.Record(ctx, duration.Seconds(), attrs)
	parseTotal.Add(ctx, 1, attrs)

	langAttr := metric.WithAttributes(attribute.String("language", language))
	if !success {
		parseErrors.Add(ctx, 1, langAttr)
		return
	}
	declarationsParsed.Record(ctx, int64(len(facts.Declarations)), langAttr)
	jsxElementsParsed.Record(ctx, int64(len(facts.JSX)), langAttr)
}

// startParseSpan creates a span for a parse operation.
func startParseSpan(ctx context.Context, language, filePath string, contentSize int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Parser.Parse",
		trace.WithAttributes(
			attribute.String("ast.language", language),
			attribute.String("ast.file", filePath),
			attribute.Int("ast.content_size", contentSize),
		),
	)
}

// setParseSpanResult sets the result attributes on a parse span.
func setParseSpanResult(span trace.Span, facts *Facts) {
	span.SetAttributes(
		attribute.Int("ast.declaration_count", len(facts.Declarations)),
		attribute.Int("ast.jsx_count", len(facts.JSX)),
		attribute.Int("ast.scope_count", len(facts.Scopes)),
		attribute.Int("ast.error_count", len(facts.Errors)),
	)
}
