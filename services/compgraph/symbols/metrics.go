// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package symbols

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("compgraph.symbols")
	meter  = otel.Meter("compgraph.symbols")
)

var (
	followLatency metric.Float64Histogram
	followTotal   metric.Int64Counter
	followHops    metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		followLatency, err = meter.Float64Histogram(
			"compgraph_follow_duration_seconds",
			metric.WithDescription("Duration of import chain following"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		followTotal, err = meter.Int64Counter(
			"compgraph_follow_total",
			metric.WithDescription("Total number of import chains followed, by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		followHops, err = meter.Int64Histogram(
			"compgraph_follow_hops",
			metric.WithDescription("Number of re-export hops per followed import"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// followOutcome labels a Follow result for metrics.
func followOutcome(origin Origin, err error) string {
	switch {
	case err == nil && origin.External:
		return "external"
	case err == nil:
		return "resolved"
	case IsCircular(err):
		return "circular"
	case errors.Is(err, ErrSymbolNotFound):
		return "not_found"
	case errors.Is(err, ErrParseFailed):
		return "parse_failed"
	case errors.Is(err, ErrMaxDepth):
		return "too_deep"
	default:
		return "error"
	}
}

func recordFollowMetrics(ctx context.Context, duration time.Duration, origin Origin, err error) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", followOutcome(origin, err)))
	followLatency.Record(ctx, duration.Seconds(), attrs)
	followTotal.Add(ctx, 1, attrs)
	if err == nil {
		followHops.Record(ctx, int64(origin.Hops))
	}
}

func startFollowSpan(ctx context.Context, originFile, specifier, symbol string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Follower.Follow",
		trace.WithAttributes(
			attribute.String("symbols.origin_file", originFile),
			attribute.String("symbols.specifier", specifier),
			attribute.String("symbols.symbol", symbol),
		),
	)
}
