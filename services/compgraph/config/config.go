// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the compgraph tool configuration.
//
// Values come from defaults, then a .compgraph.yaml file, then COMPGRAPH_
// environment variables, then command line flags bound by the caller.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/extract"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/graph"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/workspace"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig is returned when the loaded configuration fails
// validation.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DefaultServerAddr     = "127.0.0.1:8089"
	DefaultServiceName    = "compgraph"
	DefaultSnapshotDir    = ".compgraph/snapshots"
	DefaultWatchDebounce  = 100 * time.Millisecond
	DefaultMaxFollowDepth = 64
)

// Config is the complete tool configuration.
type Config struct {
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Watch     WatchConfig     `mapstructure:"watch"`
}

// AnalysisConfig controls how projects are analyzed.
type AnalysisConfig struct {
	// Workers is the number of parallel file workers. 0 means one per CPU.
	Workers int `mapstructure:"workers" validate:"gte=0,lte=512"`

	FactsCacheSize int `mapstructure:"facts_cache_size" validate:"gte=0"`
	MaxFollowDepth int `mapstructure:"max_follow_depth" validate:"gte=1,lte=1024"`
	MaxComponents  int `mapstructure:"max_components" validate:"gte=1"`

	Include []string `mapstructure:"include" validate:"dive,glob"`
	Exclude []string `mapstructure:"exclude" validate:"dive,glob"`

	InferArrowComponents bool     `mapstructure:"infer_arrow_components"`
	CountSpreadProps     bool     `mapstructure:"count_spread_props"`
	IgnoredTags          []string `mapstructure:"ignored_tags" validate:"dive,required"`

	UnresolvedPolicy string `mapstructure:"unresolved_policy" validate:"oneof=same-file none"`
	ExternalPolicy   string `mapstructure:"external_policy" validate:"oneof=placeholder skip"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=auto text json"`
}

// ServerConfig configures the HTTP read API.
type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required,hostname_port"`
}

// SnapshotConfig configures registry snapshots.
type SnapshotConfig struct {
	// Dir is the badger directory. Empty keeps snapshots in memory.
	Dir string `mapstructure:"dir"`
}

// TelemetryConfig selects trace and metric exporters.
type TelemetryConfig struct {
	ServiceName    string `mapstructure:"service_name" validate:"required"`
	TraceExporter  string `mapstructure:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `mapstructure:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
}

// WatchConfig configures the file watcher.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" validate:"gte=0"`
}

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("glob", validateGlob)
}

// validateGlob rejects malformed glob patterns.
func validateGlob(fl validator.FieldLevel) bool {
	return doublestar.ValidatePattern(fl.Field().String())
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LogLevel returns the slog level of Log.Level.
func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OrchestratorOptions converts the analysis settings to orchestrator
// options.
func (c *Config) OrchestratorOptions(logger *slog.Logger) ([]workspace.Option, error) {
	a := c.Analysis
	unresolved, ok := extract.ParseUnresolvedPolicy(a.UnresolvedPolicy)
	if !ok {
		return nil, fmt.Errorf("%w: unresolved_policy %q", ErrInvalidConfig, a.UnresolvedPolicy)
	}
	external, err := workspace.ParseExternalPolicy(a.ExternalPolicy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	extractOpts := []extract.Option{
		extract.WithInferArrowComponents(a.InferArrowComponents),
		extract.WithCountSpreadProps(a.CountSpreadProps),
		extract.WithUnresolvedPolicy(unresolved),
	}
	if len(a.IgnoredTags) > 0 {
		extractOpts = append(extractOpts, extract.WithIgnoredTags(a.IgnoredTags))
	}

	return []workspace.Option{
		workspace.WithWorkers(a.Workers),
		workspace.WithFactsCacheSize(a.FactsCacheSize),
		workspace.WithMaxFollowDepth(a.MaxFollowDepth),
		workspace.WithExternalPolicy(external),
		workspace.WithExtractorOptions(extractOpts...),
		workspace.WithLogger(logger),
	}, nil
}

// ProjectOptions converts the include and exclude globs to project options.
func (c *Config) ProjectOptions(logger *slog.Logger) []workspace.ProjectOption {
	opts := []workspace.ProjectOption{workspace.WithProjectLogger(logger)}
	if len(c.Analysis.Include) > 0 {
		opts = append(opts, workspace.WithInclude(c.Analysis.Include...))
	}
	if len(c.Analysis.Exclude) > 0 {
		opts = append(opts, workspace.WithExclude(c.Analysis.Exclude...))
	}
	return opts
}

// RegistryOptions returns the registry options.
func (c *Config) RegistryOptions() []graph.RegistryOption {
	return []graph.RegistryOption{graph.WithMaxComponents(c.Analysis.MaxComponents)}
}
