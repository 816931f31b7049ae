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
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/ast"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/extract"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/graph"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/resolve"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/symbols"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// Progress is reported after every file.
type Progress struct {
	RunID          string
	Project        string
	FilesProcessed int
	FilesFailed    int
	Components     int
	Edges          int
}

// ProgressFunc receives progress updates. It is called from a single
// goroutine.
type ProgressFunc func(Progress)

// RunStats summarizes a run.
type RunStats struct {
	Projects           int   `json:"projects"`
	FilesProcessed     int   `json:"files_processed"`
	FilesFailed        int   `json:"files_failed"`
	ComponentsAdded    int   `json:"components_added"`
	ComponentsMerged   int   `json:"components_merged"`
	EdgesAdded         int   `json:"edges_added"`
	Placeholders       int   `json:"placeholders"`
	CrossProjectUses   int   `json:"cross_project_usages"`
	SkippedUsages      int   `json:"skipped_usages"`
	UnresolvedUsages   int   `json:"unresolved_usages"`
	DurationMilli      int64 `json:"duration_milli"`
	RegistryComponents int   `json:"registry_components"`
	RegistryEdges      int   `json:"registry_edges"`
}

// RunResult is the outcome of Run. File, edge and project failures are
// collected and never stop the run.
type RunResult struct {
	RunID         string            `json:"run_id"`
	Projects      []string          `json:"projects"`
	FileErrors    []FileError       `json:"-"`
	EdgeErrors    []graph.EdgeError `json:"-"`
	ProjectErrors []ProjectError    `json:"-"`
	Stats         RunStats          `json:"stats"`

	// Incomplete is true when the context ended the run early.
	Incomplete bool `json:"incomplete"`
}

// HasErrors reports whether any file, edge or project failed.
func (r *RunResult) HasErrors() bool {
	return len(r.FileErrors) > 0 || len(r.EdgeErrors) > 0 || len(r.ProjectErrors) > 0
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets the number of parallel file workers. Defaults to
// runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) {
		o.progress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithExternalPolicy sets the handling of external package usages.
func WithExternalPolicy(p ExternalPolicy) Option {
	return func(o *Orchestrator) {
		o.external = p
	}
}

// WithExtractorOptions passes options to every extractor.
func WithExtractorOptions(opts ...extract.Option) Option {
	return func(o *Orchestrator) {
		o.extractOpts = append(o.extractOpts, opts...)
	}
}

// WithFactsCacheSize bounds the shared parsed-facts cache.
func WithFactsCacheSize(n int) Option {
	return func(o *Orchestrator) {
		o.cacheSize = n
	}
}

// WithMaxFollowDepth bounds import chains.
func WithMaxFollowDepth(n int) Option {
	return func(o *Orchestrator) {
		o.maxDepth = n
	}
}

// WithWalkerOptions passes options to every project walker.
func WithWalkerOptions(opts ...WalkerOption) Option {
	return func(o *Orchestrator) {
		o.walkOpts = append(o.walkOpts, opts...)
	}
}

// Orchestrator builds the component registry of a set of projects.
//
// Thread Safety:
//
//	Run may be called concurrently with reads of the registry. Concurrent
//	Run calls on one registry are serialized by the registry lock per
//	batch but interleave; callers should not overlap runs.
type Orchestrator struct {
	fs       afero.Fs
	registry *graph.ComponentRegistry
	parsers  *ast.ParserRegistry
	source   *symbols.CachedFactsSource

	workers     int
	progress    ProgressFunc
	logger      *slog.Logger
	external    ExternalPolicy
	extractOpts []extract.Option
	walkOpts    []WalkerOption
	cacheSize   int
	maxDepth    int
}

// NewOrchestrator creates an orchestrator writing into registry.
func NewOrchestrator(fsys afero.Fs, registry *graph.ComponentRegistry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fs:        fsys,
		registry:  registry,
		parsers:   ast.DefaultRegistry(),
		workers:   runtime.NumCPU(),
		logger:    slog.Default(),
		cacheSize: symbols.DefaultFactsCacheSize,
		maxDepth:  symbols.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.source = symbols.NewCachedFactsSource(fsys, o.parsers, o.cacheSize)
	return o
}

// Registry returns the registry the orchestrator writes into.
func (o *Orchestrator) Registry() *graph.ComponentRegistry {
	return o.registry
}

// Invalidate drops the cached facts of path.
func (o *Orchestrator) Invalidate(path string) {
	o.source.Invalidate(path)
}

// fileResult travels from a worker to the writer.
type fileResult struct {
	path       string
	batch      *graph.Batch
	stats      batchStats
	unresolved int
	err        error
}

// Run processes projects into the orchestrator's registry.
//
// Description:
//
//	Source projects run before consumer projects, each in the given order.
//	Within a project, files are parsed and extracted on a bounded worker
//	pool and a single writer applies each file's batch. Failures are
//	collected in the result. Cancellation of ctx stops the run between
//	files; the partial result is returned with ctx.Err().
//
// Inputs:
//   - ctx: Context for cancellation.
//   - projects: Loaded projects. Names must be unique.
//
// Outputs:
//   - *RunResult: Always non-nil.
//   - error: ctx.Err() on cancellation.
func (o *Orchestrator) Run(ctx context.Context, projects []*Project) (*RunResult, error) {
	return o.RunInto(ctx, o.registry, projects)
}

// RunInto is Run writing into reg instead of the orchestrator's registry.
func (o *Orchestrator) RunInto(ctx context.Context, reg *graph.ComponentRegistry, projects []*Project) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{RunID: uuid.NewString()}

	ctx, span := startRunSpan(ctx, result.RunID, len(projects))
	defer span.End()

	ordered, errs := orderProjects(projects)
	result.ProjectErrors = append(result.ProjectErrors, errs...)

	all := newRootIndex(ordered)
	byName := make(map[string]*Project, len(ordered))
	for _, p := range ordered {
		byName[p.Name] = p
	}
	packages := make(map[string]string, len(ordered))
	for _, p := range ordered {
		packages[p.Name] = p.Root
	}

	o.logger.Info("run started",
		slog.String("run_id", result.RunID),
		slog.Int("projects", len(ordered)))

	var runErr error
	for _, p := range ordered {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		var membership *SourceMembership
		if p.Role == RoleConsumer {
			var sources []*Project
			for _, name := range p.Sources {
				src, ok := byName[name]
				if !ok {
					result.ProjectErrors = append(result.ProjectErrors, ProjectError{
						Root: p.Root, Project: p.Name,
						Err: fmt.Errorf("%w: %s", ErrUnknownSource, name),
					})
					continue
				}
				sources = append(sources, src)
			}
			membership = NewSourceMembership(sources)
		}

		for _, cerr := range p.ConfigErrors {
			result.ProjectErrors = append(result.ProjectErrors, ProjectError{Root: p.Root, Project: p.Name, Err: cerr})
		}
		result.Projects = append(result.Projects, p.Name)
		result.Stats.Projects++
		if err := o.runProject(ctx, reg, p, all, membership, packages, result); err != nil {
			runErr = err
			break
		}
	}

	result.Stats.DurationMilli = time.Since(start).Milliseconds()
	result.Stats.RegistryComponents = reg.Len()
	result.Stats.RegistryEdges = reg.EdgeCount()
	recordRunMetrics(ctx, result)
	setRunSpanResult(span, result)

	if runErr != nil {
		result.Incomplete = true
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "run cancelled")
		o.logger.Warn("run cancelled", slog.String("run_id", result.RunID), slog.String("error", runErr.Error()))
		return result, runErr
	}

	o.logger.Info("run completed",
		slog.String("run_id", result.RunID),
		slog.Int("files", result.Stats.FilesProcessed),
		slog.Int("failed", result.Stats.FilesFailed),
		slog.Int("components", result.Stats.RegistryComponents),
		slog.Int("edges", result.Stats.RegistryEdges),
		slog.Int64("duration_ms", result.Stats.DurationMilli))
	return result, nil
}

// orderProjects returns sources then consumers, dropping duplicates.
func orderProjects(projects []*Project) ([]*Project, []ProjectError) {
	var errs []ProjectError
	seen := make(map[string]bool, len(projects))
	var unique []*Project
	for _, p := range projects {
		if p == nil {
			continue
		}
		if seen[p.Name] {
			errs = append(errs, ProjectError{Root: p.Root, Project: p.Name, Err: ErrDuplicateProject})
			continue
		}
		seen[p.Name] = true
		unique = append(unique, p)
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Role < unique[j].Role
	})
	return unique, errs
}

func (o *Orchestrator) runProject(ctx context.Context, reg *graph.ComponentRegistry, p *Project, all *rootIndex, membership *SourceMembership, packages map[string]string, result *RunResult) error {
	ctx, span := tracer.Start(ctx, "Orchestrator.runProject",
		withProjectAttrs(p)...)
	defer span.End()

	resolver := resolve.New(o.fs,
		resolve.WithAliases(p.Aliases),
		resolve.WithWorkspacePackages(packages),
		resolve.WithLogger(o.logger))
	follower := symbols.NewFollower(resolver, o.source,
		symbols.WithMaxDepth(o.maxDepth),
		symbols.WithFollowerLogger(o.logger))
	extractor := extract.NewExtractor(follower, append([]extract.Option{extract.WithLogger(o.logger)}, o.extractOpts...)...)
	builder := &batchBuilder{project: p, roots: all, membership: membership, external: o.external}

	walkOpts := append([]WalkerOption{}, o.walkOpts...)
	if len(p.Include) > 0 {
		walkOpts = append(walkOpts, WithIncludeGlobs(p.Include...))
	}
	walkOpts = append(walkOpts, WithExcludeGlobs(p.Exclude...))
	walker := NewWalker(o.fs, p.Root, walkOpts...)

	paths := make(chan string, o.workers*2)
	results := make(chan fileResult, o.workers*2)

	var walkErr error
	var walkDone sync.WaitGroup
	walkDone.Add(1)
	go func() {
		defer walkDone.Done()
		walkErr = walker.Files(ctx, paths)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	var writerDone sync.WaitGroup
	writerDone.Add(1)
	go func() {
		defer writerDone.Done()
		o.write(ctx, reg, p, results, result)
	}()

	for path := range paths {
		if gctx.Err() != nil {
			continue
		}
		g.Go(func() error {
			results <- o.processFile(gctx, extractor, builder, path)
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	writerDone.Wait()
	walkDone.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if walkErr != nil {
		result.ProjectErrors = append(result.ProjectErrors, ProjectError{Root: p.Root, Project: p.Name, Err: walkErr})
		span.RecordError(walkErr)
	}
	span.SetAttributes(attribute.Int("project.files", result.Stats.FilesProcessed))
	return nil
}

func (o *Orchestrator) processFile(ctx context.Context, extractor *extract.Extractor, builder *batchBuilder, path string) fileResult {
	if err := ctx.Err(); err != nil {
		return fileResult{path: path, err: err}
	}
	facts, err := o.source.Facts(ctx, path)
	if err != nil {
		return fileResult{path: path, err: err}
	}
	decls, err := extractor.Extract(ctx, facts, path)
	if err != nil {
		return fileResult{path: path, err: err}
	}

	unresolved := 0
	for _, d := range decls {
		for _, u := range d.Usages {
			if !u.Resolved {
				unresolved++
			}
		}
	}
	batch, stats := builder.build(path, decls)
	return fileResult{path: path, batch: batch, stats: stats, unresolved: unresolved}
}

// write is the single goroutine that applies batches to the registry.
func (o *Orchestrator) write(ctx context.Context, reg *graph.ComponentRegistry, p *Project, results <-chan fileResult, result *RunResult) {
	for fr := range results {
		if fr.err != nil {
			if ctx.Err() != nil {
				continue
			}
			result.FileErrors = append(result.FileErrors, FileError{Project: p.Name, FilePath: fr.path, Err: fr.err})
			result.Stats.FilesFailed++
			o.logger.Warn("file failed",
				slog.String("project", p.Name),
				slog.String("file", fr.path),
				slog.String("error", fr.err.Error()))
		} else {
			res := reg.ApplyBatch(ctx, fr.batch)
			result.Stats.FilesProcessed++
			result.Stats.ComponentsAdded += res.Added
			result.Stats.ComponentsMerged += res.Merged
			result.Stats.EdgesAdded += res.EdgesAdded
			result.Stats.Placeholders += fr.stats.placeholders
			result.Stats.CrossProjectUses += fr.stats.crossProject
			result.Stats.SkippedUsages += fr.stats.skipped
			result.Stats.UnresolvedUsages += fr.unresolved
			result.EdgeErrors = append(result.EdgeErrors, res.EdgeErrors...)
			for _, err := range res.ComponentErrors {
				o.logger.Debug("component rejected",
					slog.String("file", fr.path),
					slog.String("error", err.Error()))
			}
		}

		if o.progress != nil {
			o.progress(Progress{
				RunID:          result.RunID,
				Project:        p.Name,
				FilesProcessed: result.Stats.FilesProcessed,
				FilesFailed:    result.Stats.FilesFailed,
				Components:     reg.Len(),
				Edges:          reg.EdgeCount(),
			})
		}
	}
}
