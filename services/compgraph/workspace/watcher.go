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
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/ast"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/graph"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/resolve"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// DefaultDebounce is how long the watcher waits for more changes.
const DefaultDebounce = 100 * time.Millisecond

// FileOp is the kind of a file change.
type FileOp int

const (
	// FileOpCreate indicates a file was created.
	FileOpCreate FileOp = iota

	// FileOpWrite indicates a file was modified.
	FileOpWrite

	// FileOpRemove indicates a file was deleted.
	FileOpRemove

	// FileOpRename indicates a file was renamed away.
	FileOpRename
)

// String returns the operation name.
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "create"
	case FileOpWrite:
		return "write"
	case FileOpRemove:
		return "remove"
	case FileOpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// FileChange is one debounced file system change.
type FileChange struct {
	Path string
	Op   FileOp
	Time time.Time
}

// configFiles change project configuration and force a project reload.
var configFiles = map[string]bool{
	resolve.ManifestFileName: true,
	"tsconfig.json":          true,
	"jsconfig.json":          true,
	OverridesFileName:        true,
	".gitignore":             true,
	".compgraphignore":       true,
}

// ProjectLoader reloads the project list after configuration changes.
type ProjectLoader func(ctx context.Context) ([]*Project, error)

// RebuildFunc is called after every rebuild attempt.
type RebuildFunc func(result *RunResult, err error)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithProjectLoader sets the loader used when configuration files change.
func WithProjectLoader(fn ProjectLoader) WatcherOption {
	return func(w *Watcher) {
		w.loader = fn
	}
}

// WithRebuildCallback sets a function called after every rebuild.
func WithRebuildCallback(fn RebuildFunc) WatcherOption {
	return func(w *Watcher) {
		w.onRebuild = fn
	}
}

// WithRegistryOptions sets the options of rebuilt registries.
func WithRegistryOptions(opts ...graph.RegistryOption) WatcherOption {
	return func(w *Watcher) {
		w.registryOpts = append(w.registryOpts, opts...)
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Watcher keeps a published registry in sync with the project files.
//
// Description:
//
//	Project roots are watched recursively. Changes are collected until
//	the debounce window passes without new events. A batch that only
//	removes files drops their components from the current registry.
//	Any other batch rebuilds all projects into a fresh registry which is
//	swapped in when the rebuild was not cancelled.
//
// Thread Safety:
//
//	Safe for concurrent use. Batches are handled on a single goroutine.
type Watcher struct {
	orch         *Orchestrator
	holder       *RegistryHolder
	extensions   map[string]bool
	debounce     time.Duration
	loader       ProjectLoader
	onRebuild    RebuildFunc
	registryOpts []graph.RegistryOption
	logger       *slog.Logger

	mu       sync.Mutex
	projects []*Project
	fsw      *fsnotify.Watcher
	changes  chan FileChange
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher rebuilding projects with orch and
// publishing into holder. Call Start to begin watching.
func NewWatcher(orch *Orchestrator, holder *RegistryHolder, projects []*Project, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		orch:       orch,
		holder:     holder,
		extensions: make(map[string]bool),
		debounce:   DefaultDebounce,
		logger:     slog.Default(),
		projects:   projects,
		changes:    make(chan FileChange, 1000),
		done:       make(chan struct{}),
	}
	for _, ext := range ast.DefaultRegistry().Extensions() {
		w.extensions[ext] = true
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start watches every project root until ctx is cancelled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.fsw = fsw
	projects := w.projects
	w.mu.Unlock()

	for _, p := range projects {
		if err := w.addRecursive(p.Root); err != nil {
			fsw.Close()
			return err
		}
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop stops watching.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.fsw != nil {
			w.fsw.Close()
		}
		w.mu.Unlock()
	})
}

// Projects returns the projects currently rebuilt by the watcher.
func (w *Watcher) Projects() []*Project {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*Project(nil), w.projects...)
}

func (w *Watcher) addRecursive(root string) error {
	return afero.Walk(w.orch.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && defaultIgnoredDirs[info.Name()] {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			change := FileChange{Path: event.Name, Op: convertOp(event.Op), Time: time.Now()}
			if change.Op == FileOpCreate {
				if info, err := w.orch.fs.Stat(event.Name); err == nil && info.IsDir() {
					if !defaultIgnoredDirs[info.Name()] {
						_ = w.addRecursive(event.Name)
					}
					continue
				}
			}
			if !w.relevant(change.Path) {
				continue
			}
			select {
			case w.changes <- change:
			default:
				w.logger.Warn("watch buffer full, dropping change", slog.String("path", change.Path))
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// relevant reports whether a change at path can affect the graph.
func (w *Watcher) relevant(path string) bool {
	base := filepath.Base(path)
	if configFiles[base] {
		return true
	}
	if ast.IsDeclarationFile(path) {
		return false
	}
	return w.extensions[filepath.Ext(path)]
}

func convertOp(op fsnotify.Op) FileOp {
	switch {
	case op.Has(fsnotify.Create):
		return FileOpCreate
	case op.Has(fsnotify.Write):
		return FileOpWrite
	case op.Has(fsnotify.Remove):
		return FileOpRemove
	case op.Has(fsnotify.Rename):
		return FileOpRename
	default:
		return FileOpWrite
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	var batch []FileChange
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 {
			w.handleChanges(ctx, deduplicate(batch))
			batch = batch[:0]
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case change := <-w.changes:
			batch = append(batch, change)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// deduplicate keeps the last change per path, ordered by path.
func deduplicate(changes []FileChange) []FileChange {
	last := make(map[string]FileChange, len(changes))
	for _, c := range changes {
		last[c.Path] = c
	}
	out := make([]FileChange, 0, len(last))
	for _, c := range last {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// handleChanges applies one debounced batch.
func (w *Watcher) handleChanges(ctx context.Context, changes []FileChange) {
	if len(changes) == 0 {
		return
	}

	removalsOnly := true
	reload := false
	for _, c := range changes {
		w.orch.Invalidate(c.Path)
		if c.Op != FileOpRemove && c.Op != FileOpRename {
			removalsOnly = false
		}
		if configFiles[filepath.Base(c.Path)] {
			reload = true
			removalsOnly = false
		}
	}

	if removalsOnly {
		reg := w.holder.Get()
		removed := 0
		for _, c := range changes {
			removed += reg.RemovePath(c.Path)
		}
		w.logger.Info("removed components of deleted files",
			slog.Int("files", len(changes)),
			slog.Int("components", removed))
		return
	}

	if reload && w.loader != nil {
		projects, err := w.loader(ctx)
		if err != nil {
			w.logger.Warn("project reload failed, keeping previous projects", slog.String("error", err.Error()))
		} else {
			w.mu.Lock()
			w.projects = projects
			w.mu.Unlock()
		}
	}

	w.rebuild(ctx)
}

// rebuild runs all projects into a fresh registry and publishes it.
func (w *Watcher) rebuild(ctx context.Context) {
	fresh := graph.NewComponentRegistry(w.registryOpts...)
	result, err := w.orch.RunInto(ctx, fresh, w.Projects())
	recordWatchRebuild(ctx, err == nil)
	if err == nil {
		w.holder.Swap(fresh)
		w.logger.Info("registry rebuilt",
			slog.String("run_id", result.RunID),
			slog.Int("components", result.Stats.RegistryComponents),
			slog.Int("edges", result.Stats.RegistryEdges))
	} else {
		w.logger.Warn("rebuild cancelled, keeping previous registry", slog.String("error", err.Error()))
	}
	if w.onRebuild != nil {
		w.onRebuild(result, err)
	}
}
