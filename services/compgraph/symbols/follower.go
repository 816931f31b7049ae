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
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/ast"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/resolve"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultMaxDepth bounds the number of files visited by one Follow call.
const DefaultMaxDepth = 64

// parseableExtensions are the extensions a Follower opens.
var parseableExtensions = map[string]bool{
	".ts": true, ".tsx": true, ".mts": true, ".cts": true,
	".js": true, ".jsx": true, ".mjs": true, ".cjs": true,
}

// ModuleResolver maps import specifiers to files.
type ModuleResolver interface {
	Resolve(originDir, specifier string) (string, error)
}

// DefaultTerminal reports whether path ends a chain without being opened:
// declaration files, data files, stylesheets and single-file components.
func DefaultTerminal(path string) bool {
	if ast.IsDeclarationFile(path) {
		return true
	}
	return !parseableExtensions[strings.ToLower(filepath.Ext(path))]
}

// Origin is where a followed import ends.
type Origin struct {
	// Name is the declared name in Path. Empty for namespace origins.
	Name string

	// Path is the absolute file declaring Name. Empty for externals.
	Path string

	// External marks a bare specifier with no file on disk.
	External bool

	// Package is the external package name.
	Package string

	// Specifier is the last specifier followed.
	Specifier string

	// Namespace marks an origin that is a whole module rather than one
	// of its exports.
	Namespace bool

	// Hops counts the files visited after the first resolved one.
	Hops int
}

// FollowerOption configures a Follower.
type FollowerOption func(*Follower)

// WithTerminalPredicate overrides DefaultTerminal.
func WithTerminalPredicate(fn func(path string) bool) FollowerOption {
	return func(f *Follower) {
		if fn != nil {
			f.isTerminal = fn
		}
	}
}

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(depth int) FollowerOption {
	return func(f *Follower) {
		if depth > 0 {
			f.maxDepth = depth
		}
	}
}

// WithFollowerLogger sets the logger.
func WithFollowerLogger(logger *slog.Logger) FollowerOption {
	return func(f *Follower) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Follower follows imports across files to the declaring file.
//
// Thread Safety:
//
//	Safe for concurrent use when the resolver and facts source are.
//	Each Follow call owns its visited set.
type Follower struct {
	resolver   ModuleResolver
	source     FactsSource
	isTerminal func(string) bool
	maxDepth   int
	logger     *slog.Logger
}

// NewFollower creates a Follower.
func NewFollower(resolver ModuleResolver, source FactsSource, opts ...FollowerOption) *Follower {
	f := &Follower{
		resolver:   resolver,
		source:     source,
		isTerminal: DefaultTerminal,
		maxDepth:   DefaultMaxDepth,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// visitKey identifies one step of a chain.
type visitKey struct {
	file   string
	symbol string
}

// followState is the per-call traversal state.
type followState struct {
	visited map[visitKey]struct{}
	chain   []string
}

// Follow finds where symbol, imported by originFile from specifier, is
// declared.
//
// Description:
//
//	The specifier is resolved relative to originFile. In the target file
//	the export named symbol is looked up:
//	  - a local export is resolved with ResolveSymbol; an import at the end
//	    of that chain is followed recursively,
//	  - `export { x as symbol } from` is followed to its source,
//	  - otherwise each `export * from` source is tried in order.
//	"default" is never forwarded through `export *`. Terminal files, such
//	as .d.ts or .json, end the chain with Origin{Path: file, Name: symbol}.
//	A bare specifier without a file yields an External origin.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - originFile: Absolute path of the importing file.
//   - specifier: Module specifier as written.
//   - symbol: Imported name: a named export, "default" or "*".
//
// Outputs:
//   - Origin: The declaring location.
//   - error: *CircularReexportError, ErrSymbolNotFound, ErrParseFailed,
//     ErrMaxDepth, resolve.ErrModuleNotFound, or ctx.Err().
func (f *Follower) Follow(ctx context.Context, originFile, specifier, symbol string) (Origin, error) {
	return f.FollowPath(ctx, originFile, specifier, symbol, nil)
}

// FollowPath is Follow with a pending member path. When the chain reaches
// a module namespace, the next member is looked up as an export of that
// module, so `UI.Button` through `import * as UI` ends at Button.
func (f *Follower) FollowPath(ctx context.Context, originFile, specifier, symbol string, members []string) (Origin, error) {
	start := time.Now()
	ctx, span := startFollowSpan(ctx, originFile, specifier, symbol)
	defer span.End()

	st := &followState{visited: make(map[visitKey]struct{})}
	origin, err := f.follow(ctx, originFile, specifier, symbol, members, st, 0)

	recordFollowMetrics(ctx, time.Since(start), origin, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "follow failed")
		return Origin{}, err
	}
	span.SetAttributes(
		attribute.String("symbols.origin_path", origin.Path),
		attribute.String("symbols.origin_name", origin.Name),
		attribute.Bool("symbols.external", origin.External),
		attribute.Int("symbols.hops", origin.Hops),
	)
	return origin, nil
}

func (f *Follower) follow(ctx context.Context, fromFile, specifier, symbol string, members []string, st *followState, depth int) (Origin, error) {
	if err := ctx.Err(); err != nil {
		return Origin{}, err
	}
	if depth > f.maxDepth {
		return Origin{}, fmt.Errorf("%w: %d hops from %s", ErrMaxDepth, depth, fromFile)
	}

	path, err := f.resolver.Resolve(filepath.Dir(fromFile), specifier)
	if err != nil {
		if resolve.IsExternal(err) {
			name := symbol
			if name == ast.NamespaceImportName {
				name = ""
			}
			return Origin{
				Name:      name,
				External:  true,
				Package:   resolve.ExternalPackage(err),
				Specifier: specifier,
				Hops:      depth,
			}, nil
		}
		return Origin{}, fmt.Errorf("resolving %q from %s: %w", specifier, fromFile, err)
	}

	if symbol == ast.NamespaceImportName {
		if len(members) == 0 {
			return Origin{Path: path, Specifier: specifier, Namespace: true, Hops: depth}, nil
		}
		symbol, members = members[0], members[1:]
	}

	origin, err := f.lookupExport(ctx, path, symbol, members, st, depth)
	if err == nil && origin.Specifier == "" {
		origin.Specifier = specifier
	}
	return origin, err
}

// lookupExport finds the declaration behind export symbol of path.
func (f *Follower) lookupExport(ctx context.Context, path, symbol string, members []string, st *followState, depth int) (Origin, error) {
	key := visitKey{file: path, symbol: symbol}
	step := path + "#" + symbol
	if _, seen := st.visited[key]; seen {
		return Origin{}, &CircularReexportError{
			File:   path,
			Symbol: symbol,
			Chain:  append(append([]string(nil), st.chain...), step),
		}
	}
	st.visited[key] = struct{}{}
	st.chain = append(st.chain, step)
	// The visited set tracks the current path only, so diamonds of
	// `export *` are not mistaken for cycles.
	defer func() {
		delete(st.visited, key)
		st.chain = st.chain[:len(st.chain)-1]
	}()

	if f.isTerminal(path) {
		return Origin{Name: symbol, Path: path, Hops: depth}, nil
	}

	facts, err := f.source.Facts(ctx, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Origin{}, ctxErr
		}
		f.logger.Warn("cannot parse followed file",
			slog.String("file", path),
			slog.String("symbol", symbol),
			slog.String("error", err.Error()))
		return Origin{}, fmt.Errorf("%w: %s: %w", ErrParseFailed, path, err)
	}

	if named := facts.ExportsNamed(symbol); len(named) > 0 {
		exp := named[0]
		if exp.IsReexport() {
			return f.follow(ctx, path, exp.Source, exp.Imported, members, st, depth+1)
		}
		return f.resolveLocal(ctx, facts, path, exp.Local, members, st, depth)
	}

	if symbol != ast.DefaultExportName && facts.Module.Own(symbol) != nil {
		return f.resolveLocal(ctx, facts, path, symbol, members, st, depth)
	}

	if symbol == ast.DefaultExportName {
		return Origin{}, fmt.Errorf("%w: %s has no default export", ErrSymbolNotFound, path)
	}

	var firstErr error
	for _, star := range facts.StarExports() {
		origin, err := f.follow(ctx, path, star.Source, symbol, members, st, depth+1)
		if err == nil {
			return origin, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Origin{}, ctxErr
		}
		if errors.Is(err, ErrSymbolNotFound) {
			continue
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return Origin{}, firstErr
	}
	return Origin{}, fmt.Errorf("%w: %s does not export %s", ErrSymbolNotFound, path, symbol)
}

// resolveLocal resolves local in the module scope of facts and continues
// across an import when the chain ends at one.
func (f *Follower) resolveLocal(ctx context.Context, facts *ast.Facts, path, local string, members []string, st *followState, depth int) (Origin, error) {
	res, err := ResolveSymbol(facts, facts.Module, local)
	if err != nil {
		return Origin{}, fmt.Errorf("%s in %s: %w", local, path, err)
	}
	if res.Kind == ResolutionLocal {
		return Origin{Name: res.Name, Path: path, Hops: depth}, nil
	}
	pending := append(append([]string(nil), res.MemberPath...), members...)
	return f.follow(ctx, path, res.Specifier, res.ImportedName, pending, st, depth+1)
}
