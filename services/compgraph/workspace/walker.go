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
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/ast"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// WalkerOption configures a Walker.
type WalkerOption func(*Walker)

// WithIncludeGlobs restricts the walk to files matching any glob. Globs
// are relative to the root and use "/" separators.
func WithIncludeGlobs(globs ...string) WalkerOption {
	return func(w *Walker) {
		if len(globs) > 0 {
			w.include = globs
		}
	}
}

// WithExcludeGlobs drops files matching any glob.
func WithExcludeGlobs(globs ...string) WalkerOption {
	return func(w *Walker) {
		w.exclude = append(w.exclude, globs...)
	}
}

// WithExtensions sets the source extensions, e.g. ".tsx".
func WithExtensions(exts ...string) WalkerOption {
	return func(w *Walker) {
		w.extensions = make(map[string]bool, len(exts))
		for _, e := range exts {
			w.extensions[e] = true
		}
	}
}

// WithIgnoreFiles replaces DefaultIgnoreFiles.
func WithIgnoreFiles(names ...string) WalkerOption {
	return func(w *Walker) {
		w.ignoreFiles = names
	}
}

// Walker enumerates the source files of one project.
type Walker struct {
	fs          afero.Fs
	root        string
	include     []string
	exclude     []string
	extensions  map[string]bool
	ignoreFiles []string
}

// NewWalker creates a walker over root. By default every file with an
// extension the default parser registry handles is included.
func NewWalker(fsys afero.Fs, root string, opts ...WalkerOption) *Walker {
	w := &Walker{
		fs:          fsys,
		root:        filepath.Clean(root),
		include:     []string{"**"},
		ignoreFiles: DefaultIgnoreFiles,
	}
	WithExtensions(ast.DefaultRegistry().Extensions()...)(w)
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Walk calls fn for every source file in lexical order.
//
// Description:
//
//	Default ignored directories are skipped, ignore files are honored per
//	directory, declaration files (.d.ts) are skipped, and a file must
//	match an include glob and no exclude glob. An error from fn stops the
//	walk and is returned. Unreadable directories are skipped.
func (w *Walker) Walk(ctx context.Context, fn func(path string) error) error {
	ignores := newIgnoreSet(w.fs, w.root, w.ignoreFiles)

	return afero.Walk(w.fs, w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if info.IsDir() {
			if path != w.root && (defaultIgnoredDirs[info.Name()] || ignores.ignored(path, true)) {
				return filepath.SkipDir
			}
			ignores.load(path)
			return nil
		}

		if !w.accepts(path) || ignores.ignored(path, false) {
			return nil
		}
		return fn(path)
	})
}

// Files streams the walked paths into out and closes it when done.
func (w *Walker) Files(ctx context.Context, out chan<- string) error {
	defer close(out)
	return w.Walk(ctx, func(path string) error {
		select {
		case out <- path:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (w *Walker) accepts(path string) bool {
	if ast.IsDeclarationFile(path) || !w.extensions[strings.ToLower(filepath.Ext(path))] {
		return false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return matchesAny(w.include, rel) && !matchesAny(w.exclude, rel)
}

// matchesAny reports whether rel matches one of patterns. Patterns are
// validated when the project loads, so match errors cannot occur here.
func matchesAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// splitGlobs separates valid patterns from malformed ones.
func splitGlobs(patterns []string) (valid, invalid []string) {
	for _, p := range patterns {
		if doublestar.ValidatePattern(p) {
			valid = append(valid, p)
		} else {
			invalid = append(invalid, p)
		}
	}
	return valid, invalid
}
