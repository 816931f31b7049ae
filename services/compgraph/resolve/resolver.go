// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
)

// DefaultExtensions are the resolvable extensions in lookup order.
var DefaultExtensions = []string{".ts", ".tsx", ".d.ts", ".js", ".jsx", ".mjs", ".cjs", ".json", ".node"}

// sourceAliases maps emitted JavaScript extensions to the TypeScript
// source extensions that may stand behind them.
var sourceAliases = map[string][]string{
	".js":  {".ts", ".tsx"},
	".jsx": {".tsx"},
	".mjs": {".mts"},
	".cjs": {".cts"},
}

// defaultResolveCacheSize bounds the number of memoized resolutions.
const defaultResolveCacheSize = 4096

// Option configures a Resolver.
type Option func(*Resolver)

// WithAliases sets the path alias table.
func WithAliases(aliases AliasConfig) Option {
	return func(r *Resolver) {
		r.aliases = aliases
	}
}

// WithManifestReader overrides the package.json reader.
func WithManifestReader(reader ManifestReader) Option {
	return func(r *Resolver) {
		if reader != nil {
			r.manifests = reader
		}
	}
}

// WithWorkspacePackages registers monorepo packages by name. Each value is
// the absolute package directory. Workspace packages are preferred over
// node_modules.
func WithWorkspacePackages(packages map[string]string) Option {
	return func(r *Resolver) {
		for name, dir := range packages {
			r.workspace[name] = dir
		}
	}
}

// WithExtensions replaces the resolvable extension list.
func WithExtensions(exts []string) Option {
	return func(r *Resolver) {
		if len(exts) > 0 {
			r.extensions = append([]string(nil), exts...)
		}
	}
}

// WithResolveCacheSize sets the memoization cache size. Zero disables it.
func WithResolveCacheSize(size int) Option {
	return func(r *Resolver) {
		r.cacheSize = size
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// resolution is a memoized Resolve outcome.
type resolution struct {
	path string
	err  error
}

// Resolver maps module specifiers to absolute file paths.
//
// Description:
//
//	Resolution order for a specifier written in a file under originDir:
//	  1. Path alias patterns from tsconfig/jsconfig. If no candidate exists
//	     on disk, resolution continues as if no alias matched.
//	  2. Relative and absolute specifiers are probed as paths.
//	  3. Bare specifiers are tried against baseUrl, then workspace packages,
//	     then node_modules directories walking up from originDir.
//	Probing a path tries the literal file, TypeScript sources behind .js
//	style extensions, each resolvable extension appended, a package.json
//	entry point for directories, and finally directory index files.
//
// Thread Safety:
//
//	Resolver is safe for concurrent use. Resolutions are memoized in an
//	LRU cache keyed by origin directory and specifier.
type Resolver struct {
	fs         afero.Fs
	aliases    AliasConfig
	manifests  ManifestReader
	workspace  map[string]string
	extensions []string
	cacheSize  int
	cache      *lru.Cache[string, resolution]
	logger     *slog.Logger
}

// New creates a Resolver over fsys.
//
// Example:
//
//	aliases, _ := resolve.LoadAliasConfig(fs, "/repo/app")
//	r := resolve.New(fs, resolve.WithAliases(aliases))
//	path, err := r.Resolve("/repo/app/src/pages", "@/components/Button")
func New(fsys afero.Fs, opts ...Option) *Resolver {
	r := &Resolver{
		fs:         fsys,
		workspace:  make(map[string]string),
		extensions: DefaultExtensions,
		cacheSize:  defaultResolveCacheSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.manifests == nil {
		r.manifests = NewManifestReader(fsys)
	}
	if r.cacheSize > 0 {
		r.cache, _ = lru.New[string, resolution](r.cacheSize)
	}
	return r
}

// Aliases returns the configured alias table.
func (r *Resolver) Aliases() AliasConfig {
	return r.aliases
}

// Extensions returns the resolvable extensions in lookup order.
func (r *Resolver) Extensions() []string {
	return append([]string(nil), r.extensions...)
}

// Resolve maps specifier, written in a file located in originDir, to an
// absolute file path.
//
// Outputs:
//   - string: Absolute path of the resolved file.
//   - error: ErrModuleNotFound for unresolvable paths, or an
//     *ExternalModuleError for bare specifiers with no file on disk.
func (r *Resolver) Resolve(originDir, specifier string) (string, error) {
	if specifier == "" {
		return "", fmt.Errorf("%w: empty specifier", ErrModuleNotFound)
	}

	key := originDir + "\x00" + specifier
	if r.cache != nil {
		if res, ok := r.cache.Get(key); ok {
			return res.path, res.err
		}
	}

	path, err := r.resolve(originDir, specifier)
	if r.cache != nil {
		r.cache.Add(key, resolution{path: path, err: err})
	}
	return path, err
}

func (r *Resolver) resolve(originDir, specifier string) (string, error) {
	if candidates, ok := r.aliases.Candidates(specifier); ok {
		for _, c := range candidates {
			if p, found := r.probePath(c); found {
				return p, nil
			}
		}
		r.logger.Debug("alias matched without a file, falling back",
			slog.String("specifier", specifier),
			slog.Int("candidates", len(candidates)))
	}

	if isRelative(specifier) || filepath.IsAbs(specifier) {
		target := specifier
		if !filepath.IsAbs(target) {
			target = filepath.Join(originDir, specifier)
		}
		if p, found := r.probePath(target); found {
			return p, nil
		}
		return "", fmt.Errorf("%w: %s from %s", ErrModuleNotFound, specifier, originDir)
	}

	if r.aliases.BaseURL != "" {
		if p, found := r.probePath(filepath.Join(r.aliases.BaseURL, specifier)); found {
			return p, nil
		}
	}

	pkg, subpath := SplitPackageSpecifier(specifier)

	if dir, ok := r.workspace[pkg]; ok {
		if p, found := r.resolvePackageDir(dir, subpath); found {
			return p, nil
		}
	}

	dir := originDir
	for {
		candidate := filepath.Join(dir, "node_modules", pkg)
		if isDir, _ := afero.IsDir(r.fs, candidate); isDir {
			if p, found := r.resolvePackageDir(candidate, subpath); found {
				return p, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", &ExternalModuleError{Specifier: specifier, Package: pkg}
}

// probePath resolves target as a file or directory.
func (r *Resolver) probePath(target string) (string, bool) {
	if p, ok := r.probeFile(target); ok {
		return p, true
	}

	if isDir, _ := afero.IsDir(r.fs, target); isDir {
		if m, err := r.manifests.ReadManifest(target); err == nil {
			for _, entry := range m.EntryPoints() {
				if p, ok := r.probeFile(filepath.Join(target, entry)); ok {
					return p, true
				}
			}
		} else if !errors.Is(err, ErrNoManifest) {
			r.logger.Debug("ignoring unreadable manifest",
				slog.String("dir", target),
				slog.String("error", err.Error()))
		}
		return r.probeIndex(target)
	}

	return "", false
}

// probeFile tries the literal path, source aliasing and extension
// appending, in that order.
func (r *Resolver) probeFile(target string) (string, bool) {
	if r.isFile(target) {
		return target, true
	}

	ext := filepath.Ext(target)
	if replacements, ok := sourceAliases[ext]; ok {
		base := strings.TrimSuffix(target, ext)
		for _, rep := range replacements {
			if r.isFile(base + rep) {
				return base + rep, true
			}
		}
	}

	for _, e := range r.extensions {
		if r.isFile(target + e) {
			return target + e, true
		}
	}
	return "", false
}

// probeIndex tries dir/index.<ext> for every resolvable extension.
func (r *Resolver) probeIndex(dir string) (string, bool) {
	for _, e := range r.extensions {
		p := filepath.Join(dir, "index"+e)
		if r.isFile(p) {
			return p, true
		}
	}
	return "", false
}

// resolvePackageDir resolves a package rooted at dir, optionally with a
// subpath inside it.
func (r *Resolver) resolvePackageDir(dir, subpath string) (string, bool) {
	if subpath != "" {
		return r.probePath(filepath.Join(dir, subpath))
	}
	return r.probePath(dir)
}

func (r *Resolver) isFile(p string) bool {
	info, err := r.fs.Stat(p)
	return err == nil && !info.IsDir()
}

// SplitPackageSpecifier splits a bare specifier into package name and
// subpath, handling scoped packages.
//
// Example:
//
//	SplitPackageSpecifier("@scope/ui/button") // "@scope/ui", "button"
//	SplitPackageSpecifier("lodash/get")       // "lodash", "get"
func SplitPackageSpecifier(specifier string) (string, string) {
	parts := strings.Split(specifier, "/")
	n := 1
	if strings.HasPrefix(specifier, "@") && len(parts) > 1 {
		n = 2
	}
	if len(parts) <= n {
		return specifier, ""
	}
	return strings.Join(parts[:n], "/"), strings.Join(parts[n:], "/")
}

// IsBareSpecifier reports whether specifier names a package rather than a
// path.
func IsBareSpecifier(specifier string) bool {
	return specifier != "" && !isRelative(specifier) && !filepath.IsAbs(specifier)
}

func isRelative(specifier string) bool {
	return specifier == "." || specifier == ".." ||
		strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../")
}
