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
	"fmt"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/ast"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"
)

// DefaultFactsCacheSize bounds the number of parsed files kept in memory.
const DefaultFactsCacheSize = 2048

// FactsSource provides parsed facts for files reached while following
// imports.
type FactsSource interface {
	// Facts returns the facts of the file at path.
	Facts(ctx context.Context, path string) (*ast.Facts, error)
}

// CachedFactsSource parses files from an afero filesystem on demand and
// keeps the results in an LRU cache.
//
// Thread Safety:
//
//	Safe for concurrent use. Concurrent requests for the same uncached
//	path share a single parse.
type CachedFactsSource struct {
	fs       afero.Fs
	registry *ast.ParserRegistry
	cache    *lru.Cache[string, *ast.Facts]
	group    singleflight.Group
}

// NewCachedFactsSource creates a source reading from fsys and parsing with
// registry. size <= 0 selects DefaultFactsCacheSize.
func NewCachedFactsSource(fsys afero.Fs, registry *ast.ParserRegistry, size int) *CachedFactsSource {
	if size <= 0 {
		size = DefaultFactsCacheSize
	}
	cache, _ := lru.New[string, *ast.Facts](size)
	return &CachedFactsSource{fs: fsys, registry: registry, cache: cache}
}

// Facts implements FactsSource.
func (s *CachedFactsSource) Facts(ctx context.Context, path string) (*ast.Facts, error) {
	if facts, ok := s.cache.Get(path); ok {
		return facts, nil
	}

	v, err, _ := s.group.Do(path, func() (any, error) {
		parser, ok := s.registry.ParserFor(path)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ast.ErrUnsupportedLanguage, path)
		}
		content, err := afero.ReadFile(s.fs, path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		facts, err := parser.Parse(ctx, content, path)
		if err != nil {
			return nil, err
		}
		s.cache.Add(path, facts)
		return facts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ast.Facts), nil
}

// Put seeds the cache with facts already parsed elsewhere.
func (s *CachedFactsSource) Put(path string, facts *ast.Facts) {
	if facts != nil {
		s.cache.Add(path, facts)
	}
}

// Invalidate drops path from the cache.
func (s *CachedFactsSource) Invalidate(path string) {
	s.cache.Remove(path)
}

// Len returns the number of cached files.
func (s *CachedFactsSource) Len() int {
	return s.cache.Len()
}
