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
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/tailscale/hujson"
)

// aliasConfigFiles are the compiler config files consulted, in order.
var aliasConfigFiles = []string{"tsconfig.json", "jsconfig.json"}

// maxExtendsDepth bounds tsconfig "extends" chains.
const maxExtendsDepth = 8

// AliasMapping is one tsconfig "paths" entry.
type AliasMapping struct {
	// Pattern is the specifier pattern, with at most one "*".
	Pattern string `json:"pattern"`

	// Targets are absolute path patterns, "*" substituted on match.
	Targets []string `json:"targets"`
}

// AliasConfig is the path alias table of one project.
//
// Description:
//
//	Mappings are kept sorted by specificity: exact patterns first, then
//	wildcard patterns by descending prefix length. Candidates returns the
//	targets of the first matching pattern only.
type AliasConfig struct {
	// BaseURL is the absolute directory non-relative specifiers may be
	// resolved against. Empty when the config sets no baseUrl.
	BaseURL string `json:"base_url,omitempty"`

	// Paths are the alias mappings, most specific first.
	Paths []AliasMapping `json:"paths,omitempty"`
}

// IsEmpty reports whether the config defines neither baseUrl nor paths.
func (c AliasConfig) IsEmpty() bool {
	return c.BaseURL == "" && len(c.Paths) == 0
}

// Candidates returns the absolute candidate paths for specifier under the
// first matching alias pattern. ok is false if no pattern matches.
func (c AliasConfig) Candidates(specifier string) (candidates []string, ok bool) {
	for _, m := range c.Paths {
		captured, matched := matchPattern(m.Pattern, specifier)
		if !matched {
			continue
		}
		for _, t := range m.Targets {
			candidates = append(candidates, strings.Replace(t, "*", captured, 1))
		}
		return candidates, true
	}
	return nil, false
}

// NewAliasConfig builds a config from raw tsconfig values. baseURL and
// target paths are resolved against dir when relative.
func NewAliasConfig(dir, baseURL string, paths map[string][]string) AliasConfig {
	var base *string
	if baseURL != "" {
		base = &baseURL
	}
	return buildAliasConfig(dir, base, dir, paths)
}

// buildAliasConfig resolves baseURL against baseDir and path targets
// against the base URL, or pathsDir when no base URL is set.
func buildAliasConfig(baseDir string, baseURL *string, pathsDir string, paths map[string][]string) AliasConfig {
	cfg := AliasConfig{}
	root := pathsDir
	if baseURL != nil {
		cfg.BaseURL = absJoin(baseDir, *baseURL)
		root = cfg.BaseURL
	}
	for pattern, targets := range paths {
		m := AliasMapping{Pattern: pattern}
		for _, t := range targets {
			m.Targets = append(m.Targets, absJoin(root, t))
		}
		cfg.Paths = append(cfg.Paths, m)
	}
	sortMappings(cfg.Paths)
	return cfg
}

// matchPattern matches specifier against a pattern with at most one "*"
// and returns the text captured by the wildcard.
func matchPattern(pattern, specifier string) (string, bool) {
	star := strings.IndexByte(pattern, '*')
	if star < 0 {
		return "", pattern == specifier
	}
	prefix, suffix := pattern[:star], pattern[star+1:]
	if len(specifier) < len(prefix)+len(suffix) {
		return "", false
	}
	if !strings.HasPrefix(specifier, prefix) || !strings.HasSuffix(specifier, suffix) {
		return "", false
	}
	return specifier[len(prefix) : len(specifier)-len(suffix)], true
}

// sortMappings orders mappings exact-first, then by longest prefix.
func sortMappings(paths []AliasMapping) {
	sort.SliceStable(paths, func(i, j int) bool {
		si := strings.IndexByte(paths[i].Pattern, '*')
		sj := strings.IndexByte(paths[j].Pattern, '*')
		if (si < 0) != (sj < 0) {
			return si < 0
		}
		if si != sj {
			return si > sj
		}
		return paths[i].Pattern < paths[j].Pattern
	})
}

// compilerConfig is the subset of tsconfig.json that matters here.
type compilerConfig struct {
	Extends         string `json:"extends"`
	CompilerOptions struct {
		BaseURL *string             `json:"baseUrl"`
		Paths   map[string][]string `json:"paths"`
	} `json:"compilerOptions"`
}

// LoadAliasConfig reads the alias table of the project rooted at dir.
//
// Description:
//
//	tsconfig.json is preferred over jsconfig.json. Comments and trailing
//	commas are tolerated. Relative "extends" chains are followed; the
//	nearest file's baseUrl and paths win. A project with neither file
//	yields an empty config and no error.
//
// Outputs:
//   - AliasConfig: The resolved alias table. Empty on error.
//   - error: Wraps ErrInvalidConfig when a config file cannot be decoded.
func LoadAliasConfig(fsys afero.Fs, dir string) (AliasConfig, error) {
	for _, name := range aliasConfigFiles {
		path := filepath.Join(dir, name)
		exists, err := afero.Exists(fsys, path)
		if err != nil || !exists {
			continue
		}
		return loadCompilerConfig(fsys, path)
	}
	return AliasConfig{}, nil
}

func loadCompilerConfig(fsys afero.Fs, path string) (AliasConfig, error) {
	var baseURL *string
	var baseDir string
	var paths map[string][]string
	var pathsDir string

	current := path
	for depth := 0; current != "" && depth < maxExtendsDepth; depth++ {
		cfg, err := readCompilerConfig(fsys, current)
		if err != nil {
			if depth > 0 && errors.Is(err, fs.ErrNotExist) {
				break
			}
			return AliasConfig{}, err
		}
		dir := filepath.Dir(current)
		if baseURL == nil && cfg.CompilerOptions.BaseURL != nil {
			baseURL = cfg.CompilerOptions.BaseURL
			baseDir = dir
		}
		if paths == nil && cfg.CompilerOptions.Paths != nil {
			paths = cfg.CompilerOptions.Paths
			pathsDir = dir
		}
		current = extendsPath(dir, cfg.Extends)
	}

	return buildAliasConfig(baseDir, baseURL, pathsDir, paths), nil
}

func readCompilerConfig(fsys afero.Fs, path string) (*compilerConfig, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	// tsconfig allows comments and trailing commas.
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	var cfg compilerConfig
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return &cfg, nil
}

// extendsPath resolves a relative "extends" value. Package-based extends
// are not followed.
func extendsPath(dir, extends string) string {
	if extends == "" || !isRelative(extends) {
		return ""
	}
	p := filepath.Join(dir, extends)
	if filepath.Ext(p) != ".json" {
		p += ".json"
	}
	return p
}

func absJoin(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}
