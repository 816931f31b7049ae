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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/resolve"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// PnpmWorkspaceFileName lists workspace packages in pnpm monorepos.
const PnpmWorkspaceFileName = "pnpm-workspace.yaml"

// DiscoverWorkspace returns the member package directories declared by the
// workspace at root, sorted.
//
// Description:
//
//	Patterns come from the package.json "workspaces" field (array or
//	{packages} form) and from pnpm-workspace.yaml. "*" matches one path
//	segment and "**" any number; patterns starting with "!" remove
//	matches. Only directories containing a package.json are returned.
//	A root declaring no workspace returns nil and no error.
//
//	Malformed patterns are skipped. The members matched by the remaining
//	patterns are returned together with an error wrapping ErrInvalidGlob
//	that names the skipped ones.
func DiscoverWorkspace(fsys afero.Fs, root string) ([]string, error) {
	root = filepath.Clean(root)
	patterns, err := workspacePatterns(fsys, root)
	if err != nil || len(patterns) == 0 {
		return nil, err
	}

	var include, exclude []string
	for _, p := range patterns {
		p = strings.TrimSuffix(strings.TrimPrefix(p, "./"), "/")
		if neg, ok := strings.CutPrefix(p, "!"); ok {
			exclude = append(exclude, strings.TrimPrefix(neg, "./"))
			continue
		}
		include = append(include, p)
	}
	include, badInclude := splitGlobs(include)
	exclude, badExclude := splitGlobs(exclude)
	var globErr error
	if bad := append(badInclude, badExclude...); len(bad) > 0 {
		globErr = fmt.Errorf("%w in workspace of %s: %s", ErrInvalidGlob, root, strings.Join(bad, ", "))
	}

	found := make(map[string]struct{})
	for _, pattern := range include {
		dirs, err := expandPattern(fsys, root, pattern)
		if err != nil {
			return nil, fmt.Errorf("expanding workspace pattern %q: %w", pattern, err)
		}
		for _, dir := range dirs {
			rel, _ := filepath.Rel(root, dir)
			if matchesAny(exclude, filepath.ToSlash(rel)) {
				continue
			}
			if ok, _ := afero.Exists(fsys, filepath.Join(dir, resolve.ManifestFileName)); ok {
				found[dir] = struct{}{}
			}
		}
	}

	var out []string
	for dir := range found {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out, globErr
}

func workspacePatterns(fsys afero.Fs, root string) ([]string, error) {
	var patterns []string

	m, err := resolve.NewManifestReader(fsys).ReadManifest(root)
	switch {
	case err == nil:
		patterns = append(patterns, m.WorkspacePatterns()...)
	case !errors.Is(err, resolve.ErrNoManifest):
		return nil, err
	}

	data, err := afero.ReadFile(fsys, filepath.Join(root, PnpmWorkspaceFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return patterns, nil
		}
		return nil, err
	}
	var pnpm struct {
		Packages []string `yaml:"packages"`
	}
	if err := yaml.Unmarshal(data, &pnpm); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", resolve.ErrInvalidConfig, PnpmWorkspaceFileName, err)
	}
	return append(patterns, pnpm.Packages...), nil
}

// expandPattern returns the directories under root matching pattern.
func expandPattern(fsys afero.Fs, root, pattern string) ([]string, error) {
	if !strings.Contains(pattern, "**") {
		matches, err := afero.Glob(fsys, filepath.Join(root, filepath.FromSlash(pattern)))
		if err != nil {
			return nil, err
		}
		var dirs []string
		for _, m := range matches {
			if ok, _ := afero.IsDir(fsys, m); ok {
				dirs = append(dirs, m)
			}
		}
		return dirs, nil
	}

	var dirs []string
	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}
		if path != root && defaultIgnoredDirs[info.Name()] {
			return filepath.SkipDir
		}
		rel, _ := filepath.Rel(root, path)
		if ok, _ := doublestar.Match(pattern, filepath.ToSlash(rel)); ok {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs, err
}
