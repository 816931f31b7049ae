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
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"
)

// DefaultIgnoreFiles are the per-directory ignore files honored by the
// walker.
var DefaultIgnoreFiles = []string{".gitignore", ".compgraphignore"}

// defaultIgnoredDirs are never walked.
var defaultIgnoredDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
	"coverage":     true,
}

// ignoreLayer is the compiled ignore files of one directory.
type ignoreLayer struct {
	// rules applies the files as written.
	rules *gitignore.GitIgnore

	// touched has every rule with negation stripped. A path it matches but
	// rules does not was re-included by this layer.
	touched *gitignore.GitIgnore
}

// ignoreSet holds the ignore layers of each walked directory.
type ignoreSet struct {
	fs     afero.Fs
	root   string
	files  []string
	layers map[string]ignoreLayer
}

func newIgnoreSet(fsys afero.Fs, root string, files []string) *ignoreSet {
	return &ignoreSet{fs: fsys, root: root, files: files, layers: make(map[string]ignoreLayer)}
}

// load compiles the ignore files of dir. Unreadable files are skipped.
func (s *ignoreSet) load(dir string) {
	var lines, stripped []string
	for _, name := range s.files {
		data, err := afero.ReadFile(s.fs, filepath.Join(dir, name))
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			lines = append(lines, line)
			stripped = append(stripped, strings.TrimPrefix(strings.TrimSpace(line), "!"))
		}
	}
	if len(lines) > 0 {
		s.layers[dir] = ignoreLayer{
			rules:   gitignore.CompileIgnoreLines(lines...),
			touched: gitignore.CompileIgnoreLines(stripped...),
		}
	}
}

// ignored applies the layers of every ancestor directory of path, from the
// root down. The deepest layer with a matching rule decides, so a nested
// ignore file can re-include what a parent excluded.
func (s *ignoreSet) ignored(path string, isDir bool) bool {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")

	ignored := false
	dir := s.root
	for i := range parts {
		if layer, ok := s.layers[dir]; ok {
			sub := strings.Join(parts[i:], "/")
			// Directory-only rules ("build/") match a trailing slash.
			if isDir {
				sub += "/"
			}
			switch {
			case layer.rules.MatchesPath(sub):
				ignored = true
			case layer.touched.MatchesPath(sub):
				ignored = false
			}
		}
		dir = filepath.Join(dir, parts[i])
	}
	return ignored
}
