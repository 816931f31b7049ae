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

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
)

// ManifestFileName is the package manifest file name.
const ManifestFileName = "package.json"

// defaultManifestCacheSize bounds the number of cached manifests.
const defaultManifestCacheSize = 1024

// Manifest is the subset of package.json the resolver reads.
type Manifest struct {
	Name       string          `json:"name"`
	Version    string          `json:"version,omitempty"`
	Types      string          `json:"types,omitempty"`
	Typings    string          `json:"typings,omitempty"`
	Module     string          `json:"module,omitempty"`
	Main       string          `json:"main,omitempty"`
	Browser    json.RawMessage `json:"browser,omitempty"`
	Workspaces json.RawMessage `json:"workspaces,omitempty"`

	// Dir is the directory the manifest was read from.
	Dir string `json:"-"`
}

// EntryPoints returns the entry fields in resolution priority order:
// types, typings, module, main, browser. Only the string form of browser
// is considered. Empty fields are skipped.
func (m *Manifest) EntryPoints() []string {
	var out []string
	for _, e := range []string{m.Types, m.Typings, m.Module, m.Main} {
		if e != "" {
			out = append(out, e)
		}
	}
	var browser string
	if len(m.Browser) > 0 && json.Unmarshal(m.Browser, &browser) == nil && browser != "" {
		out = append(out, browser)
	}
	return out
}

// WorkspacePatterns returns the workspace globs, accepting both the array
// form and the `{ "packages": [...] }` form.
func (m *Manifest) WorkspacePatterns() []string {
	if len(m.Workspaces) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(m.Workspaces, &list); err == nil {
		return list
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(m.Workspaces, &obj); err == nil {
		return obj.Packages
	}
	return nil
}

// ManifestReader returns the package manifest of a directory.
type ManifestReader interface {
	// ReadManifest returns ErrNoManifest when dir has no package.json and
	// an error wrapping ErrInvalidConfig when it cannot be decoded.
	ReadManifest(dir string) (*Manifest, error)
}

// FSManifestReader reads package.json files from an afero file system and
// caches decoded manifests.
//
// Thread Safety: Safe for concurrent use.
type FSManifestReader struct {
	fs    afero.Fs
	cache *lru.Cache[string, *Manifest]
}

// NewManifestReader creates a manifest reader over fsys.
func NewManifestReader(fsys afero.Fs) *FSManifestReader {
	cache, _ := lru.New[string, *Manifest](defaultManifestCacheSize)
	return &FSManifestReader{fs: fsys, cache: cache}
}

// ReadManifest implements ManifestReader.
func (r *FSManifestReader) ReadManifest(dir string) (*Manifest, error) {
	if m, ok := r.cache.Get(dir); ok {
		return m, nil
	}

	data, err := afero.ReadFile(r.fs, filepath.Join(dir, ManifestFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoManifest, dir)
		}
		return nil, fmt.Errorf("reading manifest in %s: %w", dir, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, filepath.Join(dir, ManifestFileName), err)
	}
	m.Dir = dir

	r.cache.Add(dir, &m)
	return &m, nil
}
