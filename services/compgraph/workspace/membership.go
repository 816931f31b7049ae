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
	"sort"
	"strings"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/resolve"
)

// projectRoot pairs a project name with its absolute root.
type projectRoot struct {
	name string
	root string
}

// rootIndex maps absolute paths to the project containing them. It is
// built before a run starts and never modified, so it is read without
// locks.
type rootIndex struct {
	// roots are sorted by descending root length so the innermost
	// project wins for nested roots.
	roots []projectRoot
}

func newRootIndex(projects []*Project) *rootIndex {
	idx := &rootIndex{}
	for _, p := range projects {
		idx.roots = append(idx.roots, projectRoot{name: p.Name, root: p.Root})
	}
	sort.SliceStable(idx.roots, func(i, j int) bool {
		return len(idx.roots[i].root) > len(idx.roots[j].root)
	})
	return idx
}

// owner returns the project whose root contains path.
func (idx *rootIndex) owner(path string) (projectRoot, bool) {
	for _, r := range idx.roots {
		if within(r.root, path) {
			return r, true
		}
	}
	return projectRoot{}, false
}

// RelativePath returns "<project>/<path from project root>" with "/"
// separators.
func RelativePath(projectName, projectRoot, path string) string {
	rel, err := filepath.Rel(projectRoot, path)
	if err != nil {
		rel = path
	}
	return projectName + "/" + filepath.ToSlash(rel)
}

// within reports whether path lies under root.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// SourceMembership answers whether a usage seen in a consumer project
// belongs to one of its source projects.
//
// Thread Safety:
//
//	Immutable after construction and safe for concurrent use.
type SourceMembership struct {
	roots    *rootIndex
	packages map[string]string
}

// NewSourceMembership builds the membership of the given source projects.
func NewSourceMembership(sources []*Project) *SourceMembership {
	m := &SourceMembership{
		roots:    newRootIndex(sources),
		packages: make(map[string]string, len(sources)),
	}
	for _, p := range sources {
		m.packages[p.Name] = p.Name
	}
	return m
}

// Lookup returns the source project a usage belongs to.
//
// Description:
//
//	A usage belongs to a source project when its origin path lies under
//	the project root, or when its module specifier names the project's
//	package. byPath reports which of the two matched; only a path match
//	identifies the declaring file.
func (m *SourceMembership) Lookup(originPath, specifier string) (project string, byPath bool, ok bool) {
	if originPath != "" {
		if r, found := m.roots.owner(originPath); found {
			return r.name, true, true
		}
	}
	if specifier != "" && resolve.IsBareSpecifier(specifier) {
		pkg, _ := resolve.SplitPackageSpecifier(specifier)
		if name, found := m.packages[pkg]; found {
			return name, false, true
		}
	}
	return "", false, false
}

// Root returns the root of a source project.
func (m *SourceMembership) Root(project string) (string, bool) {
	for _, r := range m.roots.roots {
		if r.name == project {
			return r.root, true
		}
	}
	return "", false
}
