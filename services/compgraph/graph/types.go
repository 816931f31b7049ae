// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph holds the component dependency registry.
//
// Components are identified by ComputeID(name, relPath), where relPath is
// the project-relative path "<project>/<path from project root>". Ids are
// therefore stable across checkouts. The registry keeps secondary indexes
// by (name, project), path and project, plus forward and reverse
// adjacency, and updates all of them in one critical section per
// mutation. It serializes to a deterministic JSON form grouped by project
// and can be snapshotted into BadgerDB.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// idLength is the number of hex characters kept from the SHA-256 digest.
const idLength = 16

// ComputeID returns the deterministic id of a component.
//
// Description:
//
//	hex(sha256(name + "\x00" + relPath))[:16]. The separator keeps
//	("ab", "c") and ("a", "bc") apart.
//
// Example:
//
//	id := graph.ComputeID("Button", "web/src/components/Button.tsx")
func ComputeID(name, relPath string) string {
	h := sha256.Sum256([]byte(name + "\x00" + relPath))
	return hex.EncodeToString(h[:])[:idLength]
}

// ComponentNode is one component in the registry.
type ComponentNode struct {
	// ID is ComputeID(Name, Path). Filled in by the registry when empty.
	ID string `json:"id"`

	Name string `json:"name"`

	// Path is the project-relative path of the declaring file.
	Path string `json:"path"`

	// AbsPath is the absolute path at extraction time. Empty for
	// placeholders.
	AbsPath string `json:"abs_path,omitempty"`

	// DeclaredProps is the union of props the component declares, sorted.
	DeclaredProps []string `json:"declared_props,omitempty"`

	// Props counts prop names observed at usages of the component.
	Props map[string]int `json:"props,omitempty"`

	// External marks a placeholder for a package outside the workspace.
	External bool `json:"external,omitempty"`
}

// Validate checks the required fields.
func (n *ComponentNode) Validate() error {
	if n.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidComponent)
	}
	if n.Path == "" {
		return fmt.Errorf("%w: %s has empty path", ErrInvalidComponent, n.Name)
	}
	if n.ID != "" && n.ID != ComputeID(n.Name, n.Path) {
		return fmt.Errorf("%w: id %s does not match %s at %s", ErrInvalidComponent, n.ID, n.Name, n.Path)
	}
	return nil
}

// PropNames returns the observed prop names, sorted.
func (n *ComponentNode) PropNames() []string {
	names := make([]string, 0, len(n.Props))
	for k := range n.Props {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// clone returns a deep copy.
func (n ComponentNode) clone() ComponentNode {
	out := n
	out.DeclaredProps = append([]string(nil), n.DeclaredProps...)
	if n.Props != nil {
		out.Props = make(map[string]int, len(n.Props))
		for k, v := range n.Props {
			out.Props[k] = v
		}
	}
	return out
}

// ComponentInfo is a node together with its owning project.
type ComponentInfo struct {
	ComponentNode
	Project string `json:"project"`
}

// DependencyEdge is a "renders" relation between two components.
type DependencyEdge struct {
	From string `json:"from"`
	To   string `json:"to"`

	// ProjectContext is the target's project when it differs from the
	// source's project.
	ProjectContext string `json:"project_context,omitempty"`
}

// TraversalStep is one component reached by TraverseFrom.
type TraversalStep struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Path    string `json:"path"`
	Project string `json:"project"`

	// Depth is the number of edges from the start at discovery.
	Depth int `json:"depth"`

	// Dependencies are the direct dependency ids, sorted.
	Dependencies []string `json:"dependencies"`
}

// RegistryStats summarizes the registry contents.
type RegistryStats struct {
	Components   int            `json:"components"`
	Edges        int            `json:"edges"`
	CrossProject int            `json:"cross_project_edges"`
	External     int            `json:"external_components"`
	ByProject    map[string]int `json:"by_project"`
}
