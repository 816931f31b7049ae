// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"fmt"
	"maps"
	"slices"
	"sort"
)

// Component change kinds, checked in this order.
const (
	ChangeProject       = "project_changed"
	ChangeDeclaredProps = "declared_props_changed"
	ChangeProps         = "props_changed"
	ChangeEdges         = "edges_changed"
)

// RegistryDiff is the difference between two registries, typically a
// snapshot and the current graph.
type RegistryDiff struct {
	BaseID   string `json:"base_id"`
	TargetID string `json:"target_id"`

	// ComponentsAdded are ids present in target only, sorted.
	ComponentsAdded []string `json:"components_added"`

	// ComponentsRemoved are ids present in base only, sorted.
	ComponentsRemoved []string `json:"components_removed"`

	// ComponentsModified are components present in both that changed.
	ComponentsModified []ComponentChange `json:"components_modified"`

	EdgesAdded   []DependencyEdge `json:"edges_added"`
	EdgesRemoved []DependencyEdge `json:"edges_removed"`

	Summary DiffSummary `json:"summary"`
}

// ComponentChange describes one modified component.
type ComponentChange struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ChangeType string `json:"change_type"`
}

// DiffSummary aggregates a RegistryDiff.
type DiffSummary struct {
	// TotalChanges counts added, removed and modified components plus
	// added and removed edges.
	TotalChanges int `json:"total_changes"`

	// FilesAffected is the number of distinct component paths involved.
	FilesAffected int `json:"files_affected"`

	// ChangeRatio is changed components over the larger component count.
	ChangeRatio float64 `json:"change_ratio"`
}

// Empty reports whether the registries are equal.
func (d *RegistryDiff) Empty() bool {
	return d.Summary.TotalChanges == 0
}

// DiffRegistries compares two registries.
//
// Description:
//
//	Components are matched by id. Since the id derives from name and
//	project-relative path, a moved or renamed component is reported as
//	one removal plus one addition. A component in both is modified when
//	its project, declared props, observed prop counts or outgoing edges
//	differ; the first difference in that order names the change.
//
// Inputs:
//   - base, target: The registries to compare. Must not be nil.
//   - baseID, targetID: Labels copied into the result.
//
// Outputs:
//   - *RegistryDiff: Differences, deterministically ordered.
//   - error: Non-nil if either registry is nil.
//
// Thread Safety:
//
//	Safe for concurrent use; each registry is read under its read lock.
func DiffRegistries(base, target *ComponentRegistry, baseID, targetID string) (*RegistryDiff, error) {
	if base == nil || target == nil {
		return nil, fmt.Errorf("registries must not be nil")
	}
	return diffSerialized(base.ToSerializable(), target.ToSerializable(), baseID, targetID), nil
}

type flatComponent struct {
	node    ComponentNode
	project string
}

type flatRegistry struct {
	components map[string]flatComponent
	out        map[string]map[string]string // from -> to -> context
}

func flatten(s *SerializableRegistry) flatRegistry {
	f := flatRegistry{
		components: make(map[string]flatComponent),
		out:        make(map[string]map[string]string),
	}
	for _, p := range s.Projects {
		for _, c := range p.Components {
			f.components[c.ID] = flatComponent{node: c, project: p.Name}
		}
		for _, e := range p.Edges {
			if f.out[e.From] == nil {
				f.out[e.From] = make(map[string]string)
			}
			f.out[e.From][e.To] = e.ProjectContext
		}
	}
	return f
}

func diffSerialized(base, target *SerializableRegistry, baseID, targetID string) *RegistryDiff {
	b, t := flatten(base), flatten(target)
	diff := &RegistryDiff{
		BaseID:             baseID,
		TargetID:           targetID,
		ComponentsAdded:    []string{},
		ComponentsRemoved:  []string{},
		ComponentsModified: []ComponentChange{},
		EdgesAdded:         []DependencyEdge{},
		EdgesRemoved:       []DependencyEdge{},
	}
	files := make(map[string]bool)

	for id, tc := range t.components {
		bc, ok := b.components[id]
		if !ok {
			diff.ComponentsAdded = append(diff.ComponentsAdded, id)
			files[tc.node.Path] = true
			continue
		}
		if change := classifyComponentChange(bc, tc, b.out[id], t.out[id]); change != "" {
			diff.ComponentsModified = append(diff.ComponentsModified, ComponentChange{
				ID:         id,
				Name:       tc.node.Name,
				ChangeType: change,
			})
			files[tc.node.Path] = true
		}
	}
	for id, bc := range b.components {
		if _, ok := t.components[id]; !ok {
			diff.ComponentsRemoved = append(diff.ComponentsRemoved, id)
			files[bc.node.Path] = true
		}
	}

	diff.EdgesAdded = edgesOnlyIn(t.out, b.out)
	diff.EdgesRemoved = edgesOnlyIn(b.out, t.out)

	sort.Strings(diff.ComponentsAdded)
	sort.Strings(diff.ComponentsRemoved)
	sort.Slice(diff.ComponentsModified, func(i, j int) bool {
		return diff.ComponentsModified[i].ID < diff.ComponentsModified[j].ID
	})

	changed := len(diff.ComponentsAdded) + len(diff.ComponentsRemoved) + len(diff.ComponentsModified)
	total := max(len(b.components), len(t.components))
	ratio := 0.0
	if total > 0 {
		ratio = float64(changed) / float64(total)
	}
	diff.Summary = DiffSummary{
		TotalChanges:  changed + len(diff.EdgesAdded) + len(diff.EdgesRemoved),
		FilesAffected: len(files),
		ChangeRatio:   ratio,
	}
	return diff
}

func classifyComponentChange(base, target flatComponent, baseOut, targetOut map[string]string) string {
	switch {
	case base.project != target.project:
		return ChangeProject
	case !slices.Equal(base.node.DeclaredProps, target.node.DeclaredProps):
		return ChangeDeclaredProps
	case !maps.Equal(base.node.Props, target.node.Props):
		return ChangeProps
	case !maps.Equal(baseOut, targetOut):
		return ChangeEdges
	}
	return ""
}

// edgesOnlyIn returns the edges of a missing from b, sorted. An edge whose
// project context changed counts as present in neither.
func edgesOnlyIn(a, b map[string]map[string]string) []DependencyEdge {
	out := []DependencyEdge{}
	for from, targets := range a {
		for to, ctx := range targets {
			if other, ok := b[from][to]; ok && other == ctx {
				continue
			}
			out = append(out, DependencyEdge{From: from, To: to, ProjectContext: ctx})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}
