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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// SchemaVersion is the version of the serialized registry format.
const SchemaVersion = "1.0"

// SerializableRegistry is the JSON form of a registry.
//
// Projects, their components and their edges are sorted, so equal
// registries serialize to equal bytes. Edges are listed under the project
// of their source component.
type SerializableRegistry struct {
	SchemaVersion string                `json:"schema_version"`
	Hash          string                `json:"hash"`
	Projects      []SerializableProject `json:"projects"`
}

// SerializableProject is one project's part of a SerializableRegistry.
type SerializableProject struct {
	Name       string           `json:"name"`
	Components []ComponentNode  `json:"components"`
	Edges      []DependencyEdge `json:"edges"`
}

// ComponentCount returns the number of serialized components.
func (s *SerializableRegistry) ComponentCount() int {
	n := 0
	for _, p := range s.Projects {
		n += len(p.Components)
	}
	return n
}

// EdgeCount returns the number of serialized edges.
func (s *SerializableRegistry) EdgeCount() int {
	n := 0
	for _, p := range s.Projects {
		n += len(p.Edges)
	}
	return n
}

// ToSerializable returns the deterministic JSON form of the registry.
//
// Thread Safety:
//
//	Safe for concurrent use. Holds the read lock for the whole copy.
func (r *ComponentRegistry) ToSerializable() *SerializableRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	projects := make([]string, 0, len(r.byProject))
	for p := range r.byProject {
		projects = append(projects, p)
	}
	sort.Strings(projects)

	out := &SerializableRegistry{
		SchemaVersion: SchemaVersion,
		Projects:      make([]SerializableProject, 0, len(projects)),
	}
	for _, name := range projects {
		ids := r.byProject[name].sorted()
		sp := SerializableProject{
			Name:       name,
			Components: make([]ComponentNode, 0, len(ids)),
			Edges:      []DependencyEdge{},
		}
		for _, id := range ids {
			sp.Components = append(sp.Components, r.components[id].ComponentNode.clone())
			sp.Edges = append(sp.Edges, r.edgesFromLocked(id)...)
		}
		out.Projects = append(out.Projects, sp)
	}
	out.Hash = out.computeHash()
	return out
}

// computeHash hashes the registry content with the Hash field cleared.
func (s *SerializableRegistry) computeHash() string {
	clone := *s
	clone.Hash = ""
	// Marshal cannot fail on these plain types; map keys are sorted by
	// encoding/json.
	data, _ := json.Marshal(clone)
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// FromSerializable rebuilds a registry.
//
// Description:
//
//	All components are added before any edge. The stored hash, when
//	present, must match the content.
//
// Outputs:
//   - *ComponentRegistry: The rebuilt registry.
//   - error: ErrUnsupportedSchema, a hash mismatch, or the first
//     component or edge error.
func FromSerializable(s *SerializableRegistry, opts ...RegistryOption) (*ComponentRegistry, error) {
	if s == nil {
		return nil, fmt.Errorf("serialized registry must not be nil")
	}
	if s.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: %q (want %q)", ErrUnsupportedSchema, s.SchemaVersion, SchemaVersion)
	}
	if s.Hash != "" {
		if got := s.computeHash(); got != s.Hash {
			return nil, fmt.Errorf("registry hash mismatch: stored %s, computed %s", s.Hash, got)
		}
	}

	r := NewComponentRegistry(opts...)
	for _, p := range s.Projects {
		for _, c := range p.Components {
			if _, err := r.AddComponent(c, p.Name); err != nil {
				return nil, fmt.Errorf("restoring %s in %s: %w", c.Name, p.Name, err)
			}
		}
	}
	for _, p := range s.Projects {
		for _, e := range p.Edges {
			if err := r.AddDependency(e.From, e.To, e.ProjectContext); err != nil {
				return nil, fmt.Errorf("restoring edge: %w", err)
			}
		}
	}
	return r, nil
}
