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
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultMaxComponents is the default registry capacity.
const DefaultMaxComponents = 1_000_000

// RegistryOptions configures a ComponentRegistry.
type RegistryOptions struct {
	// MaxComponents bounds the number of components.
	// Adding more returns ErrMaxComponentsExceeded.
	MaxComponents int
}

// DefaultRegistryOptions returns the default options.
func DefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{MaxComponents: DefaultMaxComponents}
}

// RegistryOption configures a ComponentRegistry.
type RegistryOption func(*RegistryOptions)

// WithMaxComponents sets the capacity.
func WithMaxComponents(max int) RegistryOption {
	return func(o *RegistryOptions) {
		if max > 0 {
			o.MaxComponents = max
		}
	}
}

// nameKey indexes components by name within a project.
type nameKey struct {
	name    string
	project string
}

type idSet map[string]struct{}

func (s idSet) sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ComponentRegistry is the shared component dependency graph.
//
// Description:
//
//	The primary store maps id to component. Secondary indexes map
//	(name, project), path and project to id sets. Forward adjacency maps
//	a component to its dependencies with their project context; reverse
//	adjacency maps it to its dependents. Invariants:
//	  - every indexed id exists in the store,
//	  - every edge endpoint exists in the store,
//	  - an edge A -> B implies A is among the dependents of B.
//
// Thread Safety:
//
//	Safe for concurrent use. Every mutation runs under the write lock and
//	updates all indexes before releasing it, so readers never observe a
//	partially applied change. Returned values are copies.
type ComponentRegistry struct {
	mu sync.RWMutex

	components map[string]*ComponentInfo

	byName    map[nameKey]idSet
	byPath    map[string]idSet
	byProject map[string]idSet

	deps       map[string]map[string]string
	dependents map[string]idSet

	edgeCount int
	options   RegistryOptions
}

// NewComponentRegistry creates an empty registry.
//
// Example:
//
//	reg := graph.NewComponentRegistry(graph.WithMaxComponents(100_000))
func NewComponentRegistry(opts ...RegistryOption) *ComponentRegistry {
	options := DefaultRegistryOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &ComponentRegistry{
		components: make(map[string]*ComponentInfo),
		byName:     make(map[nameKey]idSet),
		byPath:     make(map[string]idSet),
		byProject:  make(map[string]idSet),
		deps:       make(map[string]map[string]string),
		dependents: make(map[string]idSet),
		options:    options,
	}
}

// AddComponent inserts node into project, or merges it into the existing
// component with the same id.
//
// Description:
//
//	Merging sums the observed prop counts, unions the declared props and
//	fills an empty absolute path. The owning project of an existing
//	component never changes.
//
// Inputs:
//   - node: The component. ID is computed when empty.
//   - project: Owning project name. Must not be empty.
//
// Outputs:
//   - *ComponentInfo: Copy of the stored component after the change.
//   - error: ErrInvalidComponent or ErrMaxComponentsExceeded.
func (r *ComponentRegistry) AddComponent(node ComponentNode, project string) (*ComponentInfo, error) {
	start := time.Now()
	if err := node.Validate(); err != nil {
		return nil, err
	}
	if project == "" {
		return nil, fmt.Errorf("%w: %s has no project", ErrInvalidComponent, node.Name)
	}

	r.mu.Lock()
	info, _, err := r.addComponentLocked(node, project)
	r.mu.Unlock()

	recordOperationMetrics(context.Background(), "add_component", time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	return info, nil
}

// addComponentLocked inserts or merges node. Callers hold the write lock
// and have validated node.
func (r *ComponentRegistry) addComponentLocked(node ComponentNode, project string) (*ComponentInfo, bool, error) {
	if node.ID == "" {
		node.ID = ComputeID(node.Name, node.Path)
	}

	if existing, ok := r.components[node.ID]; ok {
		mergeInto(&existing.ComponentNode, node)
		if existing.AbsPath != "" {
			r.indexPath(existing.AbsPath, existing.ID)
		}
		return r.copyInfo(existing), false, nil
	}

	if len(r.components) >= r.options.MaxComponents {
		return nil, false, ErrMaxComponentsExceeded
	}

	stored := &ComponentInfo{ComponentNode: node.clone(), Project: project}
	if stored.Props == nil {
		stored.Props = make(map[string]int)
	}
	stored.DeclaredProps = unionSorted(nil, stored.DeclaredProps)

	r.components[stored.ID] = stored
	addToSet(r.byName, nameKey{name: stored.Name, project: project}, stored.ID)
	addToSet(r.byProject, project, stored.ID)
	r.indexPath(stored.Path, stored.ID)
	if stored.AbsPath != "" {
		r.indexPath(stored.AbsPath, stored.ID)
	}
	return r.copyInfo(stored), true, nil
}

func (r *ComponentRegistry) indexPath(path, id string) {
	addToSet(r.byPath, path, id)
}

// mergeInto folds src into dst.
func mergeInto(dst *ComponentNode, src ComponentNode) {
	for k, v := range src.Props {
		dst.Props[k] += v
	}
	dst.DeclaredProps = unionSorted(dst.DeclaredProps, src.DeclaredProps)
	if dst.AbsPath == "" {
		dst.AbsPath = src.AbsPath
	}
	if !src.External {
		dst.External = false
	}
}

// AddDependency records that from renders to.
//
// Description:
//
//	Fails without side effects when either endpoint is absent. Adding an
//	existing edge again is a no-op apart from updating an empty project
//	context.
//
// Outputs:
//   - error: *InvariantViolationError (errors.Is ErrComponentNotFound).
func (r *ComponentRegistry) AddDependency(from, to, projectContext string) error {
	start := time.Now()
	r.mu.Lock()
	_, err := r.addDependencyLocked(from, to, projectContext)
	r.mu.Unlock()
	recordOperationMetrics(context.Background(), "add_dependency", time.Since(start), err == nil)
	return err
}

func (r *ComponentRegistry) addDependencyLocked(from, to, projectContext string) (bool, error) {
	var missing []string
	if _, ok := r.components[from]; !ok {
		missing = append(missing, from)
	}
	if _, ok := r.components[to]; !ok {
		missing = append(missing, to)
	}
	if len(missing) > 0 {
		return false, &InvariantViolationError{From: from, To: to, Missing: missing}
	}

	out, ok := r.deps[from]
	if !ok {
		out = make(map[string]string)
		r.deps[from] = out
	}
	if prev, exists := out[to]; exists {
		if prev == "" && projectContext != "" {
			out[to] = projectContext
		}
		return false, nil
	}
	out[to] = projectContext
	addToSet(r.dependents, to, from)
	r.edgeCount++
	return true, nil
}

// GetComponent returns the component with id.
func (r *ComponentRegistry) GetComponent(id string) (*ComponentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.components[id]
	if !ok {
		return nil, false
	}
	return r.copyInfo(c), true
}

// FindComponent returns the component named name in project. When several
// files of the project declare the name, the one with the smallest id is
// returned.
func (r *ComponentRegistry) FindComponent(name, project string) (*ComponentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byName[nameKey{name: name, project: project}]
	if len(ids) == 0 {
		return nil, false
	}
	return r.copyInfo(r.components[ids.sorted()[0]]), true
}

// FindComponents returns every component named name, across all projects
// when project is empty. Results are sorted by id.
func (r *ComponentRegistry) FindComponents(name, project string) []*ComponentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if project != "" {
		return r.copyIDs(r.byName[nameKey{name: name, project: project}].sorted())
	}
	set := make(idSet)
	for key, ids := range r.byName {
		if key.name != name {
			continue
		}
		for id := range ids {
			set[id] = struct{}{}
		}
	}
	return r.copyIDs(set.sorted())
}

// FindByPath returns the components declared at path, which may be the
// project-relative or the absolute path.
func (r *ComponentRegistry) FindByPath(path string) []*ComponentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyIDs(r.byPath[path].sorted())
}

// ComponentsInProject returns the components owned by project, sorted
// by id.
func (r *ComponentRegistry) ComponentsInProject(project string) []*ComponentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyIDs(r.byProject[project].sorted())
}

// Projects returns the project names with at least one component, sorted.
func (r *ComponentRegistry) Projects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byProject))
	for p := range r.byProject {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// GetDependencies returns the outgoing edges of id, sorted by target.
func (r *ComponentRegistry) GetDependencies(id string) []DependencyEdge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.edgesFromLocked(id)
}

func (r *ComponentRegistry) edgesFromLocked(id string) []DependencyEdge {
	out := r.deps[id]
	edges := make([]DependencyEdge, 0, len(out))
	for to, ctx := range out {
		edges = append(edges, DependencyEdge{From: id, To: to, ProjectContext: ctx})
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].To < edges[j].To })
	return edges
}

// GetDependents returns the ids of components that render id, sorted.
func (r *ComponentRegistry) GetDependents(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dependents[id].sorted()
}

// RemoveComponent deletes id, every edge touching it and every index
// entry. Returns false if id is absent.
func (r *ComponentRegistry) RemoveComponent(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeComponentLocked(id)
}

func (r *ComponentRegistry) removeComponentLocked(id string) bool {
	c, ok := r.components[id]
	if !ok {
		return false
	}

	for to := range r.deps[id] {
		removeFromSet(r.dependents, to, id)
		r.edgeCount--
	}
	delete(r.deps, id)

	for from := range r.dependents[id] {
		if out, ok := r.deps[from]; ok {
			if _, had := out[id]; had {
				delete(out, id)
				r.edgeCount--
			}
			if len(out) == 0 {
				delete(r.deps, from)
			}
		}
	}
	delete(r.dependents, id)

	removeFromSet(r.byName, nameKey{name: c.Name, project: c.Project}, id)
	removeFromSet(r.byProject, c.Project, id)
	removeFromSet(r.byPath, c.Path, id)
	if c.AbsPath != "" {
		removeFromSet(r.byPath, c.AbsPath, id)
	}
	delete(r.components, id)
	return true
}

// RemovePath removes every component declared at path, relative or
// absolute, and returns how many were removed.
func (r *ComponentRegistry) RemovePath(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.byPath[path].sorted()
	for _, id := range ids {
		r.removeComponentLocked(id)
	}
	return len(ids)
}

// Len returns the number of components.
func (r *ComponentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.components)
}

// EdgeCount returns the number of edges.
func (r *ComponentRegistry) EdgeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.edgeCount
}

// Stats returns summary counts.
func (r *ComponentRegistry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStats{
		Components: len(r.components),
		Edges:      r.edgeCount,
		ByProject:  make(map[string]int, len(r.byProject)),
	}
	for p, ids := range r.byProject {
		stats.ByProject[p] = len(ids)
	}
	for _, c := range r.components {
		if c.External {
			stats.External++
		}
	}
	for _, out := range r.deps {
		for _, ctx := range out {
			if ctx != "" {
				stats.CrossProject++
			}
		}
	}
	return stats
}

// TraverseFrom walks the dependencies reachable from id depth first.
//
// Description:
//
//	Each reachable component is yielded once, at the depth it was first
//	discovered. Children are visited in id order, so the result is
//	deterministic. Cycles are cut by the visited set.
//
// Outputs:
//   - []TraversalStep: Steps in visit order, starting with id at depth 0.
//   - error: ErrComponentNotFound if id is absent.
func (r *ComponentRegistry) TraverseFrom(id string) ([]TraversalStep, error) {
	start := time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.components[id]; !ok {
		recordOperationMetrics(context.Background(), "traverse", time.Since(start), false)
		return nil, fmt.Errorf("%w: %s", ErrComponentNotFound, id)
	}

	type frame struct {
		id    string
		depth int
	}

	visited := make(map[string]struct{})
	stack := []frame{{id: id}}
	var steps []TraversalStep

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[f.id]; seen {
			continue
		}
		visited[f.id] = struct{}{}

		c := r.components[f.id]
		children := make([]string, 0, len(r.deps[f.id]))
		for to := range r.deps[f.id] {
			children = append(children, to)
		}
		sort.Strings(children)

		steps = append(steps, TraversalStep{
			ID:           c.ID,
			Name:         c.Name,
			Path:         c.Path,
			Project:      c.Project,
			Depth:        f.depth,
			Dependencies: children,
		})

		for i := len(children) - 1; i >= 0; i-- {
			if _, seen := visited[children[i]]; !seen {
				stack = append(stack, frame{id: children[i], depth: f.depth + 1})
			}
		}
	}

	recordOperationMetrics(context.Background(), "traverse", time.Since(start), true)
	return steps, nil
}

// Validate checks every registry invariant and returns all violations
// joined, each wrapping ErrIndexInconsistent.
func (r *ComponentRegistry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrIndexInconsistent}, args...)...))
	}

	for key, ids := range r.byName {
		for id := range ids {
			if _, ok := r.components[id]; !ok {
				bad("name index %s/%s holds unknown id %s", key.project, key.name, id)
			}
		}
	}
	for path, ids := range r.byPath {
		for id := range ids {
			if _, ok := r.components[id]; !ok {
				bad("path index %s holds unknown id %s", path, id)
			}
		}
	}
	for project, ids := range r.byProject {
		for id := range ids {
			c, ok := r.components[id]
			if !ok {
				bad("project index %s holds unknown id %s", project, id)
			} else if c.Project != project {
				bad("project index %s holds %s owned by %s", project, id, c.Project)
			}
		}
	}

	count := 0
	for from, out := range r.deps {
		if _, ok := r.components[from]; !ok {
			bad("edge source %s does not exist", from)
		}
		for to := range out {
			count++
			if _, ok := r.components[to]; !ok {
				bad("edge target %s of %s does not exist", to, from)
			}
			if _, ok := r.dependents[to][from]; !ok {
				bad("edge %s -> %s has no reverse entry", from, to)
			}
		}
	}
	for to, froms := range r.dependents {
		for from := range froms {
			if _, ok := r.deps[from][to]; !ok {
				bad("reverse entry %s <- %s has no forward edge", to, from)
			}
		}
	}
	if count != r.edgeCount {
		bad("edge count %d, counted %d", r.edgeCount, count)
	}

	return errors.Join(errs...)
}

func (r *ComponentRegistry) copyInfo(c *ComponentInfo) *ComponentInfo {
	return &ComponentInfo{ComponentNode: c.ComponentNode.clone(), Project: c.Project}
}

func (r *ComponentRegistry) copyIDs(ids []string) []*ComponentInfo {
	out := make([]*ComponentInfo, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.components[id]; ok {
			out = append(out, r.copyInfo(c))
		}
	}
	return out
}

func addToSet[K comparable](m map[K]idSet, key K, id string) {
	s, ok := m[key]
	if !ok {
		s = make(idSet)
		m[key] = s
	}
	s[id] = struct{}{}
}

func removeFromSet[K comparable](m map[K]idSet, key K, id string) {
	s, ok := m[key]
	if !ok {
		return
	}
	delete(s, id)
	if len(s) == 0 {
		delete(m, key)
	}
}

// unionSorted returns the sorted, de-duplicated union of a and b.
func unionSorted(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
