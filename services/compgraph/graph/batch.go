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
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// BatchComponent is one component insert or merge.
type BatchComponent struct {
	Node    ComponentNode
	Project string

	// MergeOnly folds the node into an existing component and is skipped
	// when the component does not exist yet.
	MergeOnly bool
}

// BatchEdge is one dependency to add.
//
// To is the target id. When To is empty the target is looked up by
// ToName in ToProject.
type BatchEdge struct {
	From           string
	To             string
	ToName         string
	ToProject      string
	ProjectContext string
}

// Batch groups the registry changes produced by one source file.
type Batch struct {
	// Project and SourcePath identify the file, for diagnostics.
	Project    string
	SourcePath string

	Components []BatchComponent
	Edges      []BatchEdge
}

// EdgeError is a rejected batch edge.
type EdgeError struct {
	Edge BatchEdge
	Err  error
}

// Error implements error.
func (e EdgeError) Error() string {
	to := e.Edge.To
	if to == "" {
		to = e.Edge.ToProject + "/" + e.Edge.ToName
	}
	return fmt.Sprintf("edge %s -> %s: %v", e.Edge.From, to, e.Err)
}

// Unwrap returns the cause.
func (e EdgeError) Unwrap() error {
	return e.Err
}

// BatchResult reports what ApplyBatch changed.
type BatchResult struct {
	Added      int
	Merged     int
	Skipped    int
	EdgesAdded int

	// ComponentErrors are components that failed validation or capacity.
	ComponentErrors []error

	// EdgeErrors are edges whose endpoints do not exist. The rest of the
	// batch is still applied.
	EdgeErrors []EdgeError
}

// ApplyBatch applies all components first and then all edges under one
// write lock.
//
// Description:
//
//	Readers see either none or all of the batch. A failed component or
//	edge is reported in the result and does not stop the remaining
//	entries. Applying the same batch twice adds no components or edges
//	the second time but sums the prop counts again.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (r *ComponentRegistry) ApplyBatch(ctx context.Context, b *Batch) BatchResult {
	ctx, span := startOperationSpan(ctx, "ApplyBatch")
	defer span.End()
	start := time.Now()

	var res BatchResult
	if b == nil {
		return res
	}

	r.mu.Lock()
	for _, bc := range b.Components {
		if err := bc.Node.Validate(); err != nil {
			res.ComponentErrors = append(res.ComponentErrors, err)
			continue
		}
		if bc.Project == "" {
			res.ComponentErrors = append(res.ComponentErrors,
				fmt.Errorf("%w: %s has no project", ErrInvalidComponent, bc.Node.Name))
			continue
		}
		if bc.MergeOnly && !r.existsLocked(bc.Node) {
			res.Skipped++
			continue
		}
		_, added, err := r.addComponentLocked(bc.Node, bc.Project)
		switch {
		case err != nil:
			res.ComponentErrors = append(res.ComponentErrors, err)
		case added:
			res.Added++
		default:
			res.Merged++
		}
	}

	for _, e := range b.Edges {
		to := e.To
		if to == "" {
			to = r.findIDLocked(e.ToName, e.ToProject)
			if to == "" {
				res.EdgeErrors = append(res.EdgeErrors, EdgeError{
					Edge: e,
					Err:  fmt.Errorf("%w: %s in %s", ErrComponentNotFound, e.ToName, e.ToProject),
				})
				continue
			}
		}
		added, err := r.addDependencyLocked(e.From, to, e.ProjectContext)
		if err != nil {
			res.EdgeErrors = append(res.EdgeErrors, EdgeError{Edge: e, Err: err})
			continue
		}
		if added {
			res.EdgesAdded++
		}
	}
	r.mu.Unlock()

	span.SetAttributes(
		attribute.String("batch.source", b.SourcePath),
		attribute.Int("batch.added", res.Added),
		attribute.Int("batch.merged", res.Merged),
		attribute.Int("batch.edges_added", res.EdgesAdded),
		attribute.Int("batch.edge_errors", len(res.EdgeErrors)),
	)
	recordBatchEdgeErrors(ctx, len(res.EdgeErrors))
	recordOperationMetrics(ctx, "apply_batch", time.Since(start), len(res.ComponentErrors) == 0)
	return res
}

func (r *ComponentRegistry) existsLocked(n ComponentNode) bool {
	id := n.ID
	if id == "" {
		id = ComputeID(n.Name, n.Path)
	}
	_, ok := r.components[id]
	return ok
}

// findIDLocked returns the smallest id named name in project, or "".
func (r *ComponentRegistry) findIDLocked(name, project string) string {
	ids := r.byName[nameKey{name: name, project: project}]
	if len(ids) == 0 {
		return ""
	}
	return ids.sorted()[0]
}
