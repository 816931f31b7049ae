// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"github.com/AleutianAI/ComponentGraph/services/compgraph/graph"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine readable code.
	Code string `json:"code,omitempty"`
}

// HealthResponse is returned by GET /v1/components/health.
type HealthResponse struct {
	Status     string `json:"status"`
	Components int    `json:"components"`
	Edges      int    `json:"edges"`
}

// ComponentResponse is returned by GET /v1/components/:id.
type ComponentResponse struct {
	Component    *graph.ComponentInfo   `json:"component"`
	Dependencies []graph.DependencyEdge `json:"dependencies"`
	Dependents   []string               `json:"dependents"`
}

// TraverseResponse is returned by GET /v1/components/:id/traverse.
type TraverseResponse struct {
	Root  string                `json:"root"`
	Steps []graph.TraversalStep `json:"steps"`
}

// SearchResponse is returned by GET /v1/components/search.
type SearchResponse struct {
	Query   string               `json:"query"`
	Results []graph.SearchResult `json:"results"`
}

// ListSnapshotsResponse is returned by GET /v1/snapshots.
type ListSnapshotsResponse struct {
	Snapshots []*graph.SnapshotMetadata `json:"snapshots"`
}

// SaveSnapshotRequest is the optional body of POST /v1/snapshots.
type SaveSnapshotRequest struct {
	Label string `json:"label" binding:"max=128"`
}
