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
	"fmt"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/extract"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/graph"
)

// ExternalPolicy selects what happens to usages of external packages.
type ExternalPolicy int

const (
	// ExternalPlaceholder records a placeholder component in a
	// pseudo-project named after the package.
	ExternalPlaceholder ExternalPolicy = iota

	// ExternalSkip drops external usages.
	ExternalSkip
)

// String returns "placeholder" or "skip".
func (p ExternalPolicy) String() string {
	if p == ExternalSkip {
		return "skip"
	}
	return "placeholder"
}

// ParseExternalPolicy maps "placeholder" or "skip" to a policy.
func ParseExternalPolicy(s string) (ExternalPolicy, error) {
	switch s {
	case "placeholder", "":
		return ExternalPlaceholder, nil
	case "skip":
		return ExternalSkip, nil
	}
	return ExternalPlaceholder, fmt.Errorf("unknown external policy %q", s)
}

// batchStats counts how usages were converted.
type batchStats struct {
	placeholders int
	crossProject int
	skipped      int
}

// batchBuilder converts the declarations of one file into a graph.Batch.
type batchBuilder struct {
	project    *Project
	roots      *rootIndex
	membership *SourceMembership
	external   ExternalPolicy
}

// build returns the batch for the declarations of file.
//
// Description:
//
//	Every declaration becomes a component of the project. Every usage
//	becomes an edge and upserts its target carrying the usage's prop
//	counts, so edges never depend on the order files are applied in.
//	For consumers, usages that belong to a source project only fold their
//	props into an existing target and add a cross-project edge. Usages
//	without an origin path are skipped.
func (b *batchBuilder) build(file string, decls []extract.ComponentDeclaration) (*graph.Batch, batchStats) {
	var stats batchStats
	batch := &graph.Batch{
		Project:    b.project.Name,
		SourcePath: RelativePath(b.project.Name, b.project.Root, file),
	}

	for _, d := range decls {
		path := RelativePath(b.project.Name, b.project.Root, d.FilePath)
		from := graph.ComputeID(d.Name, path)
		batch.Components = append(batch.Components, graph.BatchComponent{
			Node: graph.ComponentNode{
				ID:            from,
				Name:          d.Name,
				Path:          path,
				AbsPath:       d.FilePath,
				DeclaredProps: d.DeclaredProps,
			},
			Project: b.project.Name,
		})

		for _, u := range d.Usages {
			switch {
			case u.External:
				if b.external == ExternalSkip || u.Package == "" {
					stats.skipped++
					continue
				}
				b.addExternal(batch, from, u)
				stats.placeholders++

			case u.OriginPath == "" || u.OriginName == "":
				stats.skipped++

			default:
				if b.addSourceMember(batch, from, u) {
					stats.crossProject++
					continue
				}
				b.addLocal(batch, from, u)
			}
		}
	}
	return batch, stats
}

func (b *batchBuilder) addExternal(batch *graph.Batch, from string, u extract.ComponentUsage) {
	name := u.OriginName
	if name == "" {
		name = usageTail(u.Name)
	}
	to := graph.ComputeID(name, u.Package)
	batch.Components = append(batch.Components, graph.BatchComponent{
		Node: graph.ComponentNode{
			ID:       to,
			Name:     name,
			Path:     u.Package,
			Props:    u.Props,
			External: true,
		},
		Project: u.Package,
	})
	batch.Edges = append(batch.Edges, graph.BatchEdge{From: from, To: to, ProjectContext: u.Package})
}

// addSourceMember handles consumer usages of source project components.
func (b *batchBuilder) addSourceMember(batch *graph.Batch, from string, u extract.ComponentUsage) bool {
	if b.membership == nil {
		return false
	}
	source, byPath, ok := b.membership.Lookup(u.OriginPath, u.Specifier)
	if !ok || source == b.project.Name {
		return false
	}

	if !byPath {
		batch.Edges = append(batch.Edges, graph.BatchEdge{
			From:           from,
			ToName:         u.OriginName,
			ToProject:      source,
			ProjectContext: source,
		})
		return true
	}

	root, _ := b.membership.Root(source)
	path := RelativePath(source, root, u.OriginPath)
	to := graph.ComputeID(u.OriginName, path)
	batch.Components = append(batch.Components, graph.BatchComponent{
		Node:      graph.ComponentNode{ID: to, Name: u.OriginName, Path: path, Props: u.Props},
		Project:   source,
		MergeOnly: true,
	})
	batch.Edges = append(batch.Edges, graph.BatchEdge{From: from, To: to, ProjectContext: source})
	return true
}

func (b *batchBuilder) addLocal(batch *graph.Batch, from string, u extract.ComponentUsage) {
	project := b.project.Name
	var path string
	if owner, ok := b.roots.owner(u.OriginPath); ok {
		project = owner.name
		path = RelativePath(owner.name, owner.root, u.OriginPath)
	} else {
		path = filepath.ToSlash(u.OriginPath)
	}

	to := graph.ComputeID(u.OriginName, path)
	batch.Components = append(batch.Components, graph.BatchComponent{
		Node: graph.ComponentNode{
			ID:      to,
			Name:    u.OriginName,
			Path:    path,
			AbsPath: u.OriginPath,
			Props:   u.Props,
		},
		Project: project,
	})

	var projectContext string
	if project != b.project.Name {
		projectContext = project
	}
	batch.Edges = append(batch.Edges, graph.BatchEdge{From: from, To: to, ProjectContext: projectContext})
}

func usageTail(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
