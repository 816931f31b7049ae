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
	"testing"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/extract"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootIndex_InnermostWins(t *testing.T) {
	idx := newRootIndex([]*Project{
		{Name: "outer", Root: "/repo"},
		{Name: "inner", Root: "/repo/packages/inner"},
	})

	owner, ok := idx.owner("/repo/packages/inner/src/A.tsx")
	require.True(t, ok)
	assert.Equal(t, "inner", owner.name)

	owner, ok = idx.owner("/repo/src/B.tsx")
	require.True(t, ok)
	assert.Equal(t, "outer", owner.name)

	_, ok = idx.owner("/elsewhere/C.tsx")
	assert.False(t, ok)

	_, ok = idx.owner("/repository/D.tsx")
	assert.False(t, ok)
}

func TestRelativePath(t *testing.T) {
	assert.Equal(t, "web/src/App.tsx", RelativePath("web", "/repo/web", "/repo/web/src/App.tsx"))
}

func TestSourceMembership_Lookup(t *testing.T) {
	m := NewSourceMembership([]*Project{{Name: "@acme/ui", Root: "/repo/ui"}})

	project, byPath, ok := m.Lookup("/repo/ui/src/Button.tsx", "@acme/ui")
	require.True(t, ok)
	assert.True(t, byPath)
	assert.Equal(t, "@acme/ui", project)

	project, byPath, ok = m.Lookup("/node_modules/@acme/ui/dist/index.js", "@acme/ui/button")
	require.True(t, ok)
	assert.False(t, byPath)
	assert.Equal(t, "@acme/ui", project)

	_, _, ok = m.Lookup("/repo/web/src/Local.tsx", "./Local")
	assert.False(t, ok)

	root, ok := m.Root("@acme/ui")
	require.True(t, ok)
	assert.Equal(t, "/repo/ui", root)
}

func testBuilder(membership *SourceMembership, external ExternalPolicy) *batchBuilder {
	web := &Project{Name: "web", Root: "/repo/web", Role: RoleConsumer}
	ui := &Project{Name: "@acme/ui", Root: "/repo/ui"}
	return &batchBuilder{
		project:    web,
		roots:      newRootIndex([]*Project{web, ui}),
		membership: membership,
		external:   external,
	}
}

func TestBatchBuilder_Build(t *testing.T) {
	membership := NewSourceMembership([]*Project{{Name: "@acme/ui", Root: "/repo/ui"}})
	b := testBuilder(membership, ExternalPlaceholder)

	decls := []extract.ComponentDeclaration{{
		Name:     "Home",
		FilePath: "/repo/web/src/Home.tsx",
		Usages: []extract.ComponentUsage{
			{Name: "Header", OriginName: "Header", OriginPath: "/repo/web/src/Header.tsx", Resolved: true, Props: map[string]int{"title": 1}},
			{Name: "Button", OriginName: "Button", OriginPath: "/repo/ui/src/Button.tsx", Specifier: "@acme/ui", Resolved: true},
			{Name: "Card", OriginName: "Card", Specifier: "@acme/ui/card", Resolved: true, OriginPath: "/vendor/card.js"},
			{Name: "Dialog", OriginName: "Dialog", External: true, Package: "@radix-ui/react-dialog", Resolved: true},
			{Name: "Ghost", Resolved: false},
		},
	}}

	batch, stats := b.build("/repo/web/src/Home.tsx", decls)
	assert.Equal(t, "web", batch.Project)
	assert.Equal(t, "web/src/Home.tsx", batch.SourcePath)
	assert.Equal(t, batchStats{placeholders: 1, crossProject: 2, skipped: 1}, stats)

	homeID := graph.ComputeID("Home", "web/src/Home.tsx")
	headerID := graph.ComputeID("Header", "web/src/Header.tsx")
	buttonID := graph.ComputeID("Button", "@acme/ui/src/Button.tsx")
	dialogID := graph.ComputeID("Dialog", "@radix-ui/react-dialog")

	require.Len(t, batch.Components, 4)
	assert.Equal(t, homeID, batch.Components[0].Node.ID)
	assert.Equal(t, "web", batch.Components[0].Project)
	assert.Equal(t, headerID, batch.Components[1].Node.ID)
	assert.Equal(t, map[string]int{"title": 1}, batch.Components[1].Node.Props)
	assert.Equal(t, buttonID, batch.Components[2].Node.ID)
	assert.True(t, batch.Components[2].MergeOnly)
	assert.Equal(t, "@acme/ui", batch.Components[2].Project)
	assert.Equal(t, dialogID, batch.Components[3].Node.ID)
	assert.True(t, batch.Components[3].Node.External)

	assert.Equal(t, []graph.BatchEdge{
		{From: homeID, To: headerID},
		{From: homeID, To: buttonID, ProjectContext: "@acme/ui"},
		{From: homeID, ToName: "Card", ToProject: "@acme/ui", ProjectContext: "@acme/ui"},
		{From: homeID, To: dialogID, ProjectContext: "@radix-ui/react-dialog"},
	}, batch.Edges)
}

func TestBatchBuilder_SourceProjectUsesRoots(t *testing.T) {
	ui := &Project{Name: "@acme/ui", Root: "/repo/ui"}
	web := &Project{Name: "web", Root: "/repo/web"}
	b := &batchBuilder{project: web, roots: newRootIndex([]*Project{web, ui}), external: ExternalSkip}

	batch, stats := b.build("/repo/web/src/A.tsx", []extract.ComponentDeclaration{{
		Name:     "A",
		FilePath: "/repo/web/src/A.tsx",
		Usages: []extract.ComponentUsage{
			{Name: "Button", OriginName: "Button", OriginPath: "/repo/ui/src/Button.tsx", Resolved: true},
			{Name: "Motion", External: true, Package: "framer-motion", Resolved: true},
		},
	}})

	assert.Equal(t, 1, stats.skipped)
	require.Len(t, batch.Components, 2)
	assert.False(t, batch.Components[1].MergeOnly)
	assert.Equal(t, "@acme/ui", batch.Components[1].Project)
	require.Len(t, batch.Edges, 1)
	assert.Equal(t, "@acme/ui", batch.Edges[0].ProjectContext)
}
