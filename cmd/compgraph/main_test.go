// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/config"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/graph"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/workspace"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var repoFiles = map[string]string{
	"/repo/package.json": `{"name": "root", "workspaces": ["packages/*"]}`,

	"/repo/packages/ui/package.json":   `{"name": "@acme/ui", "main": "src/index.ts"}`,
	"/repo/packages/ui/src/index.ts":   `export { Button } from './Button';`,
	"/repo/packages/ui/src/Button.tsx": `export function Button({ label }) { return <button>{label}</button>; }`,

	"/repo/packages/app/package.json": `{"name": "app"}`,
	"/repo/packages/app/src/Home.tsx": `
import { Header } from './Header';
import { FaBeer } from 'react-icons';

export function Home() {
  return <main><Header title="home" /><FaBeer size={12} /></main>;
}
`,
	"/repo/packages/app/src/Header.tsx": `
import { Button } from '@acme/ui';

export function Header({ title }) {
  return <header><Button label={title} /></header>;
}
`,
}

func newRepo(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range repoFiles {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return fs
}

func newTestApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	cfg, err := config.LoadFs(afero.NewMemMapFs(), "", nil)
	require.NoError(t, err)
	var out bytes.Buffer
	return &app{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		stdout: &out,
		stderr: io.Discard,
	}, &out
}

func consumerTargets() targets {
	return targets{
		Roots:     []string{"/repo/packages/ui"},
		Consumers: []string{"/repo/packages/app"},
		Sources:   []string{"@acme/ui"},
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		format string
		tty    bool
		json   bool
	}{
		{"auto on terminal", "auto", true, false},
		{"auto piped", "auto", false, true},
		{"forced text", "text", false, false},
		{"forced json", "json", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			newLogger(&buf, tt.format, slog.LevelInfo, tt.tty).Info("hello")
			assert.Equal(t, tt.json, strings.HasPrefix(buf.String(), "{"), buf.String())
		})
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "text", slog.LevelWarn, false)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestIsTerminal_NonFile(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}

func TestLoadProjects_ExpandsWorkspace(t *testing.T) {
	a, _ := newTestApp(t)
	projects, errs := a.loadProjects(newRepo(t), targets{Roots: []string{"/repo"}})
	require.Empty(t, errs)
	require.Len(t, projects, 2)
	assert.Equal(t, "app", projects[0].Name)
	assert.Equal(t, "@acme/ui", projects[1].Name)
	for _, p := range projects {
		assert.Equal(t, workspace.RoleSource, p.Role)
	}
}

func TestLoadProjects_Consumers(t *testing.T) {
	a, _ := newTestApp(t)
	projects, errs := a.loadProjects(newRepo(t), consumerTargets())
	require.Empty(t, errs)
	require.Len(t, projects, 2)
	assert.Equal(t, workspace.RoleSource, projects[0].Role)
	assert.Equal(t, workspace.RoleConsumer, projects[1].Role)
	assert.Equal(t, []string{"@acme/ui"}, projects[1].Sources)
}

func TestLoadProjects_MissingRoot(t *testing.T) {
	a, _ := newTestApp(t)
	projects, errs := a.loadProjects(newRepo(t), targets{Roots: []string{"/repo/packages/ui", "/nowhere"}})
	require.Len(t, projects, 1)
	require.Len(t, errs, 1)
	assert.Equal(t, "/nowhere", errs[0].Root)
}

func TestLoadProjects_MalformedWorkspaceGlob(t *testing.T) {
	a, _ := newTestApp(t)
	fs := newRepo(t)
	require.NoError(t, afero.WriteFile(fs, "/repo/package.json",
		[]byte(`{"name": "root", "workspaces": ["packages/*", "[broken"]}`), 0o644))

	projects, errs := a.loadProjects(fs, targets{Roots: []string{"/repo"}})
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], workspace.ErrInvalidGlob)
	assert.Equal(t, "/repo", errs[0].Root)
	require.Len(t, projects, 2)
	assert.Equal(t, "app", projects[0].Name)
	assert.Equal(t, "@acme/ui", projects[1].Name)
}

func TestRunAnalysis_NoProjects(t *testing.T) {
	a, _ := newTestApp(t)
	_, _, _, err := a.runAnalysis(context.Background(), newRepo(t), targets{Roots: []string{"/nowhere"}})
	assert.ErrorIs(t, err, workspace.ErrMissingProjectName)
}

func TestRunAnalysis_SummaryAndTraversal(t *testing.T) {
	a, out := newTestApp(t)
	orch, projects, result, err := a.runAnalysis(context.Background(), newRepo(t), consumerTargets())
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.False(t, result.HasErrors())

	reg := orch.Registry()
	assert.Equal(t, 4, reg.Len())
	assert.Equal(t, 3, reg.EdgeCount())

	printSummary(out, result, reg.Stats())
	assert.Contains(t, out.String(), "2 projects, 4 files (0 failed)")
	assert.Contains(t, out.String(), "components: 4 (1 external), edges: 3 (2 cross-project)")
	assert.NotContains(t, out.String(), "failures:")

	out.Reset()
	require.NoError(t, printTraversal(out, reg, "Home", "app"))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "Home  app/src/Home.tsx (app)"), lines[0])
	assert.Contains(t, out.String(), "    Button  @acme/ui/src/Button.tsx (@acme/ui)")

	err = printTraversal(out, reg, "Missing", "")
	assert.ErrorIs(t, err, graph.ErrComponentNotFound)
}

func TestPrintSummary_ListsFailures(t *testing.T) {
	result := &workspace.RunResult{RunID: "r1"}
	for i := 0; i < maxListedErrors+5; i++ {
		result.FileErrors = append(result.FileErrors, workspace.FileError{FilePath: "/p/Bad.tsx", Err: assert.AnError})
	}
	var buf bytes.Buffer
	printSummary(&buf, result, graph.RegistryStats{})
	assert.Contains(t, buf.String(), "failures: 25")
	assert.Contains(t, buf.String(), "... 5 more")
}

func TestPrintSnapshots(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printSnapshots(&buf, []*graph.SnapshotMetadata{{
		SnapshotID:     "0123456789abcdef",
		ComponentCount: 4,
		EdgeCount:      3,
		Projects:       []string{"@acme/ui", "app"},
		Label:          "baseline",
	}}))
	assert.Contains(t, buf.String(), "0123456789abcdef")
	assert.Contains(t, buf.String(), "@acme/ui,app")
	assert.Contains(t, buf.String(), "baseline")
}

func TestPrintDiff(t *testing.T) {
	var buf bytes.Buffer
	printDiff(&buf, &graph.RegistryDiff{BaseID: "a", TargetID: "b"})
	assert.Contains(t, buf.String(), "a -> b")
	assert.Contains(t, buf.String(), "no changes")

	buf.Reset()
	printDiff(&buf, &graph.RegistryDiff{
		BaseID:             "a",
		TargetID:           "b",
		ComponentsAdded:    []string{"c1"},
		ComponentsModified: []graph.ComponentChange{{ID: "c2", Name: "Header", ChangeType: graph.ChangeProps}},
		EdgesAdded:         []graph.DependencyEdge{{From: "c2", To: "c1"}},
		Summary:            graph.DiffSummary{TotalChanges: 3, FilesAffected: 2, ChangeRatio: 0.5},
	})
	assert.Contains(t, buf.String(), "3 changes across 2 files (50% of components)")
	assert.Contains(t, buf.String(), "  + c1")
	assert.Contains(t, buf.String(), "  ~ Header props_changed")
	assert.Contains(t, buf.String(), "edges: +1 -0")
}

func TestTelemetryConfig(t *testing.T) {
	a, _ := newTestApp(t)
	tc := telemetryConfig(a.cfg)
	assert.Equal(t, config.DefaultServiceName, tc.ServiceName)
	assert.Equal(t, "none", tc.TraceExporter)
	assert.Equal(t, "prometheus", tc.MetricExporter)
	assert.Equal(t, "localhost:4317", tc.OTLPEndpoint)
}

func TestRootCommand_Version(t *testing.T) {
	a, out := newTestApp(t)
	root := a.rootCommand()
	root.SetArgs([]string{"version", "--config", "/nonexistent/.compgraph.yaml"})
	// The explicit config file does not exist, so setup fails before the
	// version command runs.
	assert.Error(t, root.Execute())
	assert.Empty(t, out.String())
}
