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
	"fmt"
	"io"
	"strings"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/graph"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/workspace"
	"github.com/charmbracelet/lipgloss"
)

// maxListedErrors caps the failures printed by the summary.
const maxListedErrors = 20

var (
	colorTitle   = lipgloss.Color("#2CD7C7")
	colorMuted   = lipgloss.Color("#2C4A54")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
)

// styles renders summary output. Styles are bound to the destination
// writer, so output that is not a terminal stays plain text.
type styles struct {
	title lipgloss.Style
	muted lipgloss.Style
	warn  lipgloss.Style
	fail  lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title: r.NewStyle().Bold(true).Foreground(colorTitle),
		muted: r.NewStyle().Foreground(colorMuted),
		warn:  r.NewStyle().Foreground(colorWarning),
		fail:  r.NewStyle().Foreground(colorError),
	}
}

func printSummary(w io.Writer, result *workspace.RunResult, stats graph.RegistryStats) {
	st := newStyles(w)
	s := result.Stats

	fmt.Fprintln(w, st.title.Render("run "+result.RunID))
	fmt.Fprintf(w, "%d projects, %d files (%d failed) in %dms\n",
		s.Projects, s.FilesProcessed, s.FilesFailed, s.DurationMilli)
	fmt.Fprintf(w, "components: %d (%d external), edges: %d (%d cross-project)\n",
		stats.Components, stats.External, stats.Edges, stats.CrossProject)

	usages := fmt.Sprintf("usages: %d unresolved, %d skipped", s.UnresolvedUsages, s.SkippedUsages)
	if s.UnresolvedUsages > 0 {
		usages = st.warn.Render(usages)
	}
	fmt.Fprintln(w, usages)
	if result.Incomplete {
		fmt.Fprintln(w, st.warn.Render("run cancelled, graph is incomplete"))
	}

	var failures []string
	for _, e := range result.ProjectErrors {
		failures = append(failures, e.Error())
	}
	for _, e := range result.FileErrors {
		failures = append(failures, e.Error())
	}
	for _, e := range result.EdgeErrors {
		failures = append(failures, e.Error())
	}
	if len(failures) == 0 {
		return
	}
	fmt.Fprintln(w, st.fail.Render(fmt.Sprintf("failures: %d", len(failures))))
	for i, f := range failures {
		if i == maxListedErrors {
			fmt.Fprintln(w, st.muted.Render(fmt.Sprintf("  ... %d more", len(failures)-maxListedErrors)))
			break
		}
		fmt.Fprintf(w, "  %s\n", f)
	}
}

// printTraversal prints the depth-first traversal from name as an
// indented tree. Every component named name is printed when project is
// empty and several projects declare it.
func printTraversal(w io.Writer, reg *graph.ComponentRegistry, name, project string) error {
	matches := reg.FindComponents(name, project)
	if len(matches) == 0 {
		return fmt.Errorf("%w: %s", graph.ErrComponentNotFound, name)
	}
	st := newStyles(w)
	for i, m := range matches {
		if i > 0 {
			fmt.Fprintln(w)
		}
		steps, err := reg.TraverseFrom(m.ID)
		if err != nil {
			return err
		}
		for _, s := range steps {
			label := s.Name
			if s.Depth == 0 {
				label = st.title.Render(s.Name)
			}
			fmt.Fprintf(w, "%s%s  %s\n", strings.Repeat("  ", s.Depth), label,
				st.muted.Render(fmt.Sprintf("%s (%s)", s.Path, s.Project)))
		}
	}
	return nil
}

func printDiff(w io.Writer, diff *graph.RegistryDiff) {
	st := newStyles(w)
	fmt.Fprintln(w, st.title.Render(diff.BaseID+" -> "+diff.TargetID))
	if diff.Empty() {
		fmt.Fprintln(w, "no changes")
		return
	}
	fmt.Fprintf(w, "%d changes across %d files (%.0f%% of components)\n",
		diff.Summary.TotalChanges, diff.Summary.FilesAffected, diff.Summary.ChangeRatio*100)
	for _, id := range diff.ComponentsAdded {
		fmt.Fprintf(w, "  + %s\n", id)
	}
	for _, id := range diff.ComponentsRemoved {
		fmt.Fprintln(w, st.fail.Render("  - "+id))
	}
	for _, c := range diff.ComponentsModified {
		fmt.Fprintf(w, "  ~ %s %s\n", c.Name, st.muted.Render(c.ChangeType))
	}
	if n := len(diff.EdgesAdded) + len(diff.EdgesRemoved); n > 0 {
		fmt.Fprintf(w, "edges: +%d -%d\n", len(diff.EdgesAdded), len(diff.EdgesRemoved))
	}
}
