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
	"reflect"
	"testing"
)

func TestDiffRegistries_Identical(t *testing.T) {
	base, _ := buildChain(t)
	target, _ := buildChain(t)

	diff, err := DiffRegistries(base, target, "a", "b")
	if err != nil {
		t.Fatalf("DiffRegistries: %v", err)
	}
	if !diff.Empty() {
		t.Errorf("expected empty diff, got %+v", diff)
	}
	if diff.BaseID != "a" || diff.TargetID != "b" {
		t.Errorf("ids = %q, %q", diff.BaseID, diff.TargetID)
	}
	if diff.Summary.ChangeRatio != 0 {
		t.Errorf("ChangeRatio = %v, want 0", diff.Summary.ChangeRatio)
	}
}

func TestDiffRegistries_Changes(t *testing.T) {
	base, ids := buildChain(t)
	target, _ := buildChain(t)

	// Remove Page (and its edges), add Footer used by App, and record a
	// new prop on Header.
	if !target.RemoveComponent(ids["Page"]) {
		t.Fatal("RemoveComponent(Page) = false")
	}
	footer := mustAdd(t, target, node("Footer", "web/src/Footer.tsx"), "web")
	if err := target.AddDependency(ids["App"], footer.ID, ""); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}
	header := node("Header", "web/src/Header.tsx")
	header.DeclaredProps = []string{"title"}
	mustAdd(t, target, header, "web")

	diff, err := DiffRegistries(base, target, "before", "after")
	if err != nil {
		t.Fatalf("DiffRegistries: %v", err)
	}

	if !reflect.DeepEqual(diff.ComponentsAdded, []string{footer.ID}) {
		t.Errorf("ComponentsAdded = %v", diff.ComponentsAdded)
	}
	if !reflect.DeepEqual(diff.ComponentsRemoved, []string{ids["Page"]}) {
		t.Errorf("ComponentsRemoved = %v", diff.ComponentsRemoved)
	}

	changes := map[string]string{}
	for _, c := range diff.ComponentsModified {
		changes[c.Name] = c.ChangeType
	}
	want := map[string]string{
		"App":    ChangeEdges,
		"Header": ChangeDeclaredProps,
	}
	if !reflect.DeepEqual(changes, want) {
		t.Errorf("ComponentsModified = %v, want %v", changes, want)
	}

	if len(diff.EdgesAdded) != 1 || diff.EdgesAdded[0].To != footer.ID {
		t.Errorf("EdgesAdded = %+v", diff.EdgesAdded)
	}
	// App -> Page and Page -> Header.
	if len(diff.EdgesRemoved) != 2 {
		t.Errorf("EdgesRemoved = %+v", diff.EdgesRemoved)
	}

	if got := diff.Summary.TotalChanges; got != 1+1+2+1+2 {
		t.Errorf("TotalChanges = %d", got)
	}
	// Footer, Page, App, Header.
	if got := diff.Summary.FilesAffected; got != 4 {
		t.Errorf("FilesAffected = %d", got)
	}
	if got := diff.Summary.ChangeRatio; got != 1.0 {
		t.Errorf("ChangeRatio = %v, want 1", got)
	}
}

func TestDiffRegistries_ContextChange(t *testing.T) {
	base, ids := buildChain(t)
	target := NewComponentRegistry()
	for _, c := range []struct{ name, path, project string }{
		{"App", "web/src/App.tsx", "web"},
		{"Page", "web/src/Page.tsx", "web"},
		{"Header", "web/src/Header.tsx", "web"},
		{"Button", "ui/src/Button.tsx", "ui"},
	} {
		mustAdd(t, target, node(c.name, c.path), c.project)
	}
	for _, e := range [][3]string{
		{"App", "Page", ""},
		{"Page", "Header", ""},
		{"Header", "Button", ""},
		{"App", "Button", "ui"},
	} {
		if err := target.AddDependency(ids[e[0]], ids[e[1]], e[2]); err != nil {
			t.Fatalf("AddDependency: %v", err)
		}
	}

	diff, err := DiffRegistries(base, target, "", "")
	if err != nil {
		t.Fatalf("DiffRegistries: %v", err)
	}
	if len(diff.EdgesAdded) != 1 || len(diff.EdgesRemoved) != 1 {
		t.Fatalf("edges added=%v removed=%v", diff.EdgesAdded, diff.EdgesRemoved)
	}
	if diff.EdgesRemoved[0].ProjectContext != "ui" || diff.EdgesAdded[0].ProjectContext != "" {
		t.Errorf("contexts: removed %q added %q", diff.EdgesRemoved[0].ProjectContext, diff.EdgesAdded[0].ProjectContext)
	}
	if len(diff.ComponentsModified) != 1 || diff.ComponentsModified[0].ChangeType != ChangeEdges {
		t.Errorf("ComponentsModified = %+v", diff.ComponentsModified)
	}
}

func TestDiffRegistries_Nil(t *testing.T) {
	if _, err := DiffRegistries(nil, NewComponentRegistry(), "", ""); err == nil {
		t.Error("expected error for nil base")
	}
}
