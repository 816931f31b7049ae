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
	"reflect"
	"sync"
	"testing"
)

func node(name, path string) ComponentNode {
	return ComponentNode{Name: name, Path: path}
}

func mustAdd(t *testing.T, r *ComponentRegistry, n ComponentNode, project string) *ComponentInfo {
	t.Helper()
	info, err := r.AddComponent(n, project)
	if err != nil {
		t.Fatalf("AddComponent(%s): %v", n.Name, err)
	}
	return info
}

func mustValidate(t *testing.T, r *ComponentRegistry) {
	t.Helper()
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

// buildChain creates App -> Page -> Header -> Button plus App -> Button.
func buildChain(t *testing.T) (*ComponentRegistry, map[string]string) {
	t.Helper()
	r := NewComponentRegistry()
	ids := map[string]string{}
	for _, c := range []struct{ name, path, project string }{
		{"App", "web/src/App.tsx", "web"},
		{"Page", "web/src/Page.tsx", "web"},
		{"Header", "web/src/Header.tsx", "web"},
		{"Button", "ui/src/Button.tsx", "ui"},
	} {
		ids[c.name] = mustAdd(t, r, node(c.name, c.path), c.project).ID
	}
	for _, e := range [][3]string{
		{"App", "Page", ""},
		{"Page", "Header", ""},
		{"Header", "Button", "ui"},
		{"App", "Button", "ui"},
	} {
		if err := r.AddDependency(ids[e[0]], ids[e[1]], e[2]); err != nil {
			t.Fatalf("AddDependency(%s, %s): %v", e[0], e[1], err)
		}
	}
	return r, ids
}

func TestComputeID_Deterministic(t *testing.T) {
	a := ComputeID("Button", "ui/src/Button.tsx")
	if a != ComputeID("Button", "ui/src/Button.tsx") {
		t.Fatal("ComputeID is not deterministic")
	}
	if len(a) != 16 {
		t.Errorf("len(id) = %d, want 16", len(a))
	}
	if a == ComputeID("Button", "ui/src/Other.tsx") {
		t.Error("different paths share an id")
	}
	if ComputeID("ab", "c") == ComputeID("a", "bc") {
		t.Error("separator does not disambiguate")
	}
}

func TestAddComponent_Indexes(t *testing.T) {
	r := NewComponentRegistry()
	n := node("Button", "ui/src/Button.tsx")
	n.AbsPath = "/ws/packages/ui/src/Button.tsx"
	info := mustAdd(t, r, n, "ui")

	if info.ID != ComputeID("Button", "ui/src/Button.tsx") {
		t.Errorf("ID = %s, want computed id", info.ID)
	}
	if got, ok := r.GetComponent(info.ID); !ok || got.Project != "ui" {
		t.Errorf("GetComponent = %+v, %v", got, ok)
	}
	if got, ok := r.FindComponent("Button", "ui"); !ok || got.ID != info.ID {
		t.Errorf("FindComponent = %+v, %v", got, ok)
	}
	if _, ok := r.FindComponent("Button", "web"); ok {
		t.Error("FindComponent found Button in the wrong project")
	}
	if got := r.FindByPath("ui/src/Button.tsx"); len(got) != 1 {
		t.Errorf("FindByPath(rel) = %d results", len(got))
	}
	if got := r.FindByPath(n.AbsPath); len(got) != 1 {
		t.Errorf("FindByPath(abs) = %d results", len(got))
	}
	if got := r.ComponentsInProject("ui"); len(got) != 1 {
		t.Errorf("ComponentsInProject = %d results", len(got))
	}
	if got := r.Projects(); !reflect.DeepEqual(got, []string{"ui"}) {
		t.Errorf("Projects = %v", got)
	}
	mustValidate(t, r)
}

func TestAddComponent_Invalid(t *testing.T) {
	r := NewComponentRegistry()
	cases := []struct {
		name    string
		node    ComponentNode
		project string
	}{
		{"empty name", node("", "a.tsx"), "p"},
		{"empty path", node("A", ""), "p"},
		{"empty project", node("A", "a.tsx"), ""},
		{"wrong id", ComponentNode{ID: "deadbeefdeadbeef", Name: "A", Path: "a.tsx"}, "p"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.AddComponent(tc.node, tc.project)
			if !errors.Is(err, ErrInvalidComponent) {
				t.Errorf("err = %v, want ErrInvalidComponent", err)
			}
		})
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d after invalid adds", r.Len())
	}
}

func TestAddComponent_Merge(t *testing.T) {
	r := NewComponentRegistry()
	first := node("Button", "ui/src/Button.tsx")
	first.Props = map[string]int{"label": 1}
	first.DeclaredProps = []string{"label"}
	mustAdd(t, r, first, "ui")

	second := node("Button", "ui/src/Button.tsx")
	second.Props = map[string]int{"label": 2, "onClick": 1}
	second.DeclaredProps = []string{"onClick", "label"}
	second.AbsPath = "/ws/ui/src/Button.tsx"
	info := mustAdd(t, r, second, "web")

	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
	if info.Project != "ui" {
		t.Errorf("Project = %s, owning project must not change", info.Project)
	}
	if want := map[string]int{"label": 3, "onClick": 1}; !reflect.DeepEqual(info.Props, want) {
		t.Errorf("Props = %v, want %v", info.Props, want)
	}
	if want := []string{"label", "onClick"}; !reflect.DeepEqual(info.DeclaredProps, want) {
		t.Errorf("DeclaredProps = %v, want %v", info.DeclaredProps, want)
	}
	if got := r.FindByPath("/ws/ui/src/Button.tsx"); len(got) != 1 {
		t.Errorf("merged AbsPath not indexed")
	}
	mustValidate(t, r)
}

func TestAddComponent_ReturnsCopy(t *testing.T) {
	r := NewComponentRegistry()
	n := node("A", "a.tsx")
	n.Props = map[string]int{"x": 1}
	info := mustAdd(t, r, n, "p")
	info.Props["x"] = 100
	n.Props["x"] = 50

	got, _ := r.GetComponent(info.ID)
	if got.Props["x"] != 1 {
		t.Errorf("stored Props mutated through a copy: %v", got.Props)
	}
}

func TestAddComponent_MaxComponents(t *testing.T) {
	r := NewComponentRegistry(WithMaxComponents(2))
	mustAdd(t, r, node("A", "a.tsx"), "p")
	mustAdd(t, r, node("B", "b.tsx"), "p")
	if _, err := r.AddComponent(node("C", "c.tsx"), "p"); !errors.Is(err, ErrMaxComponentsExceeded) {
		t.Errorf("err = %v, want ErrMaxComponentsExceeded", err)
	}
	// Merging into an existing component still works at capacity.
	if _, err := r.AddComponent(node("A", "a.tsx"), "p"); err != nil {
		t.Errorf("merge at capacity: %v", err)
	}
}

func TestAddDependency_EdgeIntegrity(t *testing.T) {
	r := NewComponentRegistry()
	a := mustAdd(t, r, node("A", "a.tsx"), "p")

	err := r.AddDependency(a.ID, "missing0000000000", "")
	var iv *InvariantViolationError
	if !errors.As(err, &iv) {
		t.Fatalf("err = %v, want *InvariantViolationError", err)
	}
	if !errors.Is(err, ErrComponentNotFound) {
		t.Error("InvariantViolationError does not unwrap to ErrComponentNotFound")
	}
	if !reflect.DeepEqual(iv.Missing, []string{"missing0000000000"}) {
		t.Errorf("Missing = %v", iv.Missing)
	}
	if r.EdgeCount() != 0 || len(r.GetDependencies(a.ID)) != 0 {
		t.Error("rejected edge left state behind")
	}
	mustValidate(t, r)
}

func TestAddDependency_Idempotent(t *testing.T) {
	r, ids := buildChain(t)
	before := r.EdgeCount()
	if err := r.AddDependency(ids["App"], ids["Page"], ""); err != nil {
		t.Fatal(err)
	}
	if r.EdgeCount() != before {
		t.Errorf("EdgeCount = %d, want %d", r.EdgeCount(), before)
	}
	mustValidate(t, r)
}

func TestDependenciesAndDependents(t *testing.T) {
	r, ids := buildChain(t)

	deps := r.GetDependencies(ids["App"])
	if len(deps) != 2 {
		t.Fatalf("App has %d dependencies, want 2", len(deps))
	}
	for i := 1; i < len(deps); i++ {
		if deps[i-1].To > deps[i].To {
			t.Error("dependencies not sorted by target")
		}
	}
	for _, d := range deps {
		if d.To == ids["Button"] && d.ProjectContext != "ui" {
			t.Errorf("App -> Button project context = %q", d.ProjectContext)
		}
	}

	dependents := r.GetDependents(ids["Button"])
	want := []string{ids["App"], ids["Header"]}
	if want[0] > want[1] {
		want[0], want[1] = want[1], want[0]
	}
	if !reflect.DeepEqual(dependents, want) {
		t.Errorf("dependents = %v, want %v", dependents, want)
	}

	stats := r.Stats()
	if stats.Components != 4 || stats.Edges != 4 || stats.CrossProject != 2 {
		t.Errorf("Stats = %+v", stats)
	}
	if stats.ByProject["web"] != 3 || stats.ByProject["ui"] != 1 {
		t.Errorf("ByProject = %v", stats.ByProject)
	}
}

func TestFindComponents_AcrossProjects(t *testing.T) {
	r := NewComponentRegistry()
	mustAdd(t, r, node("Button", "ui/src/Button.tsx"), "ui")
	mustAdd(t, r, node("Button", "web/src/Button.tsx"), "web")
	mustAdd(t, r, node("Card", "ui/src/Card.tsx"), "ui")

	if got := r.FindComponents("Button", ""); len(got) != 2 {
		t.Errorf("FindComponents all = %d, want 2", len(got))
	}
	if got := r.FindComponents("Button", "web"); len(got) != 1 || got[0].Project != "web" {
		t.Errorf("FindComponents web = %+v", got)
	}
	if got := r.FindComponents("Nope", ""); len(got) != 0 {
		t.Errorf("FindComponents unknown = %d", len(got))
	}
}

func TestTraverseFrom_Depths(t *testing.T) {
	r, ids := buildChain(t)

	steps, err := r.TraverseFrom(ids["App"])
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 4 {
		t.Fatalf("got %d steps, want 4", len(steps))
	}
	if steps[0].ID != ids["App"] || steps[0].Depth != 0 {
		t.Errorf("first step = %+v", steps[0])
	}

	seen := map[string]int{}
	for _, s := range steps {
		if _, dup := seen[s.ID]; dup {
			t.Errorf("%s visited twice", s.Name)
		}
		seen[s.ID] = s.Depth
	}
	if seen[ids["Page"]] != 1 {
		t.Errorf("Page depth = %d, want 1", seen[ids["Page"]])
	}
	if seen[ids["Header"]] != 2 {
		t.Errorf("Header depth = %d, want 2", seen[ids["Header"]])
	}
	// Button is reachable at depth 1 and 3; the reported depth is from
	// its first discovery in id order.
	if d := seen[ids["Button"]]; d != 1 && d != 3 {
		t.Errorf("Button depth = %d", d)
	}

	again, _ := r.TraverseFrom(ids["App"])
	if !reflect.DeepEqual(steps, again) {
		t.Error("traversal is not deterministic")
	}
}

func TestTraverseFrom_Cycle(t *testing.T) {
	r := NewComponentRegistry()
	a := mustAdd(t, r, node("A", "a.tsx"), "p")
	b := mustAdd(t, r, node("B", "b.tsx"), "p")
	if err := r.AddDependency(a.ID, b.ID, ""); err != nil {
		t.Fatal(err)
	}
	if err := r.AddDependency(b.ID, a.ID, ""); err != nil {
		t.Fatal(err)
	}

	steps, err := r.TraverseFrom(a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if steps[1].ID != b.ID || steps[1].Depth != 1 {
		t.Errorf("second step = %+v", steps[1])
	}
}

func TestTraverseFrom_NotFound(t *testing.T) {
	r := NewComponentRegistry()
	if _, err := r.TraverseFrom("nope"); !errors.Is(err, ErrComponentNotFound) {
		t.Errorf("err = %v, want ErrComponentNotFound", err)
	}
}

func TestRemoveComponent_Cascades(t *testing.T) {
	r, ids := buildChain(t)

	if !r.RemoveComponent(ids["Button"]) {
		t.Fatal("RemoveComponent returned false")
	}
	if r.RemoveComponent(ids["Button"]) {
		t.Error("second RemoveComponent returned true")
	}
	if r.EdgeCount() != 2 {
		t.Errorf("EdgeCount = %d, want 2", r.EdgeCount())
	}
	for _, d := range r.GetDependencies(ids["App"]) {
		if d.To == ids["Button"] {
			t.Error("edge to removed component survived")
		}
	}
	if len(r.GetDependencies(ids["Header"])) != 0 {
		t.Error("Header still has dependencies")
	}
	if _, ok := r.FindComponent("Button", "ui"); ok {
		t.Error("name index still holds Button")
	}
	if got := r.Projects(); !reflect.DeepEqual(got, []string{"web"}) {
		t.Errorf("Projects = %v", got)
	}
	mustValidate(t, r)
}

func TestRemovePath(t *testing.T) {
	r := NewComponentRegistry()
	a := mustAdd(t, r, node("A", "p/x.tsx"), "p")
	b := mustAdd(t, r, node("B", "p/x.tsx"), "p")
	c := mustAdd(t, r, node("C", "p/y.tsx"), "p")
	_ = r.AddDependency(c.ID, a.ID, "")
	_ = r.AddDependency(a.ID, b.ID, "")

	if n := r.RemovePath("p/x.tsx"); n != 2 {
		t.Errorf("RemovePath = %d, want 2", n)
	}
	if r.Len() != 1 || r.EdgeCount() != 0 {
		t.Errorf("Len = %d, EdgeCount = %d", r.Len(), r.EdgeCount())
	}
	mustValidate(t, r)
}

func TestApplyBatch(t *testing.T) {
	r := NewComponentRegistry()
	mustAdd(t, r, node("Button", "ui/src/Button.tsx"), "ui")

	home := ComponentNode{Name: "Home", Path: "web/src/Home.tsx"}
	homeID := ComputeID(home.Name, home.Path)
	b := &Batch{
		Project:    "web",
		SourcePath: "web/src/Home.tsx",
		Components: []BatchComponent{
			{Node: home, Project: "web"},
			{Node: ComponentNode{Name: "Button", Path: "ui/src/Button.tsx", Props: map[string]int{"label": 1}}, Project: "ui"},
			{Node: ComponentNode{Name: "", Path: "x.tsx"}, Project: "web"},
		},
		Edges: []BatchEdge{
			{From: homeID, ToName: "Button", ToProject: "ui", ProjectContext: "ui"},
			{From: homeID, ToName: "Missing", ToProject: "ui"},
			{From: homeID, To: "0000000000000000"},
		},
	}

	res := r.ApplyBatch(context.Background(), b)
	if res.Added != 1 || res.Merged != 1 {
		t.Errorf("Added = %d, Merged = %d", res.Added, res.Merged)
	}
	if len(res.ComponentErrors) != 1 {
		t.Errorf("ComponentErrors = %v", res.ComponentErrors)
	}
	if res.EdgesAdded != 1 {
		t.Errorf("EdgesAdded = %d, want 1", res.EdgesAdded)
	}
	if len(res.EdgeErrors) != 2 {
		t.Fatalf("EdgeErrors = %v", res.EdgeErrors)
	}
	for _, e := range res.EdgeErrors {
		if !errors.Is(e, ErrComponentNotFound) {
			t.Errorf("edge error %v does not wrap ErrComponentNotFound", e)
		}
	}

	again := r.ApplyBatch(context.Background(), b)
	if again.Added != 0 || again.EdgesAdded != 0 {
		t.Errorf("reapply added %d components, %d edges", again.Added, again.EdgesAdded)
	}
	btn, _ := r.FindComponent("Button", "ui")
	if btn.Props["label"] != 2 {
		t.Errorf("Button label count = %d, want 2", btn.Props["label"])
	}
	mustValidate(t, r)
}

func TestRegistry_ConcurrentBatches(t *testing.T) {
	r := NewComponentRegistry()
	mustAdd(t, r, node("Button", "ui/Button.tsx"), "ui")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n := node(fmt.Sprintf("Page%d", i), fmt.Sprintf("web/Page%d.tsx", i))
			r.ApplyBatch(context.Background(), &Batch{
				Components: []BatchComponent{{Node: n, Project: "web"}},
				Edges: []BatchEdge{{
					From:      ComputeID(n.Name, n.Path),
					ToName:    "Button",
					ToProject: "ui",
				}},
			})
			r.FindComponents("Button", "")
		}(i)
	}
	wg.Wait()

	if r.Len() != 21 || r.EdgeCount() != 20 {
		t.Errorf("Len = %d, EdgeCount = %d", r.Len(), r.EdgeCount())
	}
	btn, _ := r.FindComponent("Button", "ui")
	if got := len(r.GetDependents(btn.ID)); got != 20 {
		t.Errorf("dependents = %d, want 20", got)
	}
	mustValidate(t, r)
}

func TestApplyBatch_MergeOnly(t *testing.T) {
	r := NewComponentRegistry()
	mustAdd(t, r, node("Button", "ui/Button.tsx"), "ui")

	res := r.ApplyBatch(context.Background(), &Batch{
		Components: []BatchComponent{
			{Node: ComponentNode{Name: "Button", Path: "ui/Button.tsx", Props: map[string]int{"size": 1}}, Project: "ui", MergeOnly: true},
			{Node: node("Ghost", "ui/Ghost.tsx"), Project: "ui", MergeOnly: true},
		},
	})
	if res.Merged != 1 || res.Skipped != 1 || res.Added != 0 {
		t.Errorf("result = %+v", res)
	}
	if _, ok := r.FindComponent("Ghost", "ui"); ok {
		t.Error("merge-only component was created")
	}
	btn, _ := r.FindComponent("Button", "ui")
	if btn.Props["size"] != 1 {
		t.Errorf("Button props = %v", btn.Props)
	}
}
