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
	"testing"
)

func searchRegistry(t *testing.T) *ComponentRegistry {
	t.Helper()
	r := NewComponentRegistry()
	for _, c := range []struct{ name, path, project string }{
		{"Card", "ui/Card.tsx", "ui"},
		{"CardHeader", "ui/CardHeader.tsx", "ui"},
		{"ProductCard", "web/ProductCard.tsx", "web"},
		{"Discard", "web/Discard.tsx", "web"},
		{"Cart", "web/Cart.tsx", "web"},
		{"Modal", "ui/Modal.tsx", "ui"},
	} {
		mustAdd(t, r, node(c.name, c.path), c.project)
	}
	return r
}

func TestSearch_Ranking(t *testing.T) {
	r := searchRegistry(t)
	results, err := r.Search(context.Background(), "card", "", 0)
	if err != nil {
		t.Fatal(err)
	}

	want := []struct{ name, match string }{
		{"Card", MatchExact},
		{"CardHeader", MatchPrefix},
		{"ProductCard", MatchWord},
		{"Discard", MatchSubstring},
		{"Cart", MatchFuzzy},
	}
	if len(results) != len(want) {
		for _, r := range results {
			t.Logf("%s %s %d", r.Component.Name, r.Match, r.Score)
		}
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for i, w := range want {
		if results[i].Component.Name != w.name || results[i].Match != w.match {
			t.Errorf("result %d = %s (%s), want %s (%s)",
				i, results[i].Component.Name, results[i].Match, w.name, w.match)
		}
	}
}

func TestSearch_ProjectAndLimit(t *testing.T) {
	r := searchRegistry(t)
	ctx := context.Background()

	results, err := r.Search(ctx, "card", "ui", 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, res := range results {
		if res.Component.Project != "ui" {
			t.Errorf("result from project %s", res.Component.Project)
		}
	}
	if len(results) != 2 {
		t.Errorf("got %d ui results, want 2", len(results))
	}

	if results, _ := r.Search(ctx, "card", "", 2); len(results) != 2 {
		t.Errorf("limit 2 returned %d", len(results))
	}
	if results, _ := r.Search(ctx, "", "", 0); results != nil {
		t.Error("empty query returned results")
	}
}

func TestSearch_ExternalRanksAfterWorkspace(t *testing.T) {
	r := NewComponentRegistry()
	ext := node("Button", "@acme/ui")
	ext.External = true
	mustAdd(t, r, ext, "@acme/ui")
	mustAdd(t, r, node("Button", "web/Button.tsx"), "web")

	results, err := r.Search(context.Background(), "Button", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Component.External {
		t.Errorf("external placeholder ranked first: %+v", results)
	}
}

func TestSearch_Cancelled(t *testing.T) {
	r := searchRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Search(ctx, "card", "", 0); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"card", "card", 0},
		{"card", "cart", 1},
		{"kitten", "sitting", 3},
	}
	for _, tc := range cases {
		if got := levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
