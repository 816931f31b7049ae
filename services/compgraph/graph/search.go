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
	"sort"
	"strings"
	"time"
)

// searchCheckInterval is how many components are scored between
// context checks.
const searchCheckInterval = 1000

// Match kinds, best first.
const (
	MatchExact     = "exact"
	MatchPrefix    = "prefix"
	MatchWord      = "word"
	MatchSubstring = "substring"
	MatchFuzzy     = "fuzzy"
)

// SearchResult is one ranked match.
type SearchResult struct {
	Component *ComponentInfo `json:"component"`

	// Score is lower for better matches.
	Score int    `json:"score"`
	Match string `json:"match"`
}

// Search ranks components by how well their name matches query.
//
// Description:
//
//	Case-insensitive. Exact matches rank first, then prefixes, then
//	PascalCase word matches ("Card" in "ProductCard"), then substrings,
//	then names within a Levenshtein distance of max(2, len(query)/3).
//	Within a kind, earlier and tighter matches rank higher, and
//	placeholders for external packages rank after workspace components.
//	Ties are broken by id.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - query: The name fragment. Empty returns nil.
//   - project: Restricts the search to one project when not empty.
//   - limit: Maximum results, 0 for no limit.
//
// Outputs:
//   - []SearchResult: Matches, best first.
//   - error: ctx.Err() if cancelled.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (r *ComponentRegistry) Search(ctx context.Context, query, project string, limit int) ([]SearchResult, error) {
	ctx, span := startOperationSpan(ctx, "Search")
	defer span.End()
	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordOperationMetrics(ctx, "search", time.Since(start), false)
		return nil, err
	}
	if query == "" {
		return nil, nil
	}
	queryLower := strings.ToLower(query)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []SearchResult
	count := 0
	for _, c := range r.components {
		count++
		if count%searchCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				recordOperationMetrics(ctx, "search", time.Since(start), false)
				return nil, err
			}
		}
		if project != "" && c.Project != project {
			continue
		}
		score, match := matchScore(query, queryLower, c.Name, strings.ToLower(c.Name), c.External)
		if score < 0 {
			continue
		}
		results = append(results, SearchResult{Component: c, Score: score, Match: match})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score < results[j].Score
		}
		return results[i].Component.ID < results[j].Component.ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	for i := range results {
		results[i].Component = r.copyInfo(results[i].Component)
	}

	recordOperationMetrics(ctx, "search", time.Since(start), true)
	recordSearchResults(ctx, len(results))
	return results, nil
}

// matchScore returns base*10000 + position*100 + length*10 + external,
// or -1 when name does not match.
func matchScore(query, queryLower, name, nameLower string, external bool) (int, string) {
	if nameLower == queryLower {
		if external {
			return 1, MatchExact
		}
		return 0, MatchExact
	}

	var base, pos int
	var match string
	switch {
	case strings.HasPrefix(nameLower, queryLower):
		base, match = 1, MatchPrefix
	default:
		if p := wordMatch(name, query); p >= 0 {
			base, pos, match = 2, p, MatchWord
		} else if p := strings.Index(nameLower, queryLower); p >= 0 {
			base, pos, match = 3, p, MatchSubstring
		} else if levenshtein(nameLower, queryLower) <= max(2, len(queryLower)/3) {
			base, match = 4, MatchFuzzy
		} else {
			return -1, ""
		}
	}

	positionPenalty := 0
	if pos > 0 {
		positionPenalty = min(99, pos*100/len(name))
	}
	lengthPenalty := min(99, absInt(len(name)-len(query)))
	externalPenalty := 0
	if external {
		externalPenalty = 1
	}
	return base*10000 + positionPenalty*100 + lengthPenalty*10 + externalPenalty, match
}

// wordMatch returns the index of a PascalCase word boundary in name at
// which query matches a whole word run, or -1.
func wordMatch(name, query string) int {
	if query == "" || len(query) > len(name) {
		return -1
	}
	queryLower := strings.ToLower(query)
	for i := 0; i+len(query) <= len(name); i++ {
		boundary := i == 0 || (isUpper(name[i]) && !isUpper(name[i-1]))
		if !boundary || strings.ToLower(name[i:i+len(query)]) != queryLower {
			continue
		}
		end := i + len(query)
		if end == len(name) || isUpper(name[end]) || !isLetter(name[end]) {
			return i
		}
	}
	return -1
}

func isUpper(c byte) bool {
	return c >= 'A' && c <= 'Z'
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// levenshtein is the two-row edit distance.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}
	if b == "" {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
