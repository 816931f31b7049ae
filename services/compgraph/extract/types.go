// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract finds the UI components declared in a file and the
// components each of them renders.
//
// A root component is a PascalCase top-level function, or a PascalCase
// variable annotated with a functional component type such as React.FC.
// Every capitalized JSX tag in a component body is a usage. Usages are
// resolved to their declaring file through the symbols package, and the
// attribute names passed at each usage are counted.
package extract

import (
	"errors"
	"sort"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/ast"
)

// SpreadPropKey is the prop name under which `{...props}` attributes are
// counted.
const SpreadPropKey = "..."

// ErrNilFacts is returned when Extract is called without facts.
var ErrNilFacts = errors.New("facts must not be nil")

// UnresolvedPolicy selects the origin recorded for usages that cannot be
// resolved.
type UnresolvedPolicy int

const (
	// UnresolvedSameFile attributes the usage to the extracting file.
	UnresolvedSameFile UnresolvedPolicy = iota

	// UnresolvedNone leaves the origin empty.
	UnresolvedNone
)

// String returns the policy name.
func (p UnresolvedPolicy) String() string {
	if p == UnresolvedNone {
		return "none"
	}
	return "same-file"
}

// ParseUnresolvedPolicy maps "same-file" or "none" to a policy.
func ParseUnresolvedPolicy(s string) (UnresolvedPolicy, bool) {
	switch s {
	case "same-file", "":
		return UnresolvedSameFile, true
	case "none":
		return UnresolvedNone, true
	}
	return UnresolvedSameFile, false
}

// ComponentUsage is one child component rendered by a parent.
type ComponentUsage struct {
	// Name is the tag name as written, e.g. "Button" or "UI.Button".
	Name string `json:"name"`

	// OriginName is the name of the declaring component.
	OriginName string `json:"origin_name,omitempty"`

	// OriginPath is the absolute path of the declaring file. Empty for
	// external usages and for unresolved usages under UnresolvedNone.
	OriginPath string `json:"origin_path,omitempty"`

	// Specifier is the module specifier when resolution went through an
	// import.
	Specifier string `json:"specifier,omitempty"`

	// External marks a usage declared in a package outside the workspace.
	External bool `json:"external,omitempty"`

	// Package is the external package name.
	Package string `json:"package,omitempty"`

	// Resolved is false when the origin could not be determined.
	Resolved bool `json:"resolved"`

	// ResolveError describes why resolution failed.
	ResolveError string `json:"resolve_error,omitempty"`

	// Props counts attribute names over every occurrence of this child in
	// the parent.
	Props map[string]int `json:"props,omitempty"`

	// Occurrences is the number of tags merged into this usage.
	Occurrences int `json:"occurrences"`

	// Location is the first occurrence.
	Location ast.Location `json:"location"`
}

// PropNames returns the observed prop names, sorted.
func (u ComponentUsage) PropNames() []string {
	names := make([]string, 0, len(u.Props))
	for name := range u.Props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ComponentDeclaration is a root component and the components it renders.
type ComponentDeclaration struct {
	Name string `json:"name"`

	// FilePath is the absolute path of the declaring file.
	FilePath string `json:"file_path"`

	Location ast.Location `json:"location"`

	// Exported is true when the file exports the component under any name.
	Exported bool `json:"exported"`

	// DeclaredProps are the props the component declares, sorted.
	DeclaredProps []string `json:"declared_props,omitempty"`

	// Usages are the rendered children in order of first appearance.
	Usages []ComponentUsage `json:"usages,omitempty"`
}

// UsageCount returns the number of distinct children.
func (d ComponentDeclaration) UsageCount() int {
	return len(d.Usages)
}
