// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package symbols

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/ast"
)

// ResolutionKind classifies where a local resolution ended.
type ResolutionKind int

const (
	// ResolutionLocal means the chain ended at a value declared in the file.
	ResolutionLocal ResolutionKind = iota

	// ResolutionImport means the chain ended at an import binding.
	ResolutionImport
)

// String returns the resolution kind name.
func (k ResolutionKind) String() string {
	if k == ResolutionImport {
		return "import"
	}
	return "local"
}

// Resolution is the outcome of ResolveSymbol.
type Resolution struct {
	Kind ResolutionKind

	// Declaration is the terminal local declaration or the import binding.
	Declaration *ast.Declaration

	// Name is the name of Declaration.
	Name string

	// Specifier is the import module specifier, for ResolutionImport.
	Specifier string

	// ImportedName is the name taken from Specifier: "default", "*" or a
	// named export.
	ImportedName string

	// MemberPath is the member access still pending after the binding,
	// e.g. ["Button"] for `UI.Button` where UI is a namespace import.
	MemberPath []string

	// Chain lists the names traversed, starting with the reference.
	Chain []string
}

// ResolveSymbol resolves a possibly dotted name referenced in scope.
//
// Description:
//
//	Only the leftmost segment is looked up, using the real scope chain of
//	the reference so shadowing declarations win. The lookup then follows:
//	  - `const A = B` aliases of any length,
//	  - `const A = NS.B` member aliases, recording B as pending member,
//	  - `const {B} = S` and `const [B] = S` destructuring, recursing on S.
//	Each hop continues from the scope that declared the alias. The walk
//	stops at an import binding or at any other local declaration.
//
// Inputs:
//   - facts: Facts of the file containing the reference. Must not be nil.
//   - scope: Innermost scope of the reference. Nil means the module scope.
//   - name: Referenced name, e.g. "Button" or "UI.Button".
//
// Outputs:
//   - *Resolution: Non-nil on success.
//   - error: ErrSymbolNotFound if a name in the chain is unbound,
//     ErrAliasCycle if the chain loops.
//
// Thread Safety: Safe for concurrent use; facts are read-only.
func ResolveSymbol(facts *ast.Facts, scope *ast.Scope, name string) (*Resolution, error) {
	if scope == nil {
		scope = facts.Module
	}

	segments := strings.Split(name, ".")
	root := segments[0]
	pending := append([]string(nil), segments[1:]...)

	decl := scope.Lookup(root)
	if decl == nil {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, root)
	}

	chain := []string{name}
	seen := make(map[*ast.Declaration]struct{})

	for {
		if _, loop := seen[decl]; loop {
			return nil, fmt.Errorf("%w: %s", ErrAliasCycle, strings.Join(chain, " -> "))
		}
		seen[decl] = struct{}{}

		if decl.Kind == ast.DeclImport {
			return &Resolution{
				Kind:         ResolutionImport,
				Declaration:  decl,
				Name:         decl.Name,
				Specifier:    decl.ImportSource,
				ImportedName: decl.ImportedName,
				MemberPath:   pending,
				Chain:        chain,
			}, nil
		}

		if decl.IsTerminal() {
			return &Resolution{
				Kind:        ResolutionLocal,
				Declaration: decl,
				Name:        decl.Name,
				MemberPath:  pending,
				Chain:       chain,
			}, nil
		}

		pending = append(append([]string(nil), decl.InitPath...), pending...)

		// `const X = X` refers to the outer X.
		lookupScope := decl.Scope
		if decl.InitName == decl.Name {
			lookupScope = decl.Scope.Parent
		}
		next := lookupScope.Lookup(decl.InitName)
		if next == nil {
			return nil, fmt.Errorf("%w: %s (aliased by %s)", ErrSymbolNotFound, decl.InitName, decl.Name)
		}
		chain = append(chain, decl.InitName)
		decl = next
	}
}
