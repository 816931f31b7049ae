// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// DefaultMaxFileSize is the largest file Parse accepts by default (10MB).
	DefaultMaxFileSize int64 = 10 * 1024 * 1024

	// WarnFileSize is the size above which a warning is logged.
	WarnFileSize = 1 * 1024 * 1024

	// MaxWalkDepth bounds how deep the fact builder descends into a tree.
	MaxWalkDepth = 512

	// DefaultExportName is the export name of a module's default export.
	DefaultExportName = "default"

	// NamespaceImportName is the imported name recorded for `import * as ns`.
	NamespaceImportName = "*"
)

// Location identifies a span within a source file.
type Location struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	StartCol  int    `json:"start_col"`
	EndCol    int    `json:"end_col"`
}

// String returns "file:line:col".
func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.FilePath, l.StartLine, l.StartCol)
}

// ScopeKind classifies lexical scopes.
type ScopeKind int

const (
	ScopeModule ScopeKind = iota
	ScopeFunction
	ScopeBlock
	ScopeClass
	ScopeCatch
)

// String returns the scope kind name.
func (k ScopeKind) String() string {
	switch k {
	case ScopeModule:
		return "module"
	case ScopeFunction:
		return "function"
	case ScopeBlock:
		return "block"
	case ScopeClass:
		return "class"
	case ScopeCatch:
		return "catch"
	default:
		return "unknown"
	}
}

// Scope is one lexical scope of a file.
//
// Description:
//
//	Scopes form a tree rooted at the module scope. Each scope owns the names
//	declared directly in it. Lookup walks the real parent chain, so an inner
//	declaration shadows an outer one with the same name.
//
// Thread Safety:
//
//	Scopes are immutable once Parse returns and may be read concurrently.
type Scope struct {
	// ID is the preorder index of the scope within Facts.Scopes.
	ID int

	// Kind is the scope classification.
	Kind ScopeKind

	// Parent is the enclosing scope, nil for the module scope.
	Parent *Scope

	// StartByte and EndByte delimit the source range covered by the scope.
	StartByte uint32
	EndByte   uint32

	decls map[string]*Declaration
}

func newScope(id int, kind ScopeKind, parent *Scope, start, end uint32) *Scope {
	return &Scope{
		ID:        id,
		Kind:      kind,
		Parent:    parent,
		StartByte: start,
		EndByte:   end,
		decls:     make(map[string]*Declaration),
	}
}

// Own returns the declaration for name made directly in this scope.
func (s *Scope) Own(name string) *Declaration {
	if s == nil {
		return nil
	}
	return s.decls[name]
}

// Lookup resolves name against this scope and its ancestors.
//
// Returns nil when no scope in the chain declares name.
func (s *Scope) Lookup(name string) *Declaration {
	for cur := s; cur != nil; cur = cur.Parent {
		if d, ok := cur.decls[name]; ok {
			return d
		}
	}
	return nil
}

// Names returns the names declared directly in this scope, sorted.
func (s *Scope) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.decls))
	for n := range s.decls {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Contains reports whether offset falls inside the scope range.
func (s *Scope) Contains(offset uint32) bool {
	return offset >= s.StartByte && offset < s.EndByte
}

// functionScope returns the nearest function or module scope, the target
// of `var` declarations.
func (s *Scope) functionScope() *Scope {
	cur := s
	for cur != nil && cur.Kind != ScopeFunction && cur.Kind != ScopeModule {
		cur = cur.Parent
	}
	if cur == nil {
		return s
	}
	return cur
}

// DeclKind classifies declarations.
type DeclKind int

const (
	DeclVariable DeclKind = iota
	DeclImport
	DeclFunction
	DeclClass
	DeclParameter
	DeclOther
)

// String returns the declaration kind name.
func (k DeclKind) String() string {
	switch k {
	case DeclVariable:
		return "variable"
	case DeclImport:
		return "import"
	case DeclFunction:
		return "function"
	case DeclClass:
		return "class"
	case DeclParameter:
		return "parameter"
	default:
		return "other"
	}
}

// InitKind classifies the initializer of a variable declaration.
type InitKind int

const (
	// InitNone means the variable has no initializer.
	InitNone InitKind = iota

	// InitIdentifier is `const A = B`; InitName holds B.
	InitIdentifier

	// InitMember is `const A = NS.B.C`; InitName holds NS, InitPath [B C].
	InitMember

	// InitDestructure is `const {B} = S` or `const [B] = S`; InitName holds
	// the root of S, InitPath the member path of S followed by the key path
	// of the pattern. Array patterns stop the key path.
	InitDestructure

	// InitFunction is a function or arrow function expression.
	InitFunction

	// InitClass is a class expression.
	InitClass

	// InitOther is any other value (calls, literals, JSX).
	InitOther
)

// String returns the initializer kind name.
func (k InitKind) String() string {
	switch k {
	case InitNone:
		return "none"
	case InitIdentifier:
		return "identifier"
	case InitMember:
		return "member"
	case InitDestructure:
		return "destructure"
	case InitFunction:
		return "function"
	case InitClass:
		return "class"
	default:
		return "other"
	}
}

// FunctionInfo describes a function body attached to a declaration.
type FunctionInfo struct {
	// StartByte and EndByte delimit the whole function node.
	StartByte uint32
	EndByte   uint32

	// ParamKeys are the keys of an object pattern used as first parameter.
	ParamKeys []string

	// ParamType is the annotation text of the first parameter.
	ParamType string
}

// Contains reports whether offset falls inside the function.
func (f *FunctionInfo) Contains(offset uint32) bool {
	return f != nil && offset >= f.StartByte && offset < f.EndByte
}

// Declaration is one named binding in a scope.
type Declaration struct {
	// Name is the local binding name.
	Name string

	// Kind classifies the binding.
	Kind DeclKind

	// Scope is the scope that owns the binding.
	Scope *Scope

	// Location is the position of the declaring node.
	Location Location

	// Offset is the start byte of the declaring node.
	Offset uint32

	// ImportSource is the module specifier for imports.
	ImportSource string

	// ImportedName is the exported name taken from ImportSource:
	// "default", "*" for namespace imports, or the named export.
	ImportedName string

	// Init classifies the variable initializer.
	Init InitKind

	// InitName is the root identifier of an alias or destructuring source.
	InitName string

	// InitPath is the member path following InitName.
	InitPath []string

	// TypeAnnotation is the raw annotation text without the leading colon.
	TypeAnnotation string

	// Function is set when the binding is a function declaration or a
	// variable initialized with a function expression.
	Function *FunctionInfo
}

// IsTerminal reports whether the binding denotes a local value rather than
// a reference to another binding.
func (d *Declaration) IsTerminal() bool {
	switch d.Kind {
	case DeclImport:
		return false
	case DeclVariable:
		switch d.Init {
		case InitIdentifier, InitMember, InitDestructure:
			return false
		}
	}
	return true
}

// ExportBinding records one name a module exports.
type ExportBinding struct {
	// Exported is the public name ("default" for default exports).
	// Empty for `export * from`.
	Exported string `json:"exported,omitempty"`

	// Local is the local binding name for local exports.
	Local string `json:"local,omitempty"`

	// Imported is the name taken from Source for re-exports.
	Imported string `json:"imported,omitempty"`

	// Source is the module specifier for re-exports.
	Source string `json:"source,omitempty"`

	// Star marks `export * from Source`.
	Star bool `json:"star,omitempty"`

	// Namespace marks `export * as Exported from Source`.
	Namespace bool `json:"namespace,omitempty"`

	Location Location `json:"location"`
}

// IsReexport reports whether the binding forwards another module.
func (e ExportBinding) IsReexport() bool {
	return e.Source != ""
}

// JSXAttribute is one attribute of a JSX opening tag.
type JSXAttribute struct {
	// Name is the attribute name, empty for spreads.
	Name string

	// Spread marks `{...expr}`.
	Spread bool
}

// JSXElement is one opening or self-closing JSX tag.
type JSXElement struct {
	// Name is the full tag name, e.g. "Button", "UI.Button", "div".
	Name string

	// Scope is the innermost scope the tag appears in.
	Scope *Scope

	// Offset is the start byte of the tag.
	Offset uint32

	Location Location

	Attributes []JSXAttribute
}

// Facts is the semantic summary of one parsed file.
type Facts struct {
	// FilePath is the path passed to Parse.
	FilePath string

	// Language is "typescript" or "javascript".
	Language string

	// Hash is the SHA-256 of the content.
	Hash string

	// Module is the root scope.
	Module *Scope

	// Scopes lists every scope in preorder. Scopes[0] is Module.
	Scopes []*Scope

	// Declarations lists every binding in source order.
	Declarations []*Declaration

	// Exports lists every export and re-export in source order.
	Exports []ExportBinding

	// JSX lists every JSX tag in source order.
	JSX []JSXElement

	// TypeMembers maps interface and object type alias names to member names.
	TypeMembers map[string][]string

	// Errors holds non-fatal problems, such as syntax errors.
	Errors []string
}

// TopLevel returns the module scope declarations in source order.
func (f *Facts) TopLevel() []*Declaration {
	out := make([]*Declaration, 0, len(f.Module.decls))
	for _, d := range f.Declarations {
		if d.Scope == f.Module {
			out = append(out, d)
		}
	}
	return out
}

// ScopeAt returns the innermost scope containing offset.
func (f *Facts) ScopeAt(offset uint32) *Scope {
	best := f.Module
	for _, s := range f.Scopes {
		if s.Contains(offset) && s.StartByte >= best.StartByte && s.EndByte <= best.EndByte {
			best = s
		}
	}
	return best
}

// Lookup resolves name from scope outward. A nil scope means the module
// scope.
func (f *Facts) Lookup(scope *Scope, name string) *Declaration {
	if scope == nil {
		scope = f.Module
	}
	return scope.Lookup(name)
}

// References returns the JSX tags whose leftmost name segment binds to d.
func (f *Facts) References(d *Declaration) []JSXElement {
	var out []JSXElement
	for _, el := range f.JSX {
		root, _, _ := strings.Cut(el.Name, ".")
		if root != d.Name || el.Scope == nil {
			continue
		}
		if el.Scope.Lookup(root) == d {
			out = append(out, el)
		}
	}
	return out
}

// Symbols enumerates every declared name with its owning scope.
func (f *Facts) Symbols() []*Declaration {
	out := make([]*Declaration, len(f.Declarations))
	copy(out, f.Declarations)
	return out
}

// ExportsNamed returns the export bindings whose public name is name.
func (f *Facts) ExportsNamed(name string) []ExportBinding {
	var out []ExportBinding
	for _, e := range f.Exports {
		if !e.Star && e.Exported == name {
			out = append(out, e)
		}
	}
	return out
}

// StarExports returns the `export * from` bindings.
func (f *Facts) StarExports() []ExportBinding {
	var out []ExportBinding
	for _, e := range f.Exports {
		if e.Star {
			out = append(out, e)
		}
	}
	return out
}

// JSXWithin returns the JSX tags whose start lies inside fn.
func (f *Facts) JSXWithin(fn *FunctionInfo) []JSXElement {
	var out []JSXElement
	for _, el := range f.JSX {
		if fn.Contains(el.Offset) {
			out = append(out, el)
		}
	}
	return out
}
