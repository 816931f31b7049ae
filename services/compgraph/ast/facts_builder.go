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
	"context"
	"log/slog"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// walkEntry is one pending node of the iterative walk.
type walkEntry struct {
	node  *sitter.Node
	scope *Scope
	depth int
}

// factsBuilder accumulates Facts while walking one tree.
//
// The walk is iterative with an explicit stack so deeply nested JSX
// cannot exhaust the goroutine stack.
type factsBuilder struct {
	content  []byte
	filePath string
	logger   *slog.Logger
	facts    *Facts
	stack    []walkEntry
}

func newFactsBuilder(content []byte, filePath, language string, logger *slog.Logger) *factsBuilder {
	return &factsBuilder{
		content:  content,
		filePath: filePath,
		logger:   logger,
		facts: &Facts{
			FilePath:     filePath,
			Language:     language,
			Scopes:       make([]*Scope, 0, 16),
			Declarations: make([]*Declaration, 0, 32),
			Exports:      make([]ExportBinding, 0, 8),
			JSX:          make([]JSXElement, 0, 16),
			TypeMembers:  make(map[string][]string),
			Errors:       make([]string, 0),
		},
		stack: make([]walkEntry, 0, 64),
	}
}

// build walks root and fills b.facts. Returns the context error if the
// walk was canceled.
func (b *factsBuilder) build(ctx context.Context, root *sitter.Node) error {
	module := b.openScope(ScopeModule, nil, root)
	b.facts.Module = module
	b.pushChildren(root, module, 0)

	nodeCount := 0
	for len(b.stack) > 0 {
		entry := b.stack[len(b.stack)-1]
		b.stack = b.stack[:len(b.stack)-1]

		if entry.node == nil {
			continue
		}
		if entry.depth > MaxWalkDepth {
			b.logger.Debug("max walk depth reached",
				slog.String("file", b.filePath),
				slog.Int("depth", entry.depth))
			continue
		}

		nodeCount++
		if nodeCount%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		b.visit(entry)
	}

	// Explicit pushes do not always follow source order.
	sort.SliceStable(b.facts.Declarations, func(i, j int) bool {
		return b.facts.Declarations[i].Offset < b.facts.Declarations[j].Offset
	})
	sort.SliceStable(b.facts.JSX, func(i, j int) bool {
		return b.facts.JSX[i].Offset < b.facts.JSX[j].Offset
	})
	return nil
}

// visit dispatches on the node type of entry.
func (b *factsBuilder) visit(e walkEntry) {
	node := e.node
	switch node.Type() {
	case nodeImportStatement:
		b.processImport(node, e.scope)

	case nodeExportStatement:
		b.processExport(node, e.scope, e.depth)

	case nodeFunctionDeclaration, nodeGeneratorFunctionDecl:
		b.processFunctionDeclaration(node, e.scope, e.depth)

	case nodeFunctionSignature, nodeInterfaceDeclaration, nodeTypeAliasDeclaration:
		b.processTypeDeclaration(node)

	case nodeFunctionExpression, nodeFunction, nodeGeneratorFunction, nodeArrowFunction, nodeMethodDefinition:
		if !node.IsNamed() {
			return
		}
		b.processFunction(node, e.scope, e.depth, true)

	case nodeClassDeclaration, nodeAbstractClassDecl:
		b.processClassDeclaration(node, e.scope, e.depth)

	case nodeClass:
		if !node.IsNamed() {
			return
		}
		classScope := b.openScope(ScopeClass, e.scope, node)
		b.pushChildren(node, classScope, e.depth)

	case nodeStatementBlock, nodeForStatement:
		block := b.openScope(ScopeBlock, e.scope, node)
		b.pushChildren(node, block, e.depth)

	case nodeForInStatement:
		block := b.openScope(ScopeBlock, e.scope, node)
		if node.ChildByFieldName("kind") != nil {
			for _, pb := range b.patternBindings(node.ChildByFieldName("left"), nil, true) {
				b.declare(block, &Declaration{
					Name:     pb.name,
					Kind:     DeclVariable,
					Init:     InitOther,
					Location: b.location(pb.node),
					Offset:   pb.node.StartByte(),
				})
			}
		}
		b.pushChildren(node, block, e.depth)

	case nodeCatchClause:
		catchScope := b.openScope(ScopeCatch, e.scope, node)
		if param := node.ChildByFieldName("parameter"); param != nil {
			for _, pb := range b.patternBindings(param, nil, false) {
				b.declare(catchScope, &Declaration{
					Name:     pb.name,
					Kind:     DeclParameter,
					Location: b.location(pb.node),
					Offset:   pb.node.StartByte(),
				})
			}
		}
		if body := node.ChildByFieldName("body"); body != nil {
			b.push(body, catchScope, e.depth)
		}

	case nodeLexicalDeclaration, nodeVariableDeclaration:
		b.processVariableDeclaration(node, e.scope, e.depth)

	case nodeJSXOpeningElement, nodeJSXSelfClosingElement:
		b.processJSXTag(node, e.scope)
		b.pushChildren(node, e.scope, e.depth)

	default:
		b.pushChildren(node, e.scope, e.depth)
	}
}

// push schedules node for visiting under scope.
func (b *factsBuilder) push(node *sitter.Node, scope *Scope, depth int) {
	if node == nil {
		return
	}
	b.stack = append(b.stack, walkEntry{node: node, scope: scope, depth: depth + 1})
}

// pushChildren schedules the children of node in source order.
func (b *factsBuilder) pushChildren(node *sitter.Node, scope *Scope, depth int) {
	for i := int(node.ChildCount()) - 1; i >= 0; i-- {
		child := node.Child(i)
		if child != nil && child.IsNamed() && child.Type() != nodeComment {
			b.stack = append(b.stack, walkEntry{node: child, scope: scope, depth: depth + 1})
		}
	}
}

// openScope creates and registers a scope spanning node.
func (b *factsBuilder) openScope(kind ScopeKind, parent *Scope, node *sitter.Node) *Scope {
	s := newScope(len(b.facts.Scopes), kind, parent, node.StartByte(), node.EndByte())
	b.facts.Scopes = append(b.facts.Scopes, s)
	return s
}

// declare binds d in scope. The first declaration of a name wins unless a
// later one carries a function body, which covers overload signatures.
func (b *factsBuilder) declare(scope *Scope, d *Declaration) {
	if d.Name == "" {
		return
	}
	d.Scope = scope
	if d.Location.FilePath == "" {
		d.Location.FilePath = b.filePath
	}
	b.facts.Declarations = append(b.facts.Declarations, d)
	if existing, ok := scope.decls[d.Name]; ok {
		if existing.Function != nil || d.Function == nil {
			return
		}
	}
	scope.decls[d.Name] = d
}

// processImport records the bindings of an import statement.
func (b *factsBuilder) processImport(node *sitter.Node, scope *Scope) {
	source := node.ChildByFieldName("source")
	if source == nil {
		source = firstChildOfType(node, nodeString)
	}
	if source == nil {
		return
	}
	spec := b.stringContent(source)

	clause := firstChildOfType(node, nodeImportClause)
	if clause == nil {
		return
	}

	for i := 0; i < int(clause.NamedChildCount()); i++ {
		child := clause.NamedChild(i)
		switch child.Type() {
		case nodeIdentifier:
			b.declare(scope, &Declaration{
				Name:         b.text(child),
				Kind:         DeclImport,
				Location:     b.location(child),
				Offset:       child.StartByte(),
				ImportSource: spec,
				ImportedName: DefaultExportName,
			})
		case nodeNamespaceImport:
			if id := firstChildOfType(child, nodeIdentifier); id != nil {
				b.declare(scope, &Declaration{
					Name:         b.text(id),
					Kind:         DeclImport,
					Location:     b.location(id),
					Offset:       id.StartByte(),
					ImportSource: spec,
					ImportedName: NamespaceImportName,
				})
			}
		case nodeNamedImports:
			for j := 0; j < int(child.NamedChildCount()); j++ {
				specNode := child.NamedChild(j)
				if specNode.Type() != nodeImportSpecifier {
					continue
				}
				imported, local := b.specifierNames(specNode)
				if local == "" {
					continue
				}
				b.declare(scope, &Declaration{
					Name:         local,
					Kind:         DeclImport,
					Location:     b.location(specNode),
					Offset:       specNode.StartByte(),
					ImportSource: spec,
					ImportedName: imported,
				})
			}
		}
	}
}

// specifierNames returns (name, alias-or-name) of an import or export
// specifier.
func (b *factsBuilder) specifierNames(node *sitter.Node) (string, string) {
	nameNode := node.ChildByFieldName("name")
	aliasNode := node.ChildByFieldName("alias")
	if nameNode == nil {
		var ids []*sitter.Node
		for i := 0; i < int(node.NamedChildCount()); i++ {
			c := node.NamedChild(i)
			if c.Type() == nodeIdentifier || c.Type() == nodeString {
				ids = append(ids, c)
			}
		}
		if len(ids) == 0 {
			return "", ""
		}
		nameNode = ids[0]
		if len(ids) > 1 {
			aliasNode = ids[1]
		}
	}
	name := b.nameText(nameNode)
	if aliasNode != nil {
		return name, b.nameText(aliasNode)
	}
	return name, name
}

// nameText returns identifier text, unquoting string module export names.
func (b *factsBuilder) nameText(node *sitter.Node) string {
	if node.Type() == nodeString {
		return b.stringContent(node)
	}
	return b.text(node)
}

// processExport records the bindings of an export statement and visits
// any declaration it wraps.
func (b *factsBuilder) processExport(node *sitter.Node, scope *Scope, depth int) {
	loc := b.location(node)

	var spec string
	source := node.ChildByFieldName("source")
	if source == nil {
		source = firstChildOfType(node, nodeString)
	}
	if source != nil {
		spec = b.stringContent(source)
	}

	isDefault := false
	isStar := false
	var namespaceName string
	var clause *sitter.Node
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case nodeDefault:
			isDefault = true
		case nodeStar:
			isStar = true
		case nodeNamespaceExport:
			for j := 0; j < int(child.NamedChildCount()); j++ {
				c := child.NamedChild(j)
				if c.Type() == nodeIdentifier || c.Type() == nodeString {
					namespaceName = b.nameText(c)
				}
			}
		case nodeExportClause:
			clause = child
		}
	}

	switch {
	case namespaceName != "" && spec != "":
		b.addExport(ExportBinding{
			Exported:  namespaceName,
			Imported:  NamespaceImportName,
			Source:    spec,
			Namespace: true,
			Location:  loc,
		})
		return
	case isStar && spec != "":
		b.addExport(ExportBinding{Star: true, Source: spec, Location: loc})
		return
	}

	if clause != nil {
		for i := 0; i < int(clause.NamedChildCount()); i++ {
			specNode := clause.NamedChild(i)
			if specNode.Type() != nodeExportSpecifier {
				continue
			}
			name, exported := b.specifierNames(specNode)
			if name == "" {
				continue
			}
			binding := ExportBinding{Exported: exported, Location: b.location(specNode)}
			if spec != "" {
				binding.Imported = name
				binding.Source = spec
			} else {
				binding.Local = name
			}
			b.addExport(binding)
		}
		return
	}

	if decl := b.exportedDeclaration(node); decl != nil {
		b.processExportedDeclaration(decl, scope, depth, isDefault, loc)
		return
	}

	value := node.ChildByFieldName("value")
	if value == nil && isDefault {
		value = lastNamedChild(node)
	}
	if value != nil && isDefault {
		b.processDefaultValue(value, scope, depth, loc)
	}
}

// exportedDeclaration returns the declaration wrapped by an export
// statement, if any.
func (b *factsBuilder) exportedDeclaration(node *sitter.Node) *sitter.Node {
	if decl := node.ChildByFieldName("declaration"); decl != nil {
		return decl
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		c := node.NamedChild(i)
		switch c.Type() {
		case nodeFunctionDeclaration, nodeGeneratorFunctionDecl, nodeClassDeclaration,
			nodeAbstractClassDecl, nodeLexicalDeclaration, nodeVariableDeclaration,
			nodeInterfaceDeclaration, nodeTypeAliasDeclaration, nodeFunctionSignature:
			return c
		}
	}
	return nil
}

func (b *factsBuilder) processExportedDeclaration(decl *sitter.Node, scope *Scope, depth int, isDefault bool, loc Location) {
	switch decl.Type() {
	case nodeFunctionDeclaration, nodeGeneratorFunctionDecl:
		d := b.processFunctionDeclaration(decl, scope, depth)
		b.exportLocal(d, isDefault, loc)
	case nodeClassDeclaration, nodeAbstractClassDecl:
		d := b.processClassDeclaration(decl, scope, depth)
		b.exportLocal(d, isDefault, loc)
	case nodeLexicalDeclaration, nodeVariableDeclaration:
		for _, d := range b.processVariableDeclaration(decl, scope, depth) {
			b.exportLocal(d, false, loc)
		}
	default:
		b.processTypeDeclaration(decl)
	}
}

func (b *factsBuilder) exportLocal(d *Declaration, isDefault bool, loc Location) {
	if d == nil {
		return
	}
	exported := d.Name
	if isDefault {
		exported = DefaultExportName
	}
	b.addExport(ExportBinding{Exported: exported, Local: d.Name, Location: loc})
}

// processDefaultValue handles `export default <expression>`.
//
// Identifiers export an existing binding. Any other expression is bound
// to a synthetic module-level declaration named "default".
func (b *factsBuilder) processDefaultValue(value *sitter.Node, scope *Scope, depth int, loc Location) {
	v := unwrapExpression(value)
	if v.Type() == nodeIdentifier {
		b.addExport(ExportBinding{Exported: DefaultExportName, Local: b.text(v), Location: loc})
		return
	}

	d := &Declaration{
		Name:     DefaultExportName,
		Kind:     DeclVariable,
		Location: b.location(v),
		Offset:   v.StartByte(),
	}
	b.classifyValue(d, v, scope, depth)
	b.declare(scope, d)
	b.addExport(ExportBinding{Exported: DefaultExportName, Local: DefaultExportName, Location: loc})
}

func (b *factsBuilder) addExport(e ExportBinding) {
	if e.Location.FilePath == "" {
		e.Location.FilePath = b.filePath
	}
	b.facts.Exports = append(b.facts.Exports, e)
}

// processFunctionDeclaration declares a named function in scope.
func (b *factsBuilder) processFunctionDeclaration(node *sitter.Node, scope *Scope, depth int) *Declaration {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		nameNode = firstChildOfType(node, nodeIdentifier)
	}
	info := b.processFunction(node, scope, depth, false)
	if nameNode == nil {
		return nil
	}
	d := &Declaration{
		Name:     b.text(nameNode),
		Kind:     DeclFunction,
		Location: b.location(node),
		Offset:   node.StartByte(),
		Function: info,
	}
	b.declare(scope, d)
	return d
}

// processFunction opens a function scope for node, declares its
// parameters and schedules its body.
//
// bindOwnName declares the name of a named function expression inside
// its own scope.
func (b *factsBuilder) processFunction(node *sitter.Node, scope *Scope, depth int, bindOwnName bool) *FunctionInfo {
	fnScope := b.openScope(ScopeFunction, scope, node)
	info := &FunctionInfo{StartByte: node.StartByte(), EndByte: node.EndByte()}

	if bindOwnName && node.Type() != nodeMethodDefinition {
		if nameNode := node.ChildByFieldName("name"); nameNode != nil && nameNode.Type() == nodeIdentifier {
			b.declare(fnScope, &Declaration{
				Name:     b.text(nameNode),
				Kind:     DeclFunction,
				Location: b.location(node),
				Offset:   node.StartByte(),
				Function: info,
			})
		}
	}

	body := node.ChildByFieldName("body")
	if body != nil {
		if body.Type() == nodeStatementBlock {
			b.pushChildren(body, fnScope, depth)
		} else {
			b.push(body, fnScope, depth)
		}
	}

	if params := node.ChildByFieldName("parameters"); params != nil {
		b.processParameters(params, fnScope, info)
		b.push(params, fnScope, depth)
	} else if param := node.ChildByFieldName("parameter"); param != nil {
		for _, pb := range b.patternBindings(param, nil, false) {
			b.declare(fnScope, &Declaration{
				Name:     pb.name,
				Kind:     DeclParameter,
				Location: b.location(pb.node),
				Offset:   pb.node.StartByte(),
			})
		}
	}

	return info
}

// processParameters declares parameter bindings and records the shape of
// the first parameter.
func (b *factsBuilder) processParameters(params *sitter.Node, fnScope *Scope, info *FunctionInfo) {
	index := 0
	for i := 0; i < int(params.NamedChildCount()); i++ {
		param := params.NamedChild(i)
		if param.Type() == nodeComment {
			continue
		}

		pattern := param
		var typeNode *sitter.Node
		if param.Type() == nodeRequiredParameter || param.Type() == nodeOptionalParameter {
			pattern = param.ChildByFieldName("pattern")
			typeNode = param.ChildByFieldName("type")
			if pattern == nil && param.NamedChildCount() > 0 {
				pattern = param.NamedChild(0)
			}
			if typeNode == nil {
				typeNode = firstChildOfType(param, nodeTypeAnnotation)
			}
		}
		if pattern == nil {
			continue
		}

		if index == 0 {
			objectPattern := pattern
			if objectPattern.Type() == nodeAssignmentPattern {
				objectPattern = objectPattern.ChildByFieldName("left")
			}
			if objectPattern != nil && objectPattern.Type() == nodeObjectPattern {
				info.ParamKeys = b.objectPatternKeys(objectPattern)
			}
			if typeNode != nil {
				info.ParamType = b.typeText(typeNode)
			}
		}
		index++

		for _, pb := range b.patternBindings(pattern, nil, false) {
			b.declare(fnScope, &Declaration{
				Name:     pb.name,
				Kind:     DeclParameter,
				Location: b.location(pb.node),
				Offset:   pb.node.StartByte(),
			})
		}
	}
}

// processClassDeclaration declares a class and schedules its body.
func (b *factsBuilder) processClassDeclaration(node *sitter.Node, scope *Scope, depth int) *Declaration {
	classScope := b.openScope(ScopeClass, scope, node)
	if body := node.ChildByFieldName("body"); body != nil {
		b.push(body, classScope, depth)
	}

	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	d := &Declaration{
		Name:     b.text(nameNode),
		Kind:     DeclClass,
		Location: b.location(node),
		Offset:   node.StartByte(),
	}
	b.declare(scope, d)
	return d
}

// processVariableDeclaration declares every binding of a let, const or
// var statement and schedules initializers for walking.
func (b *factsBuilder) processVariableDeclaration(node *sitter.Node, scope *Scope, depth int) []*Declaration {
	target := scope
	if node.Type() == nodeVariableDeclaration {
		target = scope.functionScope()
	}

	var out []*Declaration
	for i := 0; i < int(node.NamedChildCount()); i++ {
		declarator := node.NamedChild(i)
		if declarator.Type() != nodeVariableDeclarator {
			continue
		}

		nameNode := declarator.ChildByFieldName("name")
		valueNode := declarator.ChildByFieldName("value")
		typeNode := declarator.ChildByFieldName("type")
		if typeNode == nil {
			typeNode = firstChildOfType(declarator, nodeTypeAnnotation)
		}
		if nameNode == nil && declarator.NamedChildCount() > 0 {
			nameNode = declarator.NamedChild(0)
		}
		if nameNode == nil {
			continue
		}

		if nameNode.Type() == nodeIdentifier {
			d := &Declaration{
				Name:     b.text(nameNode),
				Kind:     DeclVariable,
				Location: b.location(declarator),
				Offset:   declarator.StartByte(),
			}
			if typeNode != nil {
				d.TypeAnnotation = b.typeText(typeNode)
			}
			if valueNode != nil {
				b.classifyValue(d, unwrapExpression(valueNode), scope, depth)
			}
			b.declare(target, d)
			out = append(out, d)
			continue
		}

		root, path, ok := "", []string(nil), false
		if valueNode != nil {
			root, path, ok = b.flattenMember(unwrapExpression(valueNode))
			b.push(valueNode, scope, depth)
		}
		for _, pb := range b.patternBindings(nameNode, nil, false) {
			d := &Declaration{
				Name:     pb.name,
				Kind:     DeclVariable,
				Location: b.location(pb.node),
				Offset:   pb.node.StartByte(),
				Init:     InitNone,
			}
			if valueNode != nil {
				d.Init = InitOther
			}
			if ok {
				d.Init = InitDestructure
				d.InitName = root
				d.InitPath = append(append([]string(nil), path...), pb.path...)
				if pb.inArray {
					d.InitPath = append([]string(nil), path...)
				}
			}
			b.declare(target, d)
			out = append(out, d)
		}
	}
	return out
}

// classifyValue records the initializer shape of d and schedules the
// value for walking.
func (b *factsBuilder) classifyValue(d *Declaration, value *sitter.Node, scope *Scope, depth int) {
	switch value.Type() {
	case nodeIdentifier:
		d.Init = InitIdentifier
		d.InitName = b.text(value)
	case nodeMemberExpression:
		if root, path, ok := b.flattenMember(value); ok {
			d.Init = InitMember
			d.InitName = root
			d.InitPath = path
			return
		}
		d.Init = InitOther
		b.push(value, scope, depth)
	case nodeArrowFunction, nodeFunctionExpression, nodeFunction, nodeGeneratorFunction:
		d.Init = InitFunction
		d.Function = b.processFunction(value, scope, depth, true)
	case nodeClass:
		d.Init = InitClass
		b.push(value, scope, depth)
	default:
		d.Init = InitOther
		b.push(value, scope, depth)
	}
}

// flattenMember turns `a`, `a.b` or `a.b.c` into a root and member path.
func (b *factsBuilder) flattenMember(node *sitter.Node) (string, []string, bool) {
	switch node.Type() {
	case nodeIdentifier:
		return b.text(node), nil, true
	case nodeMemberExpression:
		object := node.ChildByFieldName("object")
		property := node.ChildByFieldName("property")
		if object == nil || property == nil || property.Type() != nodePropertyIdentifier {
			return "", nil, false
		}
		root, path, ok := b.flattenMember(unwrapExpression(object))
		if !ok {
			return "", nil, false
		}
		return root, append(path, b.text(property)), true
	}
	return "", nil, false
}

// patternBinding is one name bound by a destructuring pattern.
type patternBinding struct {
	name    string
	node    *sitter.Node
	path    []string
	inArray bool
}

// patternBindings lists the names a pattern binds together with the
// property path leading to each.
func (b *factsBuilder) patternBindings(pattern *sitter.Node, prefix []string, inArray bool) []patternBinding {
	if pattern == nil {
		return nil
	}
	withKey := func(key string) []string {
		return append(append([]string(nil), prefix...), key)
	}

	switch pattern.Type() {
	case nodeIdentifier, nodeShorthandPropertyPatter:
		name := b.text(pattern)
		path := prefix
		if pattern.Type() == nodeShorthandPropertyPatter {
			path = withKey(name)
		}
		return []patternBinding{{name: name, node: pattern, path: path, inArray: inArray}}

	case nodeObjectPattern:
		var out []patternBinding
		for i := 0; i < int(pattern.NamedChildCount()); i++ {
			child := pattern.NamedChild(i)
			switch child.Type() {
			case nodeShorthandPropertyPatter:
				out = append(out, b.patternBindings(child, prefix, inArray)...)
			case nodePairPattern:
				key := child.ChildByFieldName("key")
				value := child.ChildByFieldName("value")
				if key == nil || value == nil {
					continue
				}
				out = append(out, b.patternBindings(value, withKey(b.propertyKey(key)), inArray)...)
			case nodeObjectAssignmentPattern:
				out = append(out, b.patternBindings(child.ChildByFieldName("left"), prefix, inArray)...)
			case nodeRestPattern:
				out = append(out, b.restBindings(child, prefix, inArray)...)
			}
		}
		return out

	case nodeArrayPattern:
		var out []patternBinding
		for i := 0; i < int(pattern.NamedChildCount()); i++ {
			out = append(out, b.patternBindings(pattern.NamedChild(i), prefix, true)...)
		}
		return out

	case nodeAssignmentPattern:
		return b.patternBindings(pattern.ChildByFieldName("left"), prefix, inArray)

	case nodeRestPattern:
		return b.restBindings(pattern, prefix, true)
	}
	return nil
}

func (b *factsBuilder) restBindings(rest *sitter.Node, prefix []string, inArray bool) []patternBinding {
	if rest.NamedChildCount() == 0 {
		return nil
	}
	return b.patternBindings(rest.NamedChild(0), prefix, inArray)
}

// objectPatternKeys returns the property keys destructured by pattern.
func (b *factsBuilder) objectPatternKeys(pattern *sitter.Node) []string {
	var keys []string
	for i := 0; i < int(pattern.NamedChildCount()); i++ {
		child := pattern.NamedChild(i)
		switch child.Type() {
		case nodeShorthandPropertyPatter:
			keys = append(keys, b.text(child))
		case nodePairPattern:
			if key := child.ChildByFieldName("key"); key != nil {
				keys = append(keys, b.propertyKey(key))
			}
		case nodeObjectAssignmentPattern:
			if left := child.ChildByFieldName("left"); left != nil && left.Type() == nodeShorthandPropertyPatter {
				keys = append(keys, b.text(left))
			}
		}
	}
	return keys
}

func (b *factsBuilder) propertyKey(key *sitter.Node) string {
	if key.Type() == nodeString {
		return b.stringContent(key)
	}
	return b.text(key)
}

// processTypeDeclaration records members of interfaces and object type
// aliases. Nothing inside a type declaration is walked.
func (b *factsBuilder) processTypeDeclaration(node *sitter.Node) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	var body *sitter.Node
	switch node.Type() {
	case nodeInterfaceDeclaration:
		body = node.ChildByFieldName("body")
		if body == nil {
			body = firstChildOfType(node, nodeInterfaceBody)
		}
		if body == nil {
			body = firstChildOfType(node, nodeObjectType)
		}
	case nodeTypeAliasDeclaration:
		body = node.ChildByFieldName("value")
	default:
		return
	}
	if body == nil {
		return
	}
	members := b.typeMembers(body)
	if len(members) > 0 {
		b.facts.TypeMembers[b.text(nameNode)] = members
	}
}

// typeMembers collects property names of an object type, an interface
// body or an intersection of object types.
func (b *factsBuilder) typeMembers(body *sitter.Node) []string {
	var members []string
	switch body.Type() {
	case nodeIntersectionType:
		for i := 0; i < int(body.NamedChildCount()); i++ {
			members = append(members, b.typeMembers(body.NamedChild(i))...)
		}
	case nodeObjectType, nodeInterfaceBody:
		for i := 0; i < int(body.NamedChildCount()); i++ {
			child := body.NamedChild(i)
			if child.Type() != nodePropertySignature && child.Type() != nodeMethodSignature {
				continue
			}
			if name := child.ChildByFieldName("name"); name != nil {
				members = append(members, b.propertyKey(name))
			}
		}
	}
	return members
}

// processJSXTag records an opening or self-closing tag. Fragments have no
// name and are skipped.
func (b *factsBuilder) processJSXTag(node *sitter.Node, scope *Scope) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		for i := 0; i < int(node.NamedChildCount()); i++ {
			c := node.NamedChild(i)
			switch c.Type() {
			case nodeIdentifier, nodeMemberExpression, nodeNestedIdentifier, nodeJSXNamespaceName:
				nameNode = c
			}
			if nameNode != nil {
				break
			}
		}
	}
	if nameNode == nil {
		return
	}

	el := JSXElement{
		Name:     strings.Join(strings.Fields(b.text(nameNode)), ""),
		Scope:    scope,
		Offset:   node.StartByte(),
		Location: b.location(node),
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		attr := node.NamedChild(i)
		switch attr.Type() {
		case nodeJSXAttribute:
			if attr.NamedChildCount() == 0 {
				continue
			}
			el.Attributes = append(el.Attributes, JSXAttribute{Name: b.text(attr.NamedChild(0))})
		case nodeJSXExpression:
			if firstChildOfType(attr, nodeSpreadElement) != nil {
				el.Attributes = append(el.Attributes, JSXAttribute{Spread: true})
			}
		}
	}

	b.facts.JSX = append(b.facts.JSX, el)
}

// typeText returns the annotation text without the leading colon.
func (b *factsBuilder) typeText(node *sitter.Node) string {
	t := strings.TrimSpace(b.text(node))
	return strings.TrimSpace(strings.TrimPrefix(t, ":"))
}

// stringContent extracts the content of a string literal node.
func (b *factsBuilder) stringContent(node *sitter.Node) string {
	if frag := firstChildOfType(node, nodeStringFragment); frag != nil {
		return b.text(frag)
	}
	return strings.Trim(b.text(node), "\"'`")
}

func (b *factsBuilder) text(node *sitter.Node) string {
	return string(b.content[node.StartByte():node.EndByte()])
}

func (b *factsBuilder) location(node *sitter.Node) Location {
	return Location{
		FilePath:  b.filePath,
		StartLine: int(node.StartPoint().Row + 1),
		EndLine:   int(node.EndPoint().Row + 1),
		StartCol:  int(node.StartPoint().Column),
		EndCol:    int(node.EndPoint().Column),
	}
}

// unwrapExpression strips parentheses and TypeScript-only wrappers.
func unwrapExpression(node *sitter.Node) *sitter.Node {
	for node != nil {
		switch node.Type() {
		case nodeParenthesizedExpression, nodeAsExpression, nodeSatisfiesExpression,
			nodeNonNullExpression, nodeTypeAssertion:
			inner := firstNamedNonType(node)
			if inner == nil {
				return node
			}
			node = inner
		default:
			return node
		}
	}
	return node
}

// firstNamedNonType returns the first named child that is an expression
// rather than a type.
func firstNamedNonType(node *sitter.Node) *sitter.Node {
	if node.Type() == nodeTypeAssertion {
		return lastNamedChild(node)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		c := node.NamedChild(i)
		if c.Type() != nodeComment {
			return c
		}
	}
	return nil
}

func firstChildOfType(node *sitter.Node, nodeType string) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		c := node.Child(i)
		if c != nil && c.Type() == nodeType {
			return c
		}
	}
	return nil
}

func lastNamedChild(node *sitter.Node) *sitter.Node {
	for i := int(node.NamedChildCount()) - 1; i >= 0; i-- {
		c := node.NamedChild(i)
		if c != nil && c.Type() != nodeComment {
			return c
		}
	}
	return nil
}
