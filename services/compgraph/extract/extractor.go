// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/ast"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/symbols"
	"go.opentelemetry.io/otel/codes"
)

// DefaultIgnoredTags are tag names never treated as usages.
var DefaultIgnoredTags = []string{"Fragment", "React.Fragment"}

// ImportFollower follows an import to the file that declares it.
// *symbols.Follower implements it.
type ImportFollower interface {
	FollowPath(ctx context.Context, originFile, specifier, symbol string, members []string) (symbols.Origin, error)
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithInferArrowComponents also accepts un-annotated PascalCase variables
// initialized with an arrow or function expression.
func WithInferArrowComponents(enabled bool) Option {
	return func(e *Extractor) {
		e.inferArrows = enabled
	}
}

// WithCountSpreadProps controls whether spread attributes are counted
// under SpreadPropKey. Enabled by default.
func WithCountSpreadProps(enabled bool) Option {
	return func(e *Extractor) {
		e.countSpreads = enabled
	}
}

// WithIgnoredTags replaces DefaultIgnoredTags.
func WithIgnoredTags(tags []string) Option {
	return func(e *Extractor) {
		e.ignored = make(map[string]bool, len(tags))
		for _, t := range tags {
			e.ignored[t] = true
		}
	}
}

// WithUnresolvedPolicy sets the origin policy for unresolved usages.
func WithUnresolvedPolicy(policy UnresolvedPolicy) Option {
	return func(e *Extractor) {
		e.policy = policy
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Extractor finds root components and their usages in parsed files.
//
// Thread Safety:
//
//	Safe for concurrent use when the follower is. Extract keeps all
//	per-file state local.
type Extractor struct {
	follower     ImportFollower
	inferArrows  bool
	countSpreads bool
	ignored      map[string]bool
	policy       UnresolvedPolicy
	logger       *slog.Logger
}

// NewExtractor creates an Extractor resolving imports through follower.
func NewExtractor(follower ImportFollower, opts ...Option) *Extractor {
	e := &Extractor{
		follower:     follower,
		countSpreads: true,
		policy:       UnresolvedSameFile,
		logger:       slog.Default(),
	}
	WithIgnoredTags(DefaultIgnoredTags)(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// usageKey groups repeated tags of one child inside one parent.
type usageKey struct {
	name       string
	originPath string
	originName string
}

// resolveKey memoizes resolution per reference scope and tag name.
type resolveKey struct {
	scope int
	name  string
}

// Extract returns the root components declared in facts.
//
// Description:
//
//	Each root component with a function body is scanned for JSX usages.
//	A usage is resolved from its own scope: local alias chains first, then
//	the import chain across files. Resolution failures keep the usage with
//	Resolved=false; parse failures of followed files are logged and
//	treated the same way. Tags with the same name that resolve to the
//	same origin within one component are merged and their prop counts
//	summed.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - facts: Parsed facts of the file. Must not be nil.
//   - filePath: Absolute path of the file.
//
// Outputs:
//   - []ComponentDeclaration: Components in source order.
//   - error: ErrNilFacts, or ctx.Err() if cancelled.
func (e *Extractor) Extract(ctx context.Context, facts *ast.Facts, filePath string) ([]ComponentDeclaration, error) {
	if facts == nil {
		return nil, ErrNilFacts
	}

	start := time.Now()
	ctx, span := startExtractSpan(ctx, filePath)
	defer span.End()

	exported := exportedLocals(facts)
	resolved := make(map[resolveKey]ComponentUsage)

	var decls []ComponentDeclaration
	for _, d := range facts.TopLevel() {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled")
			return nil, err
		}
		if !e.isRootComponent(d) {
			continue
		}

		decl := ComponentDeclaration{
			Name:          d.Name,
			FilePath:      filePath,
			Location:      d.Location,
			Exported:      exported[d.Name],
			DeclaredProps: declaredProps(facts, d),
		}

		if d.Function != nil {
			usages, err := e.collectUsages(ctx, facts, filePath, d.Function, resolved)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "cancelled")
				return nil, err
			}
			decl.Usages = usages
		}
		decls = append(decls, decl)
	}

	recordExtractMetrics(ctx, time.Since(start), decls)
	setExtractSpanResult(span, decls)
	return decls, nil
}

// isRootComponent applies the naming and shape rules to a top-level
// declaration.
func (e *Extractor) isRootComponent(d *ast.Declaration) bool {
	if !IsPascalCase(d.Name) {
		return false
	}
	switch d.Kind {
	case ast.DeclFunction:
		return d.Function != nil
	case ast.DeclVariable:
		if d.TypeAnnotation != "" && IsComponentType(d.TypeAnnotation) {
			return true
		}
		return e.inferArrows && d.Init == ast.InitFunction && d.TypeAnnotation == ""
	}
	return false
}

func (e *Extractor) collectUsages(ctx context.Context, facts *ast.Facts, filePath string, fn *ast.FunctionInfo, resolved map[resolveKey]ComponentUsage) ([]ComponentUsage, error) {
	var order []usageKey
	merged := make(map[usageKey]*ComponentUsage)

	for _, el := range facts.JSXWithin(fn) {
		if !isUsageTag(el.Name) || e.ignored[el.Name] {
			continue
		}

		rk := resolveKey{scope: scopeID(el.Scope), name: el.Name}
		base, ok := resolved[rk]
		if !ok {
			var err error
			base, err = e.resolveUsage(ctx, facts, filePath, el)
			if err != nil {
				return nil, err
			}
			resolved[rk] = base
		}

		key := usageKey{name: el.Name, originPath: base.OriginPath, originName: base.OriginName}
		u, seen := merged[key]
		if !seen {
			fresh := base
			fresh.Props = make(map[string]int)
			fresh.Location = el.Location
			u = &fresh
			merged[key] = u
			order = append(order, key)
		}
		u.Occurrences++
		for _, attr := range el.Attributes {
			switch {
			case attr.Spread && e.countSpreads:
				u.Props[SpreadPropKey]++
			case !attr.Spread && attr.Name != "":
				u.Props[attr.Name]++
			}
		}
	}

	usages := make([]ComponentUsage, 0, len(order))
	for _, k := range order {
		usages = append(usages, *merged[k])
	}
	return usages, nil
}

// resolveUsage determines the origin of one JSX tag. Only context errors
// are returned; every other failure degrades the usage.
func (e *Extractor) resolveUsage(ctx context.Context, facts *ast.Facts, filePath string, el ast.JSXElement) (ComponentUsage, error) {
	u := ComponentUsage{Name: el.Name}

	res, err := symbols.ResolveSymbol(facts, el.Scope, el.Name)
	if err != nil {
		return e.unresolved(u, filePath, err), nil
	}

	if res.Kind == symbols.ResolutionLocal {
		u.OriginName = res.Name
		// `const UI = { Button }` used as <UI.Button/> names Button.
		if n := len(res.MemberPath); n > 0 {
			u.OriginName = res.MemberPath[n-1]
		}
		u.OriginPath = filePath
		u.Resolved = true
		return u, nil
	}

	u.Specifier = res.Specifier
	origin, err := e.follower.FollowPath(ctx, filePath, res.Specifier, res.ImportedName, res.MemberPath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return u, ctxErr
		}
		e.logger.Debug("usage unresolved",
			slog.String("file", filePath),
			slog.String("tag", el.Name),
			slog.String("specifier", res.Specifier),
			slog.String("error", err.Error()))
		return e.unresolved(u, filePath, err), nil
	}

	u.Resolved = true
	u.OriginName = originName(origin, res, el.Name)
	u.OriginPath = origin.Path
	u.External = origin.External
	u.Package = origin.Package
	return u, nil
}

func (e *Extractor) unresolved(u ComponentUsage, filePath string, err error) ComponentUsage {
	u.Resolved = false
	u.ResolveError = err.Error()
	if e.policy == UnresolvedSameFile {
		u.OriginName = lastSegment(u.Name)
		u.OriginPath = filePath
	}
	return u
}

// originName picks the component name for a followed origin. Default
// exports and whole modules fall back to the local binding or tag name.
func originName(origin symbols.Origin, res *symbols.Resolution, tag string) string {
	if origin.Name != "" && origin.Name != ast.DefaultExportName && !origin.Namespace {
		return origin.Name
	}
	if res.ImportedName != ast.NamespaceImportName && len(res.MemberPath) == 0 {
		return res.Name
	}
	return lastSegment(tag)
}

// declaredProps collects the destructured parameter keys and the members
// of the props type when that type is declared in the same file.
func declaredProps(facts *ast.Facts, d *ast.Declaration) []string {
	set := make(map[string]struct{})

	var propsType string
	if d.Function != nil {
		for _, k := range d.Function.ParamKeys {
			set[k] = struct{}{}
		}
		if d.Function.ParamType != "" {
			propsType = typeName(d.Function.ParamType)
		}
	}
	if propsType == "" && d.TypeAnnotation != "" {
		propsType = typeName(componentPropsType(d.TypeAnnotation))
	}
	for _, m := range facts.TypeMembers[propsType] {
		set[m] = struct{}{}
	}

	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// exportedLocals returns the local names exported by the file.
func exportedLocals(facts *ast.Facts) map[string]bool {
	out := make(map[string]bool)
	for _, exp := range facts.Exports {
		if exp.Local != "" && !exp.IsReexport() {
			out[exp.Local] = true
		}
	}
	return out
}

func scopeID(s *ast.Scope) int {
	if s == nil {
		return -1
	}
	return s.ID
}
