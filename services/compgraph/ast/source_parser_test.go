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
	"errors"
	"reflect"
	"strings"
	"testing"
)

func mustParse(t *testing.T, filePath, src string) *Facts {
	t.Helper()
	var p Parser = NewTypeScriptParser()
	if strings.HasSuffix(filePath, ".js") || strings.HasSuffix(filePath, ".jsx") {
		p = NewJavaScriptParser()
	}
	facts, err := p.Parse(context.Background(), []byte(src), filePath)
	if err != nil {
		t.Fatalf("Parse(%s) failed: %v", filePath, err)
	}
	return facts
}

func TestParse_Imports(t *testing.T) {
	src := `import React from "react";
import * as UI from "./ui";
import { Button, Card as Panel } from "@/components";
`
	facts := mustParse(t, "src/App.tsx", src)

	tests := []struct {
		local    string
		source   string
		imported string
	}{
		{"React", "react", "default"},
		{"UI", "./ui", "*"},
		{"Button", "@/components", "Button"},
		{"Panel", "@/components", "Card"},
	}
	for _, tt := range tests {
		d := facts.Module.Own(tt.local)
		if d == nil {
			t.Errorf("import %s not declared", tt.local)
			continue
		}
		if d.Kind != DeclImport {
			t.Errorf("%s kind = %v, want import", tt.local, d.Kind)
		}
		if d.ImportSource != tt.source {
			t.Errorf("%s source = %q, want %q", tt.local, d.ImportSource, tt.source)
		}
		if d.ImportedName != tt.imported {
			t.Errorf("%s imported = %q, want %q", tt.local, d.ImportedName, tt.imported)
		}
	}
	if facts.Module.Own("Card") != nil {
		t.Error("renamed import should bind the alias, not the original name")
	}
}

func TestParse_ExportForms(t *testing.T) {
	src := `export { Button } from "./Button";
export { default as Card, Title as Heading } from "./Card";
export * from "./forms";
export * as icons from "./icons";
const Local = () => null;
export { Local as Public };
export function Header() { return null; }
export const Footer = () => null;
`
	facts := mustParse(t, "src/index.tsx", src)

	find := func(name string) *ExportBinding {
		for i := range facts.Exports {
			if facts.Exports[i].Exported == name && !facts.Exports[i].Star {
				return &facts.Exports[i]
			}
		}
		return nil
	}

	if e := find("Button"); e == nil || e.Source != "./Button" || e.Imported != "Button" {
		t.Errorf("Button re-export = %+v", e)
	}
	if e := find("Card"); e == nil || e.Imported != "default" || e.Source != "./Card" {
		t.Errorf("Card re-export = %+v", e)
	}
	if e := find("Heading"); e == nil || e.Imported != "Title" {
		t.Errorf("Heading re-export = %+v", e)
	}
	if e := find("icons"); e == nil || !e.Namespace || e.Source != "./icons" {
		t.Errorf("icons namespace export = %+v", e)
	}
	if e := find("Public"); e == nil || e.Local != "Local" || e.IsReexport() {
		t.Errorf("Public local export = %+v", e)
	}
	if e := find("Header"); e == nil || e.Local != "Header" {
		t.Errorf("Header export = %+v", e)
	}
	if e := find("Footer"); e == nil || e.Local != "Footer" {
		t.Errorf("Footer export = %+v", e)
	}

	stars := facts.StarExports()
	if len(stars) != 1 || stars[0].Source != "./forms" {
		t.Errorf("star exports = %+v, want one from ./forms", stars)
	}
}

func TestParse_DefaultExports(t *testing.T) {
	t.Run("named function", func(t *testing.T) {
		facts := mustParse(t, "a.tsx", `export default function Page() { return <div />; }`)
		e := facts.ExportsNamed("default")
		if len(e) != 1 || e[0].Local != "Page" {
			t.Fatalf("default export = %+v, want local Page", e)
		}
		if d := facts.Module.Own("Page"); d == nil || d.Kind != DeclFunction || d.Function == nil {
			t.Errorf("Page declaration = %+v", d)
		}
	})

	t.Run("identifier", func(t *testing.T) {
		facts := mustParse(t, "b.tsx", "const Page = () => null;\nexport default Page;\n")
		e := facts.ExportsNamed("default")
		if len(e) != 1 || e[0].Local != "Page" {
			t.Fatalf("default export = %+v, want local Page", e)
		}
	})

	t.Run("call expression", func(t *testing.T) {
		facts := mustParse(t, "c.tsx", "const Page = () => null;\nexport default memo(Page);\n")
		e := facts.ExportsNamed("default")
		if len(e) != 1 || e[0].Local != "default" {
			t.Fatalf("default export = %+v, want synthetic local", e)
		}
		d := facts.Module.Own("default")
		if d == nil || d.Init != InitOther || !d.IsTerminal() {
			t.Errorf("synthetic default = %+v, want terminal other value", d)
		}
	})
}

func TestParse_VariableInitializers(t *testing.T) {
	src := `import * as NS from "./ns";
const A = B;
const M = NS.Inner.Button;
const { C, d: D, e: { F } } = NS;
const [G] = list;
const H = () => <div />;
const I = useThing();
const J = (K as any);
`
	facts := mustParse(t, "src/vars.tsx", src)

	tests := []struct {
		name     string
		init     InitKind
		initName string
		path     []string
	}{
		{"A", InitIdentifier, "B", nil},
		{"M", InitMember, "NS", []string{"Inner", "Button"}},
		{"C", InitDestructure, "NS", []string{"C"}},
		{"D", InitDestructure, "NS", []string{"d"}},
		{"F", InitDestructure, "NS", []string{"e", "F"}},
		{"G", InitDestructure, "list", nil},
		{"H", InitFunction, "", nil},
		{"I", InitOther, "", nil},
		{"J", InitIdentifier, "K", nil},
	}
	for _, tt := range tests {
		d := facts.Module.Own(tt.name)
		if d == nil {
			t.Errorf("%s not declared", tt.name)
			continue
		}
		if d.Init != tt.init {
			t.Errorf("%s init = %v, want %v", tt.name, d.Init, tt.init)
		}
		if d.InitName != tt.initName {
			t.Errorf("%s init name = %q, want %q", tt.name, d.InitName, tt.initName)
		}
		if len(d.InitPath) != len(tt.path) || (len(tt.path) > 0 && !reflect.DeepEqual(d.InitPath, tt.path)) {
			t.Errorf("%s init path = %v, want %v", tt.name, d.InitPath, tt.path)
		}
	}
	if facts.Module.Own("H").Function == nil {
		t.Error("H should carry function info")
	}
}

func TestParse_ScopeShadowing(t *testing.T) {
	src := `import { Button } from "./Button";
export function Page() {
  const Button = () => <span />;
  return <Button />;
}
export function Other() {
  return <Button />;
}
`
	facts := mustParse(t, "src/Page.tsx", src)

	var inPage, inOther *JSXElement
	for i := range facts.JSX {
		el := &facts.JSX[i]
		if el.Name != "Button" {
			continue
		}
		if inPage == nil {
			inPage = el
		} else {
			inOther = el
		}
	}
	if inPage == nil || inOther == nil {
		t.Fatalf("expected two Button usages, got %d JSX tags", len(facts.JSX))
	}

	if d := inPage.Scope.Lookup("Button"); d == nil || d.Kind != DeclVariable {
		t.Errorf("Button inside Page resolved to %+v, want local variable", d)
	}
	if d := inOther.Scope.Lookup("Button"); d == nil || d.Kind != DeclImport {
		t.Errorf("Button inside Other resolved to %+v, want import", d)
	}

	imported := facts.Lookup(nil, "Button")
	if refs := facts.References(imported); len(refs) != 1 || refs[0].Offset != inOther.Offset {
		t.Errorf("References(import Button) = %d tags, want only the one in Other", len(refs))
	}
}

func TestParse_VarHoistsToFunctionScope(t *testing.T) {
	src := `function f() {
  if (x) {
    var A = 1;
    let B = 2;
  }
}
`
	facts := mustParse(t, "a.js", src)
	f := facts.Module.Own("f")
	if f == nil || f.Function == nil {
		t.Fatal("function f not declared")
	}

	var fnScope *Scope
	for _, s := range facts.Scopes {
		if s.Kind == ScopeFunction && s.StartByte == f.Function.StartByte {
			fnScope = s
		}
	}
	if fnScope == nil {
		t.Fatal("function scope not found")
	}
	if fnScope.Own("A") == nil {
		t.Error("var A should be declared in the function scope")
	}
	if fnScope.Own("B") != nil {
		t.Error("let B should stay in the block scope")
	}
}

func TestParse_JSXTags(t *testing.T) {
	src := `export const App = (props) => (
  <>
    <UI.Button label="x" onClick={go} {...props} />
    <Card title="t"><div className="c" /></Card>
  </>
);
`
	facts := mustParse(t, "src/App.jsx", src)

	names := make([]string, 0, len(facts.JSX))
	for _, el := range facts.JSX {
		names = append(names, el.Name)
	}
	want := []string{"UI.Button", "Card", "div"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("JSX names = %v, want %v", names, want)
	}

	button := facts.JSX[0]
	if len(button.Attributes) != 3 {
		t.Fatalf("button attributes = %+v, want 3", button.Attributes)
	}
	if button.Attributes[0].Name != "label" || button.Attributes[1].Name != "onClick" {
		t.Errorf("button attribute names = %+v", button.Attributes)
	}
	if !button.Attributes[2].Spread {
		t.Error("third attribute should be a spread")
	}

	app := facts.Module.Own("App")
	if app == nil || app.Function == nil {
		t.Fatal("App should be a function-initialized variable")
	}
	if got := len(facts.JSXWithin(app.Function)); got != 3 {
		t.Errorf("JSXWithin(App) = %d, want 3", got)
	}
}

func TestParse_ComponentShapes(t *testing.T) {
	src := `import React, { FC } from "react";
interface ButtonProps { label: string; size?: number; onClick(): void }
type CardProps = { title: string } & { footer: string };
export const Button: React.FC<ButtonProps> = ({ label, size = 1 }) => <button>{label}</button>;
export function Card({ title, ...rest }: CardProps) { return <div>{title}</div>; }
`
	facts := mustParse(t, "src/ui.tsx", src)

	if got := facts.TypeMembers["ButtonProps"]; !reflect.DeepEqual(got, []string{"label", "size", "onClick"}) {
		t.Errorf("ButtonProps members = %v", got)
	}
	if got := facts.TypeMembers["CardProps"]; !reflect.DeepEqual(got, []string{"title", "footer"}) {
		t.Errorf("CardProps members = %v", got)
	}

	button := facts.Module.Own("Button")
	if button == nil {
		t.Fatal("Button not declared")
	}
	if button.TypeAnnotation != "React.FC<ButtonProps>" {
		t.Errorf("Button annotation = %q", button.TypeAnnotation)
	}
	if button.Function == nil || !reflect.DeepEqual(button.Function.ParamKeys, []string{"label", "size"}) {
		t.Errorf("Button param keys = %+v", button.Function)
	}

	card := facts.Module.Own("Card")
	if card == nil || card.Function == nil {
		t.Fatal("Card not declared as function")
	}
	if card.Function.ParamType != "CardProps" {
		t.Errorf("Card param type = %q, want CardProps", card.Function.ParamType)
	}
	if !reflect.DeepEqual(card.Function.ParamKeys, []string{"title"}) {
		t.Errorf("Card param keys = %v, want [title]", card.Function.ParamKeys)
	}
}

func TestParse_SyntaxErrorsArePartial(t *testing.T) {
	src := "export const Ok = () => <div />;\nconst = = ;\n"
	facts := mustParse(t, "broken.tsx", src)
	if len(facts.Errors) == 0 {
		t.Error("expected a syntax error note")
	}
	if facts.Module.Own("Ok") == nil {
		t.Error("declarations before the error should survive")
	}
}

func TestParse_Rejections(t *testing.T) {
	p := NewTypeScriptParser(WithMaxFileSize(8))
	_, err := p.Parse(context.Background(), []byte("const a = 1; const b = 2;"), "big.ts")
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("large file error = %v, want ErrFileTooLarge", err)
	}

	_, err = NewTypeScriptParser().Parse(context.Background(), []byte{0xff, 0xfe}, "bad.ts")
	if !errors.Is(err, ErrInvalidContent) {
		t.Errorf("invalid UTF-8 error = %v, want ErrInvalidContent", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewTypeScriptParser().Parse(ctx, []byte("const a = 1;"), "a.ts"); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled parse error = %v, want context.Canceled", err)
	}
}

func TestParserRegistry(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		path     string
		language string
		ok       bool
	}{
		{"src/App.tsx", "typescript", true},
		{"src/util.mts", "typescript", true},
		{"src/App.jsx", "javascript", true},
		{"src/legacy.cjs", "javascript", true},
		{"src/types.d.ts", "", false},
		{"src/App.vue", "", false},
	}
	for _, tt := range tests {
		p, ok := r.ParserFor(tt.path)
		if ok != tt.ok {
			t.Errorf("ParserFor(%s) ok = %v, want %v", tt.path, ok, tt.ok)
			continue
		}
		if ok && p.Language() != tt.language {
			t.Errorf("ParserFor(%s) = %s, want %s", tt.path, p.Language(), tt.language)
		}
	}

	if got := r.Languages(); !reflect.DeepEqual(got, []string{"javascript", "typescript"}) {
		t.Errorf("Languages() = %v", got)
	}
}

func TestWrapParseError(t *testing.T) {
	if WrapParseError("a.ts", nil) != nil {
		t.Error("nil error should stay nil")
	}

	err := WrapParseError("a.ts", errors.New("boom"))
	var pe *ParseError
	if !errors.As(err, &pe) || pe.FilePath != "a.ts" {
		t.Fatalf("WrapParseError = %v, want *ParseError", err)
	}
	if !errors.Is(err, ErrParseFailed) {
		t.Error("wrapped error should match ErrParseFailed")
	}

	err = WrapParseError("b.ts", ErrFileTooLarge)
	if !errors.Is(err, ErrFileTooLarge) || errors.Is(err, ErrParseFailed) {
		t.Errorf("sentinel should be preserved as-is: %v", err)
	}
}
