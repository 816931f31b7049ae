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
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Parser defines the contract for turning source files into Facts.
//
// Description:
//
//	Parser implementations extract scopes, declarations, exports and JSX
//	from one source file. Parsing is error-tolerant: syntax errors are
//	reported in Facts.Errors and partial facts are returned.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use.
type Parser interface {
	// Parse extracts facts from content. filePath is used for locations
	// and grammar selection.
	Parse(ctx context.Context, content []byte, filePath string) (*Facts, error)

	// Language returns the canonical language name.
	Language() string

	// Extensions returns the file extensions handled, with leading dot.
	Extensions() []string
}

// ParserRegistry manages parser instances by language and file extension.
//
// Thread Safety:
//
//	ParserRegistry is fully thread-safe. Registration uses write locks,
//	lookups use read locks.
type ParserRegistry struct {
	mu          sync.RWMutex
	byLanguage  map[string]Parser
	byExtension map[string]Parser
}

// NewParserRegistry creates a new empty ParserRegistry.
func NewParserRegistry() *ParserRegistry {
	return &ParserRegistry{
		byLanguage:  make(map[string]Parser),
		byExtension: make(map[string]Parser),
	}
}

// DefaultRegistry returns a registry with the TypeScript and JavaScript
// parsers registered.
func DefaultRegistry(opts ...SourceParserOption) *ParserRegistry {
	r := NewParserRegistry()
	r.Register(NewTypeScriptParser(opts...))
	r.Register(NewJavaScriptParser(opts...))
	return r
}

// Register adds a parser under its Language() and all its Extensions().
// Existing registrations are overwritten.
func (r *ParserRegistry) Register(parser Parser) {
	if parser == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byLanguage[parser.Language()] = parser
	for _, ext := range parser.Extensions() {
		r.byExtension[ext] = parser
	}
}

// GetByLanguage returns the parser for the given language name.
func (r *ParserRegistry) GetByLanguage(language string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parser, ok := r.byLanguage[language]
	return parser, ok
}

// GetByExtension returns the parser for the given file extension.
func (r *ParserRegistry) GetByExtension(ext string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parser, ok := r.byExtension[ext]
	return parser, ok
}

// ParserFor returns the parser for filePath.
//
// Declaration files (.d.ts) carry no component bodies and never match.
func (r *ParserRegistry) ParserFor(filePath string) (Parser, bool) {
	if IsDeclarationFile(filePath) {
		return nil, false
	}
	return r.GetByExtension(strings.ToLower(filepath.Ext(filePath)))
}

// Languages returns the registered language names, sorted.
func (r *ParserRegistry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	languages := make([]string, 0, len(r.byLanguage))
	for lang := range r.byLanguage {
		languages = append(languages, lang)
	}
	sort.Strings(languages)
	return languages
}

// Extensions returns the registered file extensions, sorted.
func (r *ParserRegistry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	extensions := make([]string, 0, len(r.byExtension))
	for ext := range r.byExtension {
		extensions = append(extensions, ext)
	}
	sort.Strings(extensions)
	return extensions
}

// IsDeclarationFile reports whether path is a TypeScript declaration file.
func IsDeclarationFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".d.ts") ||
		strings.HasSuffix(lower, ".d.mts") ||
		strings.HasSuffix(lower, ".d.cts")
}
