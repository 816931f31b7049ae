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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

const (
	languageTypeScript = "typescript"
	languageJavaScript = "javascript"
)

// SourceParserOption configures a SourceParser instance.
type SourceParserOption func(*SourceParser)

// WithMaxFileSize sets the maximum file size the parser will accept.
//
// Parameters:
//   - bytes: Maximum file size in bytes. Non-positive values are ignored.
//
// Example:
//
//	parser := NewTypeScriptParser(WithMaxFileSize(5 * 1024 * 1024)) // 5MB limit
func WithMaxFileSize(bytes int64) SourceParserOption {
	return func(p *SourceParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// WithParserLogger sets the logger used for parse diagnostics.
func WithParserLogger(logger *slog.Logger) SourceParserOption {
	return func(p *SourceParser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// SourceParser implements Parser for one family of tree-sitter grammars.
//
// Description:
//
//	A TypeScript SourceParser uses the TSX grammar for .tsx files and the
//	TypeScript grammar for the remaining TypeScript extensions. A JavaScript
//	SourceParser uses the JavaScript grammar, which accepts JSX.
//
// Thread Safety:
//
//	SourceParser instances are safe for concurrent use. Each Parse call
//	creates its own tree-sitter parser.
//
// Example:
//
//	parser := NewTypeScriptParser()
//	facts, err := parser.Parse(ctx, []byte("export const App = () => <Header />"), "src/App.tsx")
//	if err != nil {
//	    return err
//	}
//	for _, el := range facts.JSX {
//	    fmt.Println(el.Name)
//	}
type SourceParser struct {
	language    string
	extensions  []string
	maxFileSize int64
	logger      *slog.Logger
}

// NewTypeScriptParser creates a parser for .ts, .tsx, .mts and .cts files.
func NewTypeScriptParser(opts ...SourceParserOption) *SourceParser {
	return newSourceParser(languageTypeScript, []string{".ts", ".tsx", ".mts", ".cts"}, opts)
}

// NewJavaScriptParser creates a parser for .js, .jsx, .mjs and .cjs files.
func NewJavaScriptParser(opts ...SourceParserOption) *SourceParser {
	return newSourceParser(languageJavaScript, []string{".js", ".jsx", ".mjs", ".cjs"}, opts)
}

func newSourceParser(language string, extensions []string, opts []SourceParserOption) *SourceParser {
	p := &SourceParser{
		language:    language,
		extensions:  extensions,
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Language returns "typescript" or "javascript".
func (p *SourceParser) Language() string {
	return p.language
}

// Extensions returns the file extensions this parser handles.
func (p *SourceParser) Extensions() []string {
	out := make([]string, len(p.extensions))
	copy(out, p.extensions)
	return out
}

// Parse extracts facts from JavaScript or TypeScript source code.
//
// Description:
//
//	Parse runs tree-sitter over content and walks the resulting tree once,
//	building the scope tree, declarations, exports, type members and JSX
//	tags. The walk is error-tolerant: a file with syntax errors yields
//	partial facts and a note in Facts.Errors.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing and
//     periodically during the walk.
//   - content: Raw source bytes. Must be valid UTF-8.
//   - filePath: Path used for locations and grammar selection.
//
// Outputs:
//   - *Facts: Never nil on success.
//   - error: ErrFileTooLarge, ErrInvalidContent, or a context error.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (p *SourceParser) Parse(ctx context.Context, content []byte, filePath string) (*Facts, error) {
	ctx, span := startParseSpan(ctx, p.language, filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, p.language, time.Since(start), nil)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics(ctx, p.language, time.Since(start), nil)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}

	if len(content) > WarnFileSize {
		p.logger.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		recordParseMetrics(ctx, p.language, time.Since(start), nil)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)

	parser := sitter.NewParser()
	parser.SetLanguage(p.grammarFor(filePath))

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(ctx, p.language, time.Since(start), nil)
		return nil, fmt.Errorf("%w: tree-sitter: %w", ErrParseFailed, err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, p.language, time.Since(start), nil)
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	root := tree.RootNode()
	if root == nil {
		recordParseMetrics(ctx, p.language, time.Since(start), nil)
		return nil, fmt.Errorf("%w: tree-sitter returned nil root node", ErrParseFailed)
	}

	b := newFactsBuilder(content, filePath, p.language, p.logger)
	b.facts.Hash = hex.EncodeToString(hash[:])
	if root.HasError() {
		b.facts.Errors = append(b.facts.Errors, "source contains syntax errors")
	}

	if err := b.build(ctx, root); err != nil {
		recordParseMetrics(ctx, p.language, time.Since(start), nil)
		return nil, fmt.Errorf("parse canceled during walk: %w", err)
	}

	setParseSpanResult(span, b.facts)
	recordParseMetrics(ctx, p.language, time.Since(start), b.facts)

	return b.facts, nil
}

// grammarFor selects the tree-sitter grammar for filePath.
func (p *SourceParser) grammarFor(filePath string) *sitter.Language {
	if p.language == languageJavaScript {
		return javascript.GetLanguage()
	}
	if strings.HasSuffix(strings.ToLower(filePath), ".tsx") {
		return tsx.GetLanguage()
	}
	return typescript.GetLanguage()
}
