// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast turns JavaScript and TypeScript source files into semantic facts.
//
// The facts are the minimum needed to follow component references across a
// code base: the lexical scope tree, every declaration with the shape of its
// initializer, module imports and exports, interface and object type members,
// and every JSX element together with the scope it appears in.
//
// Parsing is delegated to tree-sitter. Each Parse call builds its own parser
// instance, so a single Parser value is safe for concurrent use.
package ast

import (
	"errors"
	"fmt"
)

// Sentinel errors for common parse failure conditions.
//
// These errors can be checked using errors.Is() to determine the
// category of failure without inspecting error messages.
var (
	// ErrUnsupportedLanguage indicates that no parser is available for the
	// requested language or file extension.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrParseFailed indicates that parsing failed completely and no
	// useful result could be produced.
	//
	// This is different from partial parse failures, which are reported
	// in Facts.Errors while still returning the extracted facts.
	ErrParseFailed = errors.New("parse failed")

	// ErrInvalidContent indicates that the provided content is not valid
	// UTF-8 or is otherwise unusable.
	ErrInvalidContent = errors.New("invalid content")

	// ErrFileTooLarge indicates the content exceeds the parser size limit.
	ErrFileTooLarge = errors.New("file too large")
)

// ParseError provides detailed information about a parse failure.
//
// ParseError wraps an underlying error with additional context about
// where the error occurred in the source file. It can be unwrapped to
// access the underlying cause.
//
// Example:
//
//	facts, err := parser.Parse(ctx, content, "src/App.tsx")
//	if err != nil {
//	    var parseErr *ParseError
//	    if errors.As(err, &parseErr) {
//	        fmt.Printf("Error at %s:%d: %s\n", parseErr.FilePath, parseErr.Line, parseErr.Message)
//	    }
//	}
type ParseError struct {
	// FilePath is the path to the file where the error occurred.
	FilePath string

	// Line is the 1-indexed line number where the error occurred.
	// May be 0 if the error is not associated with a specific line.
	Line int

	// Column is the 0-indexed column where the error occurred.
	Column int

	// Message describes the error in human-readable form.
	Message string

	// Cause is the underlying error that triggered this parse error.
	Cause error
}

// Error returns a formatted error message including file location.
func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.FilePath, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.FilePath, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// WrapParseError wraps err as a ParseError for filePath.
//
// Returns nil when err is nil. The returned error matches ErrParseFailed
// via errors.Is when err itself does not carry a more specific sentinel.
func WrapParseError(filePath string, err error) error {
	if err == nil {
		return nil
	}
	cause := err
	if !errors.Is(err, ErrFileTooLarge) && !errors.Is(err, ErrInvalidContent) &&
		!errors.Is(err, ErrUnsupportedLanguage) && !errors.Is(err, ErrParseFailed) {
		cause = fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return &ParseError{
		FilePath: filePath,
		Message:  err.Error(),
		Cause:    cause,
	}
}
