// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package symbols resolves identifiers to the declarations that define them.
//
// ResolveSymbol works inside one file: it walks the lexical scope chain and
// follows alias, member and destructuring chains until it reaches an import
// or a local value. Follower continues across files: it resolves import
// specifiers, follows named and star re-exports through barrel files and
// stops at the file that declares the symbol. A visited set of (file,
// symbol) pairs turns circular re-exports into errors instead of unbounded
// recursion.
package symbols

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSymbolNotFound indicates a name is not bound in scope or not
	// exported by a module.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrAliasCycle indicates a local alias chain refers back to itself.
	ErrAliasCycle = errors.New("alias cycle")

	// ErrParseFailed indicates a followed file could not be parsed.
	ErrParseFailed = errors.New("followed file could not be parsed")

	// ErrMaxDepth indicates an import chain exceeded the hop limit.
	ErrMaxDepth = errors.New("import chain too deep")
)

// CircularReexportError reports a (file, symbol) pair visited twice while
// following one import chain.
type CircularReexportError struct {
	// File is the file that was revisited.
	File string

	// Symbol is the export name requested on the second visit.
	Symbol string

	// Chain lists the "file#symbol" steps taken, in order.
	Chain []string
}

// Error implements error.
func (e *CircularReexportError) Error() string {
	if len(e.Chain) == 0 {
		return fmt.Sprintf("circular re-export of %s in %s", e.Symbol, e.File)
	}
	return fmt.Sprintf("circular re-export of %s in %s: %s", e.Symbol, e.File, strings.Join(e.Chain, " -> "))
}

// IsCircular reports whether err is, or wraps, a CircularReexportError.
func IsCircular(err error) bool {
	var circ *CircularReexportError
	return errors.As(err, &circ)
}
