// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve maps module specifiers to files on disk.
//
// A Resolver understands relative and absolute paths, tsconfig/jsconfig
// path aliases and baseUrl, extension probing with the .js to .ts source
// aliasing used by TypeScript projects, directory index files, monorepo
// workspace packages and node_modules packages with their manifest entry
// points. Bare specifiers that cannot be found are reported as external
// dependencies rather than hard failures.
package resolve

import (
	"errors"
	"fmt"
)

var (
	// ErrModuleNotFound indicates no file matched a specifier.
	ErrModuleNotFound = errors.New("module not found")

	// ErrNoManifest indicates a directory has no package.json.
	ErrNoManifest = errors.New("no package manifest")

	// ErrInvalidConfig indicates a malformed tsconfig, jsconfig or package.json.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ExternalModuleError reports a bare specifier that resolved to nothing on
// disk. The package is treated as an opaque external dependency.
type ExternalModuleError struct {
	// Specifier is the specifier as written.
	Specifier string

	// Package is the package name part of the specifier.
	Package string
}

// Error implements error.
func (e *ExternalModuleError) Error() string {
	return fmt.Sprintf("external module %q (package %s)", e.Specifier, e.Package)
}

// Unwrap lets errors.Is(err, ErrModuleNotFound) match external modules.
func (e *ExternalModuleError) Unwrap() error {
	return ErrModuleNotFound
}

// IsExternal reports whether err is, or wraps, an ExternalModuleError.
func IsExternal(err error) bool {
	var ext *ExternalModuleError
	return errors.As(err, &ext)
}

// ExternalPackage returns the package name carried by an external module
// error, or "" if err is not one.
func ExternalPackage(err error) string {
	var ext *ExternalModuleError
	if errors.As(err, &ext) {
		return ext.Package
	}
	return ""
}
