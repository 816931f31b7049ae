// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingProjectName indicates a project root whose package.json
	// has no name. Only that project is skipped.
	ErrMissingProjectName = errors.New("project has no package name")

	// ErrDuplicateProject indicates two projects with the same name.
	ErrDuplicateProject = errors.New("duplicate project name")

	// ErrUnknownSource indicates a consumer naming a source project that
	// is not part of the run.
	ErrUnknownSource = errors.New("unknown source project")

	// ErrInvalidOverrides indicates a malformed compgraph.yaml. The project
	// is still loaded, without the overrides.
	ErrInvalidOverrides = errors.New("invalid project overrides")

	// ErrInvalidGlob indicates a malformed include, exclude or workspace
	// pattern. The pattern is dropped.
	ErrInvalidGlob = errors.New("invalid glob pattern")
)

// FileError is a file that could not be parsed or extracted. The file
// contributes nothing to the registry.
type FileError struct {
	Project  string `json:"project"`
	FilePath string `json:"file_path"`
	Err      error  `json:"-"`
}

// Error implements error.
func (e FileError) Error() string {
	return fmt.Sprintf("file %s: %v", e.FilePath, e.Err)
}

// Unwrap returns the underlying error.
func (e FileError) Unwrap() error {
	return e.Err
}

// ProjectError is a project that could not be loaded or processed.
type ProjectError struct {
	Root    string `json:"root"`
	Project string `json:"project,omitempty"`
	Err     error  `json:"-"`
}

// Error implements error.
func (e ProjectError) Error() string {
	name := e.Project
	if name == "" {
		name = e.Root
	}
	return fmt.Sprintf("project %s: %v", name, e.Err)
}

// Unwrap returns the underlying error.
func (e ProjectError) Unwrap() error {
	return e.Err
}
