// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrComponentNotFound indicates an id that is not in the registry.
	ErrComponentNotFound = errors.New("component not found")

	// ErrInvalidComponent indicates a node that fails validation.
	ErrInvalidComponent = errors.New("invalid component")

	// ErrMaxComponentsExceeded indicates the registry is at capacity.
	ErrMaxComponentsExceeded = errors.New("maximum component count exceeded")

	// ErrIndexInconsistent indicates Validate found a broken invariant.
	ErrIndexInconsistent = errors.New("registry index inconsistent")

	// ErrUnsupportedSchema indicates a serialized registry of another
	// schema version.
	ErrUnsupportedSchema = errors.New("unsupported schema version")

	// ErrSnapshotNotFound indicates an unknown snapshot id or project.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// InvariantViolationError reports a dependency rejected because an
// endpoint does not exist. The registry is unchanged when it is returned.
type InvariantViolationError struct {
	// From and To are the requested edge endpoints.
	From string
	To   string

	// Missing lists the endpoint ids that do not exist.
	Missing []string
}

// Error implements error.
func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("dependency %s -> %s rejected: missing %s", e.From, e.To, strings.Join(e.Missing, ", "))
}

// Unwrap returns ErrComponentNotFound.
func (e *InvariantViolationError) Unwrap() error {
	return ErrComponentNotFound
}
