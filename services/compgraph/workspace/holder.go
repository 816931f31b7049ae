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
	"sync/atomic"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/graph"
)

// RegistryHolder publishes the current registry. Rebuilds write into a
// fresh registry and swap it in, so readers never see a half-built graph.
type RegistryHolder struct {
	current atomic.Pointer[graph.ComponentRegistry]
}

// NewRegistryHolder creates a holder publishing reg.
func NewRegistryHolder(reg *graph.ComponentRegistry) *RegistryHolder {
	h := &RegistryHolder{}
	h.current.Store(reg)
	return h
}

// Get returns the current registry.
func (h *RegistryHolder) Get() *graph.ComponentRegistry {
	return h.current.Load()
}

// Swap publishes reg and returns the previous registry.
func (h *RegistryHolder) Swap(reg *graph.ComponentRegistry) *graph.ComponentRegistry {
	return h.current.Swap(reg)
}
