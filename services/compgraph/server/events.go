// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/workspace"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// subscriberBuffer is the number of events queued per subscriber before
// new events are dropped for it.
const subscriberBuffer = 16

const eventWriteTimeout = 10 * time.Second

// RebuildEvent is pushed to /v1/components/events subscribers after every
// rebuild attempt.
type RebuildEvent struct {
	RunID      string `json:"run_id"`
	Components int    `json:"components"`
	Edges      int    `json:"edges"`
	FileErrors int    `json:"file_errors"`

	// Error is set when the rebuild was abandoned and the previous
	// registry is still served.
	Error string `json:"error,omitempty"`

	TimeMilli int64 `json:"time_milli"`
}

// NewRebuildEvent summarizes a rebuild for subscribers.
func NewRebuildEvent(result *workspace.RunResult, err error) RebuildEvent {
	ev := RebuildEvent{TimeMilli: time.Now().UnixMilli()}
	if result != nil {
		ev.RunID = result.RunID
		ev.Components = result.Stats.RegistryComponents
		ev.Edges = result.Stats.RegistryEdges
		ev.FileErrors = len(result.FileErrors)
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// EventHub fans rebuild events out to websocket subscribers.
//
// Thread Safety:
//
//	Safe for concurrent use. Publish never blocks; a subscriber that falls
//	behind loses events rather than stalling the watcher.
type EventHub struct {
	mu   sync.Mutex
	subs map[chan RebuildEvent]struct{}
}

// NewEventHub creates an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[chan RebuildEvent]struct{})}
}

// Publish delivers ev to every subscriber with room in its queue.
func (h *EventHub) Publish(ev RebuildEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *EventHub) subscribe() (<-chan RebuildEvent, func()) {
	ch := make(chan RebuildEvent, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// HandleEvents handles GET /v1/components/events.
//
// Description:
//
//	Upgrades to a websocket and writes one JSON RebuildEvent per rebuild
//	until the client disconnects. Messages sent by the client are read
//	and discarded.
//
// Response:
//
//	101 Switching Protocols
//	503 Service Unavailable: No event hub configured
func (s *Server) HandleEvents(c *gin.Context) {
	if s.events == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "rebuild events not configured", Code: "EVENTS_NOT_AVAILABLE"})
		return
	}
	logger := s.requestLogger(c, "HandleEvents")

	// Subscribe before upgrading so no event published after the
	// handshake completes is missed.
	events, unsubscribe := s.events.subscribe()
	defer unsubscribe()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			_ = ws.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := ws.WriteJSON(ev); err != nil {
				logger.Debug("event subscriber gone", slog.String("error", err.Error()))
				return
			}
		}
	}
}
