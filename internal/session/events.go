// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies a transport-originated event.
type EventKind int

const (
	EventDelta EventKind = iota
	EventComplete
	EventFailure
	EventAborted
)

// Event is produced by a session's pump and applied through Handle. Every
// event carries the ID of the session that produced it.
type Event struct {
	SessionID string
	Kind      EventKind
	Text      string  // delta fragment
	Full      *string // single-shot answer, nil for streamed completions
	Err       error   // transport failure
}

// Dispatcher delivers pump events to the goroutine that owns the controller.
type Dispatcher func(Event)

// NewSessionID returns a timestamp-prefixed ID with a random suffix, so IDs
// sort by creation and rapid submits never collide.
func NewSessionID() string {
	u := uuid.New()
	return "s" + strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + hex.EncodeToString(u[:4])
}
