// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

// =============================================================================
// STATUS
// =============================================================================

// Status is the lifecycle position of a session.
type Status int

const (
	StatusPending Status = iota
	StatusStreaming
	StatusPaused
	StatusCompleted
	StatusCancelled
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusStreaming:
		return "streaming"
	case StatusPaused:
		return "paused"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Active reports whether the session still occupies the active slot.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusStreaming || s == StatusPaused
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// trigger is an input to the state machine.
type trigger int

const (
	onDelta trigger = iota
	onComplete
	onFailure
	onCancel
	onPause
	onResume
)

func (t trigger) String() string {
	return [...]string{"delta", "complete", "failure", "cancel", "pause", "resume"}[t]
}

// transitions lists every legal (state, trigger) pair. Terminal states have
// no row, so nothing moves them.
var transitions = map[Status]map[trigger]Status{
	StatusPending: {
		onDelta:    StatusStreaming,
		onComplete: StatusCompleted,
		onFailure:  StatusCompleted,
		onCancel:   StatusCancelled,
		onPause:    StatusPaused,
	},
	StatusStreaming: {
		onDelta:    StatusStreaming,
		onComplete: StatusCompleted,
		onFailure:  StatusCompleted,
		onCancel:   StatusCancelled,
		onPause:    StatusPaused,
	},
	StatusPaused: {
		onDelta:    StatusPaused,
		onComplete: StatusCompleted,
		onFailure:  StatusCompleted,
		onCancel:   StatusCancelled,
		onResume:   StatusStreaming,
	},
}

// next returns the state after t, or false when t is not legal in s.
func next(s Status, t trigger) (Status, bool) {
	row, ok := transitions[s]
	if !ok {
		return s, false
	}
	to, ok := row[t]
	if !ok {
		return s, false
	}
	return to, true
}
