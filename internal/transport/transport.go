// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/relaychat/internal/backend"
	"github.com/jeranaias/relaychat/internal/model"
)

// =============================================================================
// INTERFACES
// =============================================================================

// Request is one outbound call.
type Request struct {
	// SessionID tags logs and headers; transports never interpret it.
	SessionID string

	// Messages is the full outbound conversation, system prompt included.
	Messages []model.Wire
}

// Prompt returns the content of the last user message.
func (r *Request) Prompt() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == string(model.RoleUser) {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Event is one item of a Stream. Exactly one of Delta or Done is meaningful.
type Event struct {
	// Delta is an incremental fragment from a streaming backend.
	Delta string

	// Done marks the terminal event. Full is set when the backend answered
	// in one piece; nil means "use what was streamed".
	Done bool
	Full *string
}

// Stream is a finite, non-restartable sequence of events for one request.
type Stream interface {
	// Next blocks for the next event. It returns io.EOF after the Done
	// event or after Close, and *Error on failure.
	Next() (Event, error)

	// Close aborts the request. It is safe to call more than once and from
	// another goroutine than the one blocked in Next.
	Close() error
}

// Transport opens streams against one backend.
type Transport interface {
	Kind() backend.Kind
	Open(ctx context.Context, req *Request) (Stream, error)
}

// Registry resolves a backend selection to its transport.
type Registry map[backend.Kind]Transport

// NewRegistry indexes transports by their kind.
func NewRegistry(transports ...Transport) Registry {
	r := make(Registry, len(transports))
	for _, t := range transports {
		r[t.Kind()] = t
	}
	return r
}

// Get returns the transport for k.
func (r Registry) Get(k backend.Kind) (Transport, bool) {
	t, ok := r[k]
	return t, ok
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrTransport matches every transport failure.
	ErrTransport = errors.New("transport failure")

	// ErrNotConfigured indicates a missing API key or endpoint.
	ErrNotConfigured = errors.New("backend not configured")

	// ErrAuthFailed indicates the backend rejected the credentials.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates the backend throttled the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrEmptyResponse indicates the backend answered with nothing usable.
	ErrEmptyResponse = errors.New("empty response")
)

// Error is the single failure outcome of a transport call.
type Error struct {
	Backend backend.Kind
	Status  int    // HTTP status, 0 for network or decode failures
	Cause   string // human-readable, shown to the user
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s backend (HTTP %d): %s", e.Backend, e.Status, e.Cause)
	}
	return fmt.Sprintf("%s backend: %s", e.Backend, e.Cause)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Is makes every *Error match ErrTransport.
func (e *Error) Is(target error) bool { return target == ErrTransport }

// fail wraps err as a transport failure with the given cause.
func fail(kind backend.Kind, status int, cause string, err error) *Error {
	if cause == "" && err != nil {
		cause = err.Error()
	}
	return &Error{Backend: kind, Status: status, Cause: cause, Err: err}
}

// Cause extracts the user-facing cause of err.
func Cause(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.Cause
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
