// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the identity of the live request.
//
// A Controller runs at most one session at a time. Start mints the session ID
// and installs it in the active slot before any network work begins, so every
// event that later arrives can be checked against it. Events for any other ID
// are dropped: that single guard is what keeps a superseded or cancelled
// request from touching history or the display.
//
// # Lifecycle
//
//	pending -> streaming -> {paused} -> completed | cancelled
//
// Transitions are looked up in one table (see state.go); an event with no
// entry for the current state is ignored.
//
// # Threading
//
// Transport work happens on a pump goroutine per session. The pump never
// touches controller state: it hands each event to the Dispatcher. The TUI
// dispatcher forwards events into the Bubble Tea loop so every handler runs
// on the Update goroutine; the default dispatcher applies them inline under
// the controller lock.
package session
