// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"time"
)

// =============================================================================
// TRANSCRIPT ENTRIES
// =============================================================================

// EntryKind distinguishes transcript entries.
type EntryKind int

const (
	EntryUser      EntryKind = iota // Text as typed
	EntryAssistant                  // Rendered answer
	EntryError                      // Rendered failure notice
	EntryNotice                     // Local status line (stopped, pinned, ...)
)

// Entry is one finalized block of the transcript.
type Entry struct {
	Kind EntryKind
	Text string
	At   time.Time
}

// =============================================================================
// PANEL SURFACE
// =============================================================================

// Panel is the rendering surface driven by the display relay. It holds the
// finalized transcript, the live streaming text and the affordance flags.
// The Model reads it on every frame.
type Panel struct {
	mu             sync.Mutex
	entries        []Entry
	live           string
	busy           bool
	pauseAvailable bool
	paused         bool
	version        uint64
}

// NewPanel returns an empty panel.
func NewPanel() *Panel {
	return &Panel{}
}

// Stream implements relay.Surface.
func (p *Panel) Stream(rendered string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live = rendered
	p.version++
}

// Finalize implements relay.Surface. The live text is replaced by the
// finished rendering.
func (p *Panel) Finalize(rendered string, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kind := EntryAssistant
	if failed {
		kind = EntryError
	}
	p.live = ""
	p.entries = append(p.entries, Entry{Kind: kind, Text: rendered, At: time.Now()})
	p.version++
}

// Clear implements relay.Surface.
func (p *Panel) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live = ""
	p.version++
}

// SetBusy implements relay.Surface.
func (p *Panel) SetBusy(busy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy = busy
	p.version++
}

// SetPauseAvailable implements relay.Surface.
func (p *Panel) SetPauseAvailable(available bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauseAvailable = available
	p.version++
}

// SetPaused implements relay.Surface.
func (p *Panel) SetPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = paused
	p.version++
}

// AddUser appends a user prompt.
func (p *Panel) AddUser(text string) {
	p.add(EntryUser, text)
}

// AddNotice appends a local status line.
func (p *Panel) AddNotice(text string) {
	p.add(EntryNotice, text)
}

func (p *Panel) add(kind EntryKind, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, Entry{Kind: kind, Text: text, At: time.Now()})
	p.version++
}

// Reset empties the transcript.
func (p *Panel) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = nil
	p.live = ""
	p.version++
}

// Entries returns a copy of the transcript.
func (p *Panel) Entries() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Live returns the in-progress rendering.
func (p *Panel) Live() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// Busy reports whether an answer is in progress.
func (p *Panel) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// PauseAvailable reports whether the pause affordance is shown.
func (p *Panel) PauseAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pauseAvailable
}

// Paused reports whether rendering is paused.
func (p *Panel) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Version increases on every change.
func (p *Panel) Version() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}
