// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package relay applies session events to a rendering surface.
//
// The relay keeps the text that is visible, re-renders it on every delta and
// supports a user pause: while paused, fragments go to a side buffer and
// nothing is rendered. Resume appends the buffer in arrival order and renders
// once. Completion replaces the live rendering with a final one built from
// the complete text.
//
// Rendering can be rate limited. Skipped renders are marked dirty and picked
// up by Flush, so the last visible frame always matches the full text.
package relay

import (
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/jeranaias/relaychat/internal/backend"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Surface is what the relay draws on.
type Surface interface {
	// Stream shows the in-progress rendering of the current answer.
	Stream(rendered string)

	// Finalize replaces the in-progress rendering with the finished answer.
	Finalize(rendered string, failed bool)

	// Clear removes any in-progress rendering.
	Clear()

	SetBusy(busy bool)
	SetPauseAvailable(available bool)
	SetPaused(paused bool)
}

// Renderer converts accumulated markdown into its displayed form.
type Renderer interface {
	Render(markdown string) string
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(string) string

// Render calls f.
func (f RendererFunc) Render(s string) string { return f(s) }

// PlainRenderer displays text unchanged.
var PlainRenderer Renderer = RendererFunc(func(s string) string { return s })

// =============================================================================
// RELAY
// =============================================================================

// Option configures a Relay.
type Option func(*Relay)

// WithRenderRate caps live renders to fps per second. Zero disables the cap.
func WithRenderRate(fps int) Option {
	return func(r *Relay) {
		if fps > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(fps), 1)
		}
	}
}

// Relay is the display side of a session.
type Relay struct {
	mu       sync.Mutex
	surface  Surface
	renderer Renderer
	limiter  *rate.Limiter

	active   bool
	pausable bool
	paused   bool
	dirty    bool
	visible  strings.Builder
	buffer   strings.Builder
	renders  int
}

// New creates a relay drawing on surface. A nil renderer shows plain text.
func New(surface Surface, renderer Renderer, opts ...Option) *Relay {
	if renderer == nil {
		renderer = PlainRenderer
	}
	r := &Relay{surface: surface, renderer: renderer}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Begin prepares for a new answer from a backend with the given capabilities.
func (r *Relay) Begin(caps backend.Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reset()
	r.active = true
	r.pausable = caps.Pause
	r.surface.SetBusy(true)
	r.surface.SetPaused(false)
	r.surface.SetPauseAvailable(caps.Pause)
}

// Delta shows a fragment, or buffers it while paused.
func (r *Relay) Delta(fragment string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return
	}
	if r.paused {
		r.buffer.WriteString(fragment)
		return
	}
	r.visible.WriteString(fragment)
	if r.limiter != nil && !r.limiter.Allow() {
		r.dirty = true
		return
	}
	r.render()
}

// Flush performs a render skipped by the rate limit.
func (r *Relay) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dirty && r.active && !r.paused {
		r.render()
	}
}

// Pause stops rendering. It returns false when nothing is streaming or the
// backend cannot pause.
func (r *Relay) Pause() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active || !r.pausable || r.paused {
		return false
	}
	if r.dirty {
		r.render()
	}
	r.paused = true
	r.surface.SetPaused(true)
	return true
}

// Resume merges the paused buffer into the visible text and renders once.
func (r *Relay) Resume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resume()
}

func (r *Relay) resume() bool {
	if !r.paused {
		return false
	}
	r.paused = false
	r.visible.WriteString(r.buffer.String())
	r.buffer.Reset()
	r.surface.SetPaused(false)
	r.render()
	return true
}

// SetCapabilities applies a backend switch. A backend that cannot pause
// forces a resume.
func (r *Relay) SetCapabilities(caps backend.Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pausable = caps.Pause
	r.surface.SetPauseAvailable(caps.Pause && r.active)
	if !caps.Pause {
		r.resume()
	}
}

// Complete shows the finished answer built from text.
func (r *Relay) Complete(text string, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reset()
	r.visible.WriteString(text)
	r.idle()
	r.renders++
	r.surface.Finalize(r.renderer.Render(text), failed)
}

// Cancel drops the in-progress rendering and returns to idle.
func (r *Relay) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	wasActive := r.active
	r.reset()
	r.idle()
	if wasActive {
		r.surface.Clear()
	}
}

// Visible returns the text currently shown (or last finalized).
func (r *Relay) Visible() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible.String()
}

// Buffered returns text held back by a pause.
func (r *Relay) Buffered() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buffer.String()
}

// Paused reports whether rendering is paused.
func (r *Relay) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// Active reports whether an answer is in progress.
func (r *Relay) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Renders returns how many times the surface was drawn.
func (r *Relay) Renders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders
}

func (r *Relay) render() {
	r.dirty = false
	r.renders++
	r.surface.Stream(r.renderer.Render(r.visible.String()))
}

func (r *Relay) reset() {
	r.active = false
	r.paused = false
	r.dirty = false
	r.visible.Reset()
	r.buffer.Reset()
}

func (r *Relay) idle() {
	r.surface.SetPaused(false)
	r.surface.SetPauseAvailable(false)
	r.surface.SetBusy(false)
}
