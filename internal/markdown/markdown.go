// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package markdown renders answer text for the terminal.
package markdown

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// DefaultWordWrap is the wrap width when none is configured.
const DefaultWordWrap = 80

// Options configures a Renderer.
type Options struct {
	// Style is a glamour standard style name, or "auto" to pick dark or
	// light from the terminal background.
	Style string

	// WordWrap is the wrap column. Zero uses DefaultWordWrap.
	WordWrap int
}

// Renderer converts markdown with glamour. It falls back to the raw text
// whenever glamour fails.
type Renderer struct {
	mu    sync.Mutex
	tr    *glamour.TermRenderer
	style string
	wrap  int
}

// New builds a renderer. A renderer is always returned; if glamour cannot
// be initialized it renders plain text.
func New(opts Options) *Renderer {
	r := &Renderer{}
	r.configure(opts)
	return r
}

// ResolveStyle maps "auto" (or empty) to a concrete glamour style for the
// current terminal.
func ResolveStyle(style string) string {
	if style != "" && style != "auto" {
		return style
	}
	if termenv.EnvColorProfile() == termenv.Ascii {
		return "notty"
	}
	if termenv.HasDarkBackground() {
		return "dark"
	}
	return "light"
}

func (r *Renderer) configure(opts Options) {
	wrap := opts.WordWrap
	if wrap <= 0 {
		wrap = DefaultWordWrap
	}
	style := ResolveStyle(opts.Style)

	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		tr = nil
	}

	r.mu.Lock()
	r.tr, r.style, r.wrap = tr, style, wrap
	r.mu.Unlock()
}

// SetWidth re-creates the renderer for a new wrap width.
func (r *Renderer) SetWidth(width int) {
	r.mu.Lock()
	same := width == r.wrap
	style := r.style
	r.mu.Unlock()
	if same || width <= 0 {
		return
	}
	r.configure(Options{Style: style, WordWrap: width})
}

// Style returns the resolved glamour style name.
func (r *Renderer) Style() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.style
}

// Render converts markdown to styled terminal text.
func (r *Renderer) Render(md string) string {
	if strings.TrimSpace(md) == "" {
		return md
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tr == nil {
		return md
	}
	out, err := r.tr.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}
