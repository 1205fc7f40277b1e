// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "sync"

// DefaultSystemPrompt opens every chat request.
const DefaultSystemPrompt = "You are a helpful assistant."

// History is the committed conversation. It only grows, except for an explicit
// Clear, and it never holds partial or error messages.
type History struct {
	mu       sync.RWMutex
	messages []Message
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Append commits messages in order. Error notices are dropped.
func (h *History) Append(msgs ...Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range msgs {
		if m.Error {
			continue
		}
		h.messages = append(h.messages, m)
	}
}

// Len returns the number of committed messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Snapshot returns a copy of the committed messages.
func (h *History) Snapshot() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Last returns the most recent message, if any.
func (h *History) Last() (Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.messages) == 0 {
		return Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}

// Clear drops every message.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}

// ForRequest builds the outbound message list: the system prompt followed by
// msgs, skipping error notices and system messages already present.
func ForRequest(system string, msgs []Message) []Wire {
	out := make([]Wire, 0, len(msgs)+1)
	if system != "" {
		out = append(out, Wire{Role: string(RoleSystem), Content: system})
	}
	for _, m := range msgs {
		if m.Error || m.Role == RoleSystem {
			continue
		}
		out = append(out, m.ToWire())
	}
	return out
}
