// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single finalized turn.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Error marks a transport failure notice. Error messages are shown like
	// answers but never sent upstream or committed to history.
	Error bool `json:"error,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a finalized assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewErrorMessage creates an assistant-role failure notice tagged as an error.
func NewErrorMessage(cause string) Message {
	m := NewMessage(RoleAssistant, ErrorPrefix+cause)
	m.Error = true
	return m
}

// ErrorPrefix starts the content of every failure notice.
const ErrorPrefix = "request failed: "

// Wire is the role/content pair sent to chat backends.
type Wire struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToWire strips local-only fields.
func (m Message) ToWire() Wire {
	return Wire{Role: string(m.Role), Content: m.Content}
}
