// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/key"
)

// =============================================================================
// KEY MAP DEFINITION
// =============================================================================

// KeyMap defines all keyboard bindings for the panel.
type KeyMap struct {
	Submit        key.Binding
	Stop          key.Binding
	Pause         key.Binding
	SwitchBackend key.Binding
	Copy          key.Binding
	Download      key.Binding
	Apply         key.Binding
	Clear         key.Binding
	Help          key.Binding
	Quit          key.Binding
	PageUp        key.Binding
	PageDown      key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Stop: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "stop"),
		),
		Pause: key.NewBinding(
			key.WithKeys("ctrl+p"),
			key.WithHelp("C-p", "pause/resume"),
		),
		SwitchBackend: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch backend"),
		),
		Copy: key.NewBinding(
			key.WithKeys("ctrl+y"),
			key.WithHelp("C-y", "copy code"),
		),
		Download: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("C-s", "save code"),
		),
		Apply: key.NewBinding(
			key.WithKeys("ctrl+a"),
			key.WithHelp("C-a", "apply code"),
		),
		Clear: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("C-l", "new conversation"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("F1", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("C-c", "quit"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Stop, k.Pause, k.SwitchBackend, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.Stop, k.Pause, k.SwitchBackend},
		{k.Copy, k.Download, k.Apply},
		{k.Clear, k.PageUp, k.PageDown, k.Help, k.Quit},
	}
}
