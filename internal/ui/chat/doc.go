// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the terminal chat panel.
//
// The panel is a Bubble Tea model wrapped around a session controller. The
// display relay draws onto a Panel surface; transport events reach the
// controller through tea.Program.Send, so every handler runs on the Bubble
// Tea event loop:
//
//	panel := chat.NewPanel()
//	r := relay.New(panel, md, relay.WithRenderRate(fps))
//	ctrl := session.New(r, registry, session.DefaultConfig())
//	p := tea.NewProgram(chat.New(chat.Deps{Controller: ctrl, Relay: r, Panel: panel}, opts))
//	ctrl.SetDispatcher(func(ev session.Event) { p.Send(ev) })
//
// # Keys
//
//   - Enter: send, or run a /command
//   - Esc: stop the answer in progress
//   - Ctrl+P: pause or resume rendering (hidden when the backend cannot pause)
//   - Tab: switch backend
//   - Ctrl+Y / Ctrl+S / Ctrl+A: copy, save or apply the last code block
//   - Ctrl+L: new conversation
//   - F1: help
//   - Ctrl+C: quit
package chat
