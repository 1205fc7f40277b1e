// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/relaychat/internal/util"
)

// =============================================================================
// MAIN RENDER
// =============================================================================

// View implements tea.Model.
// Layout: header (1 line) + transcript (viewport) + input + status (1 line)
// + optional help.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	parts := []string{
		m.renderHeader(),
		m.viewport.View(),
		m.renderInput(),
		m.renderStatusBar(),
	}
	if m.showHelp {
		parts = append(parts, m.help.View(m.keys))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderHeader() string {
	title := m.theme.HeaderBrand.Render("relaychat")
	conv := m.deps.Controller.ConversationID()
	if len(conv) > 8 {
		conv = conv[:8]
	}
	line := fmt.Sprintf("%s  conversation %s", title, conv)
	return m.theme.Header.Width(m.width).MaxWidth(m.width).MaxHeight(1).Render(line)
}

func (m Model) renderInput() string {
	return m.theme.Input.Render(m.input.View())
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// renderTranscript draws the finalized entries followed by the live answer.
func (m Model) renderTranscript() string {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	wrap := lipgloss.NewStyle().Width(width - 2)

	var b strings.Builder
	for _, e := range m.deps.Panel.Entries() {
		switch e.Kind {
		case EntryUser:
			b.WriteString(m.theme.UserLabel.Render("You"))
			b.WriteString("\n")
			b.WriteString(wrap.Render(e.Text))
		case EntryAssistant:
			b.WriteString(m.theme.AssistantLabel.Render("Assistant"))
			b.WriteString("\n")
			b.WriteString(e.Text)
		case EntryError:
			b.WriteString(m.theme.ErrorText.Render(e.Text))
		case EntryNotice:
			style := m.theme.SystemText
			if e.Text == "stopped" {
				style = m.theme.StoppedText
			}
			b.WriteString(style.Render(e.Text))
		}
		b.WriteString("\n\n")
	}

	if m.deps.Panel.Busy() {
		b.WriteString(m.theme.AssistantLabel.Render("Assistant"))
		b.WriteString("\n")
		live := m.deps.Panel.Live()
		if live == "" {
			live = m.theme.SystemText.Render("waiting for response...")
		}
		b.WriteString(m.theme.Streaming.Render(live))
		if m.deps.Panel.Paused() {
			held := len(m.deps.Relay.Buffered())
			b.WriteString("\n")
			b.WriteString(m.theme.StoppedText.Render(fmt.Sprintf("paused (%d bytes held)", held)))
		}
	}
	return b.String()
}

// =============================================================================
// STATUS BAR
// =============================================================================

func (m Model) renderStatusBar() string {
	selected := m.deps.Controller.Selected().String()
	segments := []string{m.theme.Backend(selected).Render(selected)}

	switch {
	case m.deps.Panel.Paused():
		segments = append(segments, m.theme.PausedBadge.Render("PAUSED"))
	case m.deps.Panel.PauseAvailable():
		segments = append(segments, m.theme.PauseHint.Render("C-p pause"))
	}
	if m.deps.Panel.Busy() {
		segments = append(segments, m.spinner.View()+" esc stop")
	}
	if pinned := m.deps.Refs.Pinned(); len(pinned) > 0 {
		segments = append(segments, m.theme.StatusRefs.Render(util.TruncateWidth("pinned: "+strings.Join(pinned, ","), 40)))
	}
	if n := len(m.deps.Refs.Transient()); n > 0 {
		segments = append(segments, m.theme.StatusRefs.Render(fmt.Sprintf("+%d next turn", n)))
	}
	if m.status != "" {
		segments = append(segments, m.theme.StatusMessage.Render(util.TruncateWidth(m.status, 60)))
	}

	line := strings.Join(segments, "  ")
	return m.theme.StatusBar.Width(m.width).MaxWidth(m.width).MaxHeight(1).Render(line)
}
