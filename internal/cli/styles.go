// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/relaychat/internal/ui/styles"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	welcomeStyle = lipgloss.NewStyle().
			Foreground(styles.Purple).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary)

	commandStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald)

	warningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	errorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose)
)

// painter renders styles only when the destination shows colors.
type painter struct {
	color bool
}

func newPainter(w io.Writer) painter {
	return painter{color: ColorsEnabled(w)}
}

func (p painter) paint(style lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return style.Render(text)
}
