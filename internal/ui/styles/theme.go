// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components for the panel.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// HEADER
	// ==========================================================================

	Header      lipgloss.Style
	HeaderBrand lipgloss.Style

	// ==========================================================================
	// TRANSCRIPT
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemText     lipgloss.Style
	ErrorText      lipgloss.Style
	StoppedText    lipgloss.Style
	Streaming      lipgloss.Style

	// ==========================================================================
	// INPUT AND STATUS
	// ==========================================================================

	Input         lipgloss.Style
	StatusBar     lipgloss.Style
	BackendCloud  lipgloss.Style
	BackendLocal  lipgloss.Style
	PausedBadge   lipgloss.Style
	PauseHint     lipgloss.Style
	StatusRefs    lipgloss.Style
	StatusMessage lipgloss.Style
	SpinnerStyle  lipgloss.Style
}

// NewTheme detects the terminal and builds the styles.
func NewTheme() *Theme {
	t := &Theme{
		IsDark:       termenv.HasDarkBackground(),
		ColorProfile: termenv.ColorProfile(),
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(SurfaceDim).
		Padding(0, 1)

	t.HeaderBrand = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.UserLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.AssistantLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.SystemText = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.ErrorText = lipgloss.NewStyle().
		Foreground(Rose).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(Rose).
		PaddingLeft(1)

	t.StoppedText = lipgloss.NewStyle().
		Foreground(Amber).
		Italic(true)

	t.Streaming = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(Purple).
		PaddingLeft(1)

	t.Input = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.StatusBar = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(SurfaceDim).
		Padding(0, 1)

	t.BackendCloud = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextInverse).
		Background(Cyan).
		Padding(0, 1)

	t.BackendLocal = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextInverse).
		Background(Emerald).
		Padding(0, 1)

	t.PausedBadge = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextInverse).
		Background(Amber).
		Padding(0, 1)

	t.PauseHint = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.StatusRefs = lipgloss.NewStyle().
		Foreground(TextPrimary)

	t.StatusMessage = lipgloss.NewStyle().
		Foreground(Amber)

	t.SpinnerStyle = lipgloss.NewStyle().
		Foreground(Purple)
}

// Backend returns the badge style for a backend name.
func (t *Theme) Backend(name string) lipgloss.Style {
	if name == "local" {
		return t.BackendLocal
	}
	return t.BackendCloud
}
