// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/relaychat/internal/handoff"
	"github.com/jeranaias/relaychat/internal/markdown"
	"github.com/jeranaias/relaychat/internal/refs"
	"github.com/jeranaias/relaychat/internal/relay"
	"github.com/jeranaias/relaychat/internal/session"
	"github.com/jeranaias/relaychat/internal/ui/styles"
	"github.com/jeranaias/relaychat/internal/workspace"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Deps are the collaborators the panel drives. Controller, Relay and Panel
// must be wired together: the relay draws onto Panel and the controller
// owns the relay.
type Deps struct {
	Controller *session.Controller
	Relay      *relay.Relay
	Panel      *Panel
	Markdown   *markdown.Renderer
	Refs       *refs.Set

	// Clipboard defaults to the system clipboard.
	Clipboard handoff.Sink

	// Context is the parent of every session. Defaults to Background.
	Context context.Context
}

// Options tune the panel.
type Options struct {
	RenderFPS   int
	MaxFileSize int
	DownloadDir string
	Workspace   workspace.Options
}

// DefaultOptions returns the default panel options.
func DefaultOptions() Options {
	return Options{
		RenderFPS:   30,
		MaxFileSize: refs.DefaultMaxFileSize,
		DownloadDir: ".",
		Workspace:   workspace.DefaultOptions(),
	}
}

// =============================================================================
// MESSAGES
// =============================================================================

// NoticeMsg appends a status line to the transcript.
type NoticeMsg string

// renderTickMsg flushes renders held back by the relay's rate limit.
type renderTickMsg struct{}

// workspaceMsg carries collected sources for /workspace.
type workspaceMsg struct {
	root  string
	files []workspace.File
	err   error
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat panel.
type Model struct {
	deps Deps
	opts Options

	theme    *styles.Theme
	keys     KeyMap
	help     help.Model
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	width    int
	height   int
	ready    bool
	showHelp bool

	// seen is the last Panel version copied into the viewport.
	seen uint64

	ticking      bool
	tickInterval time.Duration

	status      string
	applyTarget string
	saved       int
}

// New creates the panel model.
func New(deps Deps, opts Options) Model {
	if deps.Panel == nil {
		deps.Panel = NewPanel()
	}
	if deps.Refs == nil {
		deps.Refs = refs.NewSet()
	}
	if deps.Clipboard == nil {
		deps.Clipboard = handoff.Clipboard{}
	}
	if deps.Context == nil {
		deps.Context = context.Background()
	}
	if opts.RenderFPS <= 0 {
		opts.RenderFPS = DefaultOptions().RenderFPS
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = refs.DefaultMaxFileSize
	}

	theme := styles.NewTheme()

	ta := textarea.New()
	ta.Placeholder = "Ask something, or /help"
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 16 * 1024
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(theme.SpinnerStyle),
	)

	keys := DefaultKeyMap()
	keys.Pause.SetEnabled(false)

	return Model{
		deps:         deps,
		opts:         opts,
		theme:        theme,
		keys:         keys,
		help:         help.New(),
		viewport:     viewport.New(0, 0),
		input:        ta,
		spinner:      sp,
		tickInterval: time.Second / time.Duration(opts.RenderFPS),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Status returns the current status-bar message.
func (m Model) Status() string {
	return m.status
}
