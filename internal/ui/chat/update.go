// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/relaychat/internal/backend"
	"github.com/jeranaias/relaychat/internal/handoff"
	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/refs"
	"github.com/jeranaias/relaychat/internal/session"
	"github.com/jeranaias/relaychat/internal/workspace"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.ready = true

	case session.Event:
		m.deps.Controller.Handle(msg)

	case renderTickMsg:
		m.deps.Relay.Flush()
		if m.deps.Panel.Busy() {
			cmds = append(cmds, m.renderTick())
		} else {
			m.ticking = false
		}

	case spinner.TickMsg:
		if m.deps.Panel.Busy() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case workspaceMsg:
		cmds = append(cmds, m.analyzeWorkspace(msg))

	case NoticeMsg:
		m.deps.Panel.AddNotice(string(msg))

	case tea.KeyMsg:
		cmd, handled := m.handleKey(msg)
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
		if !handled {
			var inputCmd tea.Cmd
			m.input, inputCmd = m.input.Update(msg)
			cmds = append(cmds, inputCmd)
		}

	case tea.MouseMsg:
		var vpCmd tea.Cmd
		m.viewport, vpCmd = m.viewport.Update(msg)
		cmds = append(cmds, vpCmd)
	}

	m.refresh()
	return m, tea.Batch(cmds...)
}

// handleKey runs panel shortcuts. It reports false for keys that belong to
// the input box.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.deps.Controller.Dispose()
		return tea.Quit, true

	case key.Matches(msg, m.keys.Submit):
		return m.submit(), true

	case key.Matches(msg, m.keys.Stop):
		m.interrupt()
		return nil, true

	case key.Matches(msg, m.keys.Pause):
		m.togglePause()
		return nil, true

	case key.Matches(msg, m.keys.SwitchBackend):
		m.switchBackend(m.deps.Controller.Selected().Next())
		return nil, true

	case key.Matches(msg, m.keys.Copy):
		m.deliver(m.deps.Clipboard, "")
		return nil, true

	case key.Matches(msg, m.keys.Download):
		m.download()
		return nil, true

	case key.Matches(msg, m.keys.Apply):
		m.apply(m.applyPath(), 0)
		return nil, true

	case key.Matches(msg, m.keys.Clear):
		m.clearConversation()
		return nil, true

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		m.layout()
		return nil, true

	case key.Matches(msg, m.keys.PageUp, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd, true
	}
	return nil, false
}

// =============================================================================
// SUBMIT AND SESSION CONTROL
// =============================================================================

func (m *Model) submit() tea.Cmd {
	input := strings.TrimSpace(m.input.Value())
	if input == "" {
		return nil
	}
	m.input.Reset()
	m.status = ""

	if strings.HasPrefix(input, "/") {
		return m.runCommand(input)
	}
	return m.send(input)
}

// send starts a chat session for input with the current references.
func (m *Model) send(input string) tea.Cmd {
	m.interrupt()

	names := m.deps.Refs.TakeTurn()
	files, err := refs.Context(names, nil, m.opts.MaxFileSize)
	if err != nil {
		m.status = err.Error()
	}

	m.deps.Panel.AddUser(userLine(input, names))
	_, err = m.deps.Controller.Start(m.deps.Context, session.Submit{
		Input:   input,
		Context: files,
		Backend: m.deps.Controller.Selected(),
	})
	if err != nil {
		m.deps.Panel.AddNotice("not sent: " + err.Error())
		return nil
	}
	return m.startBusy()
}

func userLine(input string, names []string) string {
	if len(names) == 0 {
		return input
	}
	return fmt.Sprintf("%s\n[context: %s]", input, strings.Join(names, ", "))
}

// startBusy starts the spinner and the render tick.
func (m *Model) startBusy() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	if !m.ticking {
		m.ticking = true
		cmds = append(cmds, m.renderTick())
	}
	return tea.Batch(cmds...)
}

func (m *Model) renderTick() tea.Cmd {
	return tea.Tick(m.tickInterval, func(time.Time) tea.Msg { return renderTickMsg{} })
}

// interrupt cancels the active session and acknowledges it in the
// transcript.
func (m *Model) interrupt() {
	if m.deps.Controller.CancelActive() {
		m.deps.Panel.AddNotice("stopped")
	}
}

func (m *Model) togglePause() {
	if !m.deps.Panel.PauseAvailable() {
		return
	}
	m.deps.Controller.TogglePause()
}

func (m *Model) switchBackend(k backend.Kind) {
	m.deps.Controller.SwitchBackend(k)
	if k.Caps().Pause {
		m.status = "backend: " + k.String()
	} else {
		m.status = "backend: " + k.String() + " (single-shot, no pause)"
	}
}

func (m *Model) clearConversation() {
	m.interrupt()
	m.deps.Controller.Reset()
	m.deps.Panel.Reset()
	m.deps.Panel.AddNotice("new conversation")
}

// =============================================================================
// CODE HANDOFF
// =============================================================================

// lastBlock returns the last code block of the most recent answer.
func (m *Model) lastBlock() (handoff.Block, bool) {
	hist := m.deps.Controller.History()
	for i := len(hist) - 1; i >= 0; i-- {
		if hist[i].Role == model.RoleAssistant {
			return handoff.Last(hist[i].Content)
		}
	}
	return handoff.Block{}, false
}

func (m *Model) deliver(sink handoff.Sink, hint string) {
	b, ok := m.lastBlock()
	if !ok {
		m.status = "no code block in the last answer"
		return
	}
	result, err := sink.Deliver(b, hint)
	if err != nil {
		m.status = err.Error()
		return
	}
	m.status = result
}

func (m *Model) download() {
	b, ok := m.lastBlock()
	if !ok {
		m.status = "no code block in the last answer"
		return
	}
	m.saved++
	m.deliver(handoff.Download{Dir: m.opts.DownloadDir}, b.Suggest(m.saved))
}

// applyPath is the last /apply target, else the first pinned reference.
func (m *Model) applyPath() string {
	if m.applyTarget != "" {
		return m.applyTarget
	}
	if pinned := m.deps.Refs.Pinned(); len(pinned) > 0 {
		return pinned[0]
	}
	return ""
}

func (m *Model) apply(path string, line int) {
	m.deliver(handoff.Apply{Path: path, Line: line}, "")
}

// =============================================================================
// WORKSPACE ANALYSIS
// =============================================================================

func (m *Model) collectWorkspace(root string) tea.Cmd {
	opts := m.opts.Workspace
	m.status = "collecting sources in " + root
	return func() tea.Msg {
		files, err := workspace.Collect(root, opts)
		return workspaceMsg{root: root, files: files, err: err}
	}
}

func (m *Model) analyzeWorkspace(msg workspaceMsg) tea.Cmd {
	if msg.err != nil {
		m.deps.Panel.AddNotice("workspace: " + msg.err.Error())
		m.status = ""
		return nil
	}
	m.interrupt()
	m.deps.Panel.AddUser(fmt.Sprintf("/workspace %s (%d files)", msg.root, len(msg.files)))
	if _, err := m.deps.Controller.AnalyzeWorkspace(m.deps.Context, workspace.Concat(msg.files)); err != nil {
		m.deps.Panel.AddNotice("not sent: " + err.Error())
		return nil
	}
	m.status = ""
	return m.startBusy()
}

// =============================================================================
// LAYOUT AND REFRESH
// =============================================================================

// layout sizes the viewport and input to the window.
func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	m.input.SetWidth(m.width - 4)
	m.help.Width = m.width

	fixed := lipgloss.Height(m.renderHeader()) +
		lipgloss.Height(m.renderInput()) +
		lipgloss.Height(m.renderStatusBar())
	if m.showHelp {
		fixed += lipgloss.Height(m.help.View(m.keys))
	}
	vpHeight := m.height - fixed
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = m.width
	m.viewport.Height = vpHeight

	if m.deps.Markdown != nil {
		m.deps.Markdown.SetWidth(m.width - 4)
	}
	m.seen = 0
}

// refresh copies panel changes into the viewport, following the bottom
// unless the user scrolled up.
func (m *Model) refresh() {
	m.keys.Pause.SetEnabled(m.deps.Panel.PauseAvailable())

	v := m.deps.Panel.Version()
	if v == m.seen && m.seen != 0 {
		return
	}
	m.seen = v
	follow := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTranscript())
	if follow {
		m.viewport.GotoBottom()
	}
}
