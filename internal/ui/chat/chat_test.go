// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/relaychat/internal/backend"
	"github.com/jeranaias/relaychat/internal/handoff"
	"github.com/jeranaias/relaychat/internal/relay"
	"github.com/jeranaias/relaychat/internal/session"
	"github.com/jeranaias/relaychat/internal/transport"
)

// =============================================================================
// TEST TRANSPORT
// =============================================================================

type scriptStream struct {
	ctx    context.Context
	events []transport.Event
	block  bool
	closed chan struct{}
	once   sync.Once
}

func (s *scriptStream) Next() (transport.Event, error) {
	if len(s.events) > 0 {
		ev := s.events[0]
		s.events = s.events[1:]
		return ev, nil
	}
	if s.block {
		select {
		case <-s.ctx.Done():
		case <-s.closed:
		}
	}
	return transport.Event{}, io.EOF
}

func (s *scriptStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type scriptTransport struct {
	kind    backend.Kind
	events  []transport.Event
	block   bool
	openErr error

	mu   sync.Mutex
	last *transport.Request
}

func (t *scriptTransport) Kind() backend.Kind { return t.kind }

func (t *scriptTransport) Open(ctx context.Context, req *transport.Request) (transport.Stream, error) {
	t.mu.Lock()
	t.last = req
	t.mu.Unlock()
	if t.openErr != nil {
		return nil, t.openErr
	}
	events := append([]transport.Event(nil), t.events...)
	return &scriptStream{ctx: ctx, events: events, block: t.block, closed: make(chan struct{})}, nil
}

func (t *scriptTransport) request() *transport.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func deltas(parts ...string) []transport.Event {
	evs := make([]transport.Event, len(parts))
	for i, p := range parts {
		evs[i] = transport.Event{Delta: p}
	}
	return evs
}

func full(text string) []transport.Event {
	return []transport.Event{{Done: true, Full: &text}}
}

// =============================================================================
// HARNESS
// =============================================================================

type harness struct {
	t      *testing.T
	m      Model
	events chan session.Event
	clip   string
}

func newHarness(t *testing.T, cloud, local *scriptTransport) *harness {
	t.Helper()
	if cloud == nil {
		cloud = &scriptTransport{kind: backend.Cloud}
	}
	if local == nil {
		local = &scriptTransport{kind: backend.Local}
	}

	h := &harness{t: t, events: make(chan session.Event, 64)}
	panel := NewPanel()
	r := relay.New(panel, relay.PlainRenderer)
	cfg := session.DefaultConfig()
	cfg.Dispatcher = func(ev session.Event) { h.events <- ev }
	ctrl := session.New(r, transport.NewRegistry(cloud, local), cfg)
	t.Cleanup(ctrl.Dispose)

	opts := DefaultOptions()
	opts.DownloadDir = t.TempDir()
	h.m = New(Deps{
		Controller: ctrl,
		Relay:      r,
		Panel:      panel,
		Clipboard:  handoff.Clipboard{Write: func(s string) error { h.clip = s; return nil }},
	}, opts)
	h.send(tea.WindowSizeMsg{Width: 100, Height: 30})
	return h
}

func (h *harness) send(msg tea.Msg) {
	mm, _ := h.m.Update(msg)
	h.m = mm.(Model)
}

func (h *harness) key(k tea.KeyType) {
	h.send(tea.KeyMsg{Type: k})
}

func (h *harness) submit(text string) {
	h.m.input.SetValue(text)
	h.key(tea.KeyEnter)
}

// next applies one pump event.
func (h *harness) next() {
	h.t.Helper()
	select {
	case ev := <-h.events:
		h.send(ev)
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for session event")
	}
}

// drain applies whatever pump events arrive within wait. A session
// cancelled before its stream opened dispatches nothing.
func (h *harness) drain(wait time.Duration) {
	deadline := time.After(wait)
	for {
		select {
		case ev := <-h.events:
			h.send(ev)
		case <-deadline:
			return
		}
	}
}

// settle applies events until the panel is idle.
func (h *harness) settle() {
	h.t.Helper()
	for h.m.deps.Panel.Busy() {
		h.next()
	}
}

func (h *harness) lastEntry() Entry {
	entries := h.m.deps.Panel.Entries()
	require.NotEmpty(h.t, entries)
	return entries[len(entries)-1]
}

// =============================================================================
// SESSION FLOW
// =============================================================================

func TestSubmit_StreamsAndFinalizes(t *testing.T) {
	h := newHarness(t, &scriptTransport{kind: backend.Cloud, events: deltas("Hel", "lo")}, nil)

	h.submit("hi")
	assert.True(t, h.m.deps.Panel.Busy())
	assert.True(t, h.m.keys.Pause.Enabled(), "cloud answers can be paused")
	h.settle()

	entries := h.m.deps.Panel.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Kind: EntryUser, Text: "hi", At: entries[0].At}, entries[0])
	assert.Equal(t, EntryAssistant, entries[1].Kind)
	assert.Equal(t, "Hello", entries[1].Text)
	assert.Len(t, h.m.deps.Controller.History(), 2)
	assert.False(t, h.m.keys.Pause.Enabled())
	assert.Equal(t, "", h.m.input.Value())
}

func TestSubmit_LocalSingleShotHidesPause(t *testing.T) {
	h := newHarness(t, nil, &scriptTransport{kind: backend.Local, events: full("answer")})

	h.key(tea.KeyTab)
	assert.Equal(t, backend.Local, h.m.deps.Controller.Selected())
	assert.Contains(t, h.m.Status(), "no pause")

	h.submit("question")
	assert.False(t, h.m.keys.Pause.Enabled())
	h.key(tea.KeyCtrlP)
	assert.False(t, h.m.deps.Panel.Paused(), "pause is a no-op on a single-shot backend")

	h.settle()
	assert.Equal(t, "answer", h.lastEntry().Text)
}

func TestStop_AcknowledgesAndCommitsNothing(t *testing.T) {
	h := newHarness(t, &scriptTransport{kind: backend.Cloud, block: true}, nil)

	h.submit("long question")
	require.True(t, h.m.deps.Panel.Busy())

	h.key(tea.KeyEsc)
	assert.False(t, h.m.deps.Panel.Busy())
	assert.Equal(t, Entry{Kind: EntryNotice, Text: "stopped", At: h.lastEntry().At}, h.lastEntry())
	assert.Empty(t, h.m.deps.Controller.History())

	// A late pump event, if any, is stale and changes nothing.
	h.drain(100 * time.Millisecond)
	assert.Equal(t, "stopped", h.lastEntry().Text)
	assert.False(t, h.m.deps.Panel.Busy())
	assert.Empty(t, h.m.deps.Controller.History())

	h.key(tea.KeyEsc)
	entries := h.m.deps.Panel.Entries()
	assert.Equal(t, 2, len(entries), "second stop is a no-op")
}

func TestPause_HoldsAndResumesInOrder(t *testing.T) {
	cloud := &scriptTransport{kind: backend.Cloud, events: deltas("a", "b", "c"), block: true}
	h := newHarness(t, cloud, nil)

	h.submit("go")
	h.key(tea.KeyCtrlP)
	require.True(t, h.m.deps.Panel.Paused())
	assert.Contains(t, h.m.View(), "PAUSED")

	h.next()
	h.next()
	h.next()
	assert.Equal(t, "", h.m.deps.Panel.Live(), "nothing renders while paused")
	assert.Equal(t, "abc", h.m.deps.Relay.Buffered())

	h.key(tea.KeyCtrlP)
	assert.False(t, h.m.deps.Panel.Paused())
	assert.Equal(t, "abc", h.m.deps.Panel.Live())

	h.key(tea.KeyEsc)
}

func TestFailure_RendersTaggedError(t *testing.T) {
	cloud := &scriptTransport{kind: backend.Cloud, openErr: errors.New("connection refused")}
	h := newHarness(t, cloud, nil)

	h.submit("hello")
	h.settle()

	last := h.lastEntry()
	assert.Equal(t, EntryError, last.Kind)
	assert.Contains(t, last.Text, "request failed: connection refused")
	assert.Empty(t, h.m.deps.Controller.History())
}

func TestSubmit_SupersedesActiveSession(t *testing.T) {
	cloud := &scriptTransport{kind: backend.Cloud, block: true}
	h := newHarness(t, cloud, nil)

	h.submit("first")
	h.submit("second")

	var kinds []EntryKind
	for _, e := range h.m.deps.Panel.Entries() {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []EntryKind{EntryUser, EntryNotice, EntryUser}, kinds)
	assert.True(t, h.m.deps.Panel.Busy())
	h.key(tea.KeyEsc)
}

func TestSubmit_IncludesReferences(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0644))

	cloud := &scriptTransport{kind: backend.Cloud, events: deltas("ok")}
	h := newHarness(t, cloud, nil)

	h.submit("/ctx " + path)
	assert.Len(t, h.m.deps.Refs.Transient(), 1)

	h.submit("explain")
	h.settle()

	req := cloud.request()
	require.NotNil(t, req)
	assert.Contains(t, req.Prompt(), "package main")
	assert.Contains(t, req.Prompt(), "explain")
	assert.Empty(t, h.m.deps.Refs.Transient(), "transient refs apply to one turn")
}

func TestSubmit_PinnedFileSentOncePerRequest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.go")
	require.NoError(t, os.WriteFile(path, []byte("const pinnedMarker = 1\n"), 0644))

	cloud := &scriptTransport{kind: backend.Cloud, events: deltas("ok")}
	h := newHarness(t, cloud, nil)
	h.submit("/pin " + path)

	for _, q := range []string{"one", "two", "three"} {
		h.submit(q)
		h.settle()

		copies := 0
		for _, m := range cloud.request().Messages {
			copies += strings.Count(m.Content, "pinnedMarker")
		}
		assert.Equal(t, 1, copies, "request for %q", q)
	}

	for _, m := range h.m.deps.Controller.History() {
		assert.NotContains(t, m.Content, "pinnedMarker")
	}
}

func TestClear_StartsNewConversation(t *testing.T) {
	h := newHarness(t, &scriptTransport{kind: backend.Cloud, events: deltas("hi")}, nil)
	before := h.m.deps.Controller.ConversationID()

	h.submit("hello")
	h.settle()
	h.key(tea.KeyCtrlL)

	assert.Empty(t, h.m.deps.Controller.History())
	assert.NotEqual(t, before, h.m.deps.Controller.ConversationID())
	entries := h.m.deps.Panel.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "new conversation", entries[0].Text)
}

// =============================================================================
// COMMANDS
// =============================================================================

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input    string
		wantName string
		wantArgs int
	}{
		{"/pin a.go b.go", "pin", 2},
		{"/REFS", "refs", 0},
		{"/", "", 0},
		{"/apply  main.go   12", "apply", 2},
	}
	for _, tt := range tests {
		name, args := parseCommand(tt.input)
		if name != tt.wantName || len(args) != tt.wantArgs {
			t.Errorf("parseCommand(%q) = %q, %d args, want %q, %d", tt.input, name, len(args), tt.wantName, tt.wantArgs)
		}
	}
}

func TestCommands_References(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.submit("/pin a.go")
	h.submit("/pin a.go")
	h.submit("/ctx b.go")
	h.submit("/refs")

	assert.Equal(t, []string{"a.go"}, h.m.deps.Refs.Pinned())
	refsNotice := h.lastEntry().Text
	assert.Contains(t, refsNotice, "pinned: a.go")
	assert.Contains(t, refsNotice, "next turn: b.go")

	pins := 0
	for _, e := range h.m.deps.Panel.Entries() {
		if e.Text == "pinned a.go" {
			pins++
		}
	}
	assert.Equal(t, 1, pins, "pinning twice is a no-op")

	h.submit("/unpin a.go")
	assert.Empty(t, h.m.deps.Refs.Pinned())
	assert.Contains(t, h.m.View(), "+1 next turn")
}

func TestCommands_BackendAndUnknown(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.submit("/backend local")
	assert.Equal(t, backend.Local, h.m.deps.Controller.Selected())

	h.submit("/backend pigeon")
	assert.Contains(t, h.m.Status(), "unknown backend")

	h.submit("/frobnicate")
	assert.Contains(t, h.lastEntry().Text, "unknown command")

	h.submit("/help")
	assert.Contains(t, h.lastEntry().Text, "/workspace [dir]")
}

func TestCommands_Analyze(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calc.py")
	require.NoError(t, os.WriteFile(path, []byte("def add(a, b): return a+b\n"), 0644))

	cloud := &scriptTransport{kind: backend.Cloud, events: deltas("Looks fine.")}
	h := newHarness(t, cloud, nil)

	h.submit("/analyze " + path)
	h.settle()

	req := cloud.request()
	require.NotNil(t, req)
	assert.Equal(t, session.ReviewPrompt, req.Messages[0].Content)
	assert.Contains(t, req.Prompt(), "def add")
	assert.Equal(t, "Looks fine.", h.lastEntry().Text)

	h.submit("/analyze " + filepath.Join(dir, "missing.py"))
	assert.Contains(t, h.lastEntry().Text, "analyze:")
}

func TestCommands_Workspace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0644))

	cloud := &scriptTransport{kind: backend.Cloud, events: deltas("ok")}
	h := newHarness(t, cloud, nil)

	h.m.input.SetValue("/workspace " + dir)
	mm, cmd := h.m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	h.m = mm.(Model)
	require.NotNil(t, cmd)

	msg := findWorkspaceMsg(cmd)
	require.NotNil(t, msg, "workspace command should collect sources")
	h.send(*msg)
	h.settle()

	req := cloud.request()
	require.NotNil(t, req)
	assert.Contains(t, req.Prompt(), "// file: a.go")
}

// findWorkspaceMsg runs cmd, unpacking batches, until it finds the
// collected sources.
func findWorkspaceMsg(cmd tea.Cmd) *workspaceMsg {
	if cmd == nil {
		return nil
	}
	switch msg := cmd().(type) {
	case workspaceMsg:
		return &msg
	case tea.BatchMsg:
		for _, c := range msg {
			if found := findWorkspaceMsg(c); found != nil {
				return found
			}
		}
	}
	return nil
}

// =============================================================================
// CODE HANDOFF
// =============================================================================

const codeAnswer = "Try this:\n\n```go\nfmt.Println(42)\n```\n"

func TestHandoff_CopySaveApply(t *testing.T) {
	h := newHarness(t, &scriptTransport{kind: backend.Cloud, events: deltas(codeAnswer)}, nil)

	h.key(tea.KeyCtrlY)
	assert.Contains(t, h.m.Status(), "no code block")

	h.submit("print")
	h.settle()

	h.key(tea.KeyCtrlY)
	assert.Contains(t, h.clip, "fmt.Println(42)")

	h.key(tea.KeyCtrlS)
	saved := filepath.Join(h.m.opts.DownloadDir, "snippet-1.go")
	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fmt.Println(42)")

	target := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, os.WriteFile(target, []byte("package main\n"), 0644))
	h.submit("/apply " + target)
	data, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "package main\n"))
	assert.Contains(t, string(data), "fmt.Println(42)")

	// Ctrl+A reuses the last target.
	h.key(tea.KeyCtrlA)
	data, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "fmt.Println(42)"))
}

// =============================================================================
// PANEL AND VIEW
// =============================================================================

func TestPanel_VersionAdvances(t *testing.T) {
	p := NewPanel()
	v := p.Version()
	p.Stream("partial")
	assert.Greater(t, p.Version(), v)
	assert.Equal(t, "partial", p.Live())

	p.Finalize("done", false)
	assert.Equal(t, "", p.Live())
	assert.Equal(t, EntryAssistant, p.Entries()[0].Kind)

	p.Finalize("boom", true)
	assert.Equal(t, EntryError, p.Entries()[1].Kind)

	p.Reset()
	assert.Empty(t, p.Entries())
}

func TestView_Layout(t *testing.T) {
	h := newHarness(t, nil, nil)
	out := h.m.View()
	assert.Contains(t, out, "relaychat")
	assert.Contains(t, out, "cloud")

	h.key(tea.KeyF1)
	assert.Contains(t, h.m.View(), "switch backend")
}

func TestView_NotReady(t *testing.T) {
	m := New(Deps{}, DefaultOptions())
	assert.Equal(t, "Loading...", m.View())
}
