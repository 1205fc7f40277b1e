// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/relaychat/internal/backend"
	"github.com/jeranaias/relaychat/internal/config"
	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/storage"
	"github.com/jeranaias/relaychat/internal/transport"
)

// =============================================================================
// ARG PARSER TESTS
// =============================================================================

func TestArgParser(t *testing.T) {
	p := NewArgParser([]string{"ask", "--code", "how", "-b", "local", "--file=a.go", "--", "--not-a-flag"}, "code")

	if p.Subcommand() != "ask" {
		t.Errorf("Subcommand() = %q, want %q", p.Subcommand(), "ask")
	}
	if !p.BoolFlag("code") {
		t.Error("BoolFlag(code) should be true")
	}
	if got := p.Flag("backend", "b"); got != "local" {
		t.Errorf("Flag(backend, b) = %q, want %q", got, "local")
	}
	if got := p.Flag("file"); got != "a.go" {
		t.Errorf("Flag(file) = %q, want %q", got, "a.go")
	}
	if got := strings.Join(p.PositionalFrom(1), " "); got != "how --not-a-flag" {
		t.Errorf("PositionalFrom(1) = %q, want %q", got, "how --not-a-flag")
	}
	if p.Positional(9) != "" {
		t.Error("Positional past the end should be empty")
	}
}

func TestArgParser_FlagInt(t *testing.T) {
	p := NewArgParser([]string{"--limit", "5", "--bad", "x"})
	if n, err := p.FlagInt(20, "limit"); err != nil || n != 5 {
		t.Errorf("FlagInt(limit) = %d, %v, want 5", n, err)
	}
	if n, _ := p.FlagInt(20, "missing"); n != 20 {
		t.Errorf("FlagInt(missing) = %d, want default 20", n)
	}
	if _, err := p.FlagInt(0, "bad"); err == nil {
		t.Error("FlagInt(bad) should fail")
	}
}

// =============================================================================
// PARSE TESTS
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		argv    []string
		want    Command
		check   func(*testing.T, Args)
		wantErr bool
	}{
		{name: "no args starts the panel", argv: nil, want: CmdTUI},
		{
			name: "panel with backend",
			argv: []string{"--backend", "local"},
			want: CmdTUI,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "local", a.Backend)
			},
		},
		{
			name: "ask joins the question",
			argv: []string{"ask", "--code", "write", "a", "server", "-f", "a.go, b.go"},
			want: CmdAsk,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "write a server", a.Query)
				assert.True(t, a.Code)
				assert.Equal(t, []string{"a.go", "b.go"}, a.Files)
				assert.Empty(t, a.Subcommand)
			},
		},
		{
			name: "history show",
			argv: []string{"history", "show", "3f2a"},
			want: CmdHistory,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "show", a.Subcommand)
				assert.Equal(t, []string{"3f2a"}, a.Rest)
				assert.Equal(t, 20, a.Limit)
			},
		},
		{
			name: "history limit",
			argv: []string{"hist", "list", "--limit", "3"},
			want: CmdHistory,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, 3, a.Limit)
			},
		},
		{
			name: "history export",
			argv: []string{"history", "export", "2", "--format", "json", "-o", "out"},
			want: CmdHistory,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "export", a.Subcommand)
				assert.Equal(t, []string{"2"}, a.Rest)
				assert.Equal(t, "json", a.Format)
				assert.Equal(t, "out", a.OutDir)
			},
		},
		{name: "config", argv: []string{"config", "path"}, want: CmdConfig},
		{name: "version flag", argv: []string{"--version"}, want: CmdVersion},
		{name: "help flag", argv: []string{"chat", "-h"}, want: CmdHelp},
		{name: "chat", argv: []string{"chat", "-q"}, want: CmdChat},
		{name: "unknown command", argv: []string{"frobnicate"}, want: CmdHelp, wantErr: true},
		{name: "bad limit", argv: []string{"history", "--limit", "0"}, want: CmdHelp, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, err := Parse(tt.argv)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%v) error = %v, wantErr %v", tt.argv, err, tt.wantErr)
			}
			if cmd != tt.want {
				t.Errorf("Parse(%v) command = %v, want %v", tt.argv, cmd, tt.want)
			}
			if tt.check != nil {
				tt.check(t, args)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{&UsageError{Msg: "bad"}, ExitUsage},
		{ErrInterrupted, ExitInterrupted},
		{&CommandError{Command: "ask", Err: ErrInterrupted}, ExitInterrupted},
		{ErrAnswerFailed, ExitFailure},
		{errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestDisplayError(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, &UsageError{Msg: "ask needs a question"})
	assert.Contains(t, buf.String(), "Error: ask needs a question")
	assert.Contains(t, buf.String(), "relaychat help")

	buf.Reset()
	DisplayError(&buf, ErrAnswerFailed)
	assert.Empty(t, buf.String(), "failed answers are reported by the command")
}

func TestHandleVersion_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HandleVersion(&buf, Args{JSON: true}))

	var info VersionInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

// =============================================================================
// LINE SURFACE TESTS
// =============================================================================

func TestLineSurface_AppendsSuffixes(t *testing.T) {
	var out, errOut bytes.Buffer
	s := newLineSurface(&out, &errOut)
	s.begin()

	s.Stream("Hel")
	s.Stream("Hello")
	s.Stream("Hello, world")
	s.Finalize("Hello, world!", false)

	assert.Equal(t, "Hello, world!\n", out.String())
	assert.Empty(t, errOut.String())

	o := <-s.done
	assert.Equal(t, outcome{text: "Hello, world!"}, o)
}

func TestLineSurface_ReplacedRendering(t *testing.T) {
	var out bytes.Buffer
	s := newLineSurface(&out, io.Discard)
	s.begin()

	s.Stream("draft")
	s.Finalize("final answer\n", false)
	assert.Equal(t, "draft\nfinal answer\n", out.String())
}

func TestLineSurface_FailureGoesToStderr(t *testing.T) {
	var out, errOut bytes.Buffer
	s := newLineSurface(&out, &errOut)
	s.begin()

	s.Stream("partial")
	s.Finalize("request failed: timeout", true)
	assert.Equal(t, "partial\n", out.String())
	assert.Equal(t, "request failed: timeout\n", errOut.String())
	assert.True(t, (<-s.done).failed)
}

// =============================================================================
// TEST FIXTURES
// =============================================================================

type scriptStream struct {
	events []transport.Event
}

func (s *scriptStream) Next() (transport.Event, error) {
	if len(s.events) == 0 {
		return transport.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *scriptStream) Close() error { return nil }

type scriptTransport struct {
	kind    backend.Kind
	events  []transport.Event
	openErr error

	mu       sync.Mutex
	requests []*transport.Request
}

func (t *scriptTransport) Kind() backend.Kind { return t.kind }

func (t *scriptTransport) Open(_ context.Context, req *transport.Request) (transport.Stream, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	t.mu.Unlock()
	if t.openErr != nil {
		return nil, t.openErr
	}
	return &scriptStream{events: append([]transport.Event(nil), t.events...)}, nil
}

func (t *scriptTransport) last() *transport.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.requests) == 0 {
		return nil
	}
	return t.requests[len(t.requests)-1]
}

func deltas(parts ...string) []transport.Event {
	evs := make([]transport.Event, len(parts))
	for i, p := range parts {
		evs[i] = transport.Event{Delta: p}
	}
	return evs
}

type testEnv struct {
	*Env
	cloud *scriptTransport
	local *scriptTransport
	out   *bytes.Buffer
	err   *bytes.Buffer
}

func newTestEnv(t *testing.T, store *storage.Store) *testEnv {
	t.Helper()
	te := &testEnv{
		cloud: &scriptTransport{kind: backend.Cloud},
		local: &scriptTransport{kind: backend.Local},
		out:   &bytes.Buffer{},
		err:   &bytes.Buffer{},
	}
	cfg := config.Default()
	te.Env = &Env{
		Config:     cfg,
		Transports: transport.NewRegistry(te.cloud, te.local),
		Store:      store,
		In:         strings.NewReader(""),
		Out:        te.out,
		Err:        te.err,
	}
	return te
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// =============================================================================
// ASK TESTS
// =============================================================================

func TestRunAsk_StreamsAnswer(t *testing.T) {
	te := newTestEnv(t, nil)
	te.cloud.events = deltas("Go", "routines ", "are cheap.")

	err := runAsk(context.Background(), te.Env, Args{Query: "what are goroutines"})
	require.NoError(t, err)
	assert.Equal(t, "Goroutines are cheap.\n", te.out.String())

	req := te.cloud.last()
	require.NotNil(t, req)
	assert.Equal(t, "what are goroutines", req.Prompt())
	assert.Equal(t, "system", req.Messages[0].Role)
}

func TestRunAsk_QuestionFromStdin(t *testing.T) {
	te := newTestEnv(t, nil)
	te.In = strings.NewReader("  explain this log\n")
	te.local.events = []transport.Event{{Done: true, Full: ptr("It is fine.")}}

	err := runAsk(context.Background(), te.Env, Args{Backend: "local"})
	require.NoError(t, err)
	assert.Equal(t, "It is fine.\n", te.out.String())
	assert.Equal(t, "explain this log", te.local.last().Prompt())
	assert.Nil(t, te.cloud.last())
}

func TestRunAsk_Usage(t *testing.T) {
	te := newTestEnv(t, nil)

	err := runAsk(context.Background(), te.Env, Args{})
	assert.Equal(t, ExitUsage, ExitCode(err))

	err = runAsk(context.Background(), te.Env, Args{Query: "q", Backend: "pigeon"})
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestRunAsk_AttachesFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0644))

	te := newTestEnv(t, nil)
	te.cloud.events = deltas("ok")

	require.NoError(t, runAsk(context.Background(), te.Env, Args{Query: "review", Files: []string{path}}))
	prompt := te.cloud.last().Prompt()
	assert.Contains(t, prompt, "package main")
	assert.Contains(t, prompt, "review")
}

func TestRunAsk_Failure(t *testing.T) {
	te := newTestEnv(t, nil)
	te.cloud.openErr = errors.New("connection refused")

	err := runAsk(context.Background(), te.Env, Args{Query: "hi"})
	assert.ErrorIs(t, err, ErrAnswerFailed)
	assert.Empty(t, te.out.String())
	assert.Contains(t, te.err.String(), "request failed: connection refused")
}

func TestRunAsk_JSON(t *testing.T) {
	te := newTestEnv(t, nil)
	te.cloud.events = deltas("forty", "-two")

	require.NoError(t, runAsk(context.Background(), te.Env, Args{Query: "answer?", JSON: true}))

	var res AskResult
	require.NoError(t, json.Unmarshal(te.out.Bytes(), &res))
	assert.Equal(t, "forty-two", res.Answer)
	assert.Equal(t, "cloud", res.Backend)
	assert.NotEmpty(t, res.ConversationID)
	assert.Empty(t, res.Error)
}

func TestRunAsk_PrintsCode(t *testing.T) {
	te := newTestEnv(t, nil)
	te.cloud.events = deltas("Use:\n\n```go\nfmt.Println(1)\n```\n")

	require.NoError(t, runAsk(context.Background(), te.Env, Args{Query: "print", Code: true}))
	assert.True(t, strings.HasSuffix(te.out.String(), "\nfmt.Println(1)\n"), "got %q", te.out.String())
}

func TestRunAsk_RecordsConversation(t *testing.T) {
	store := openStore(t)
	te := newTestEnv(t, store)
	te.cloud.events = deltas("saved answer")

	require.NoError(t, runAsk(context.Background(), te.Env, Args{Query: "remember me"}))

	metas, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "remember me", metas[0].Title)
	assert.Equal(t, 2, metas[0].MessageCount)
}

func TestRunAsk_Interrupted(t *testing.T) {
	te := newTestEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runAsk(ctx, te.Env, Args{Query: "never mind"})
	assert.ErrorIs(t, err, ErrInterrupted)
}

func ptr(s string) *string { return &s }

// =============================================================================
// CHAT TESTS
// =============================================================================

type scriptedReader struct {
	lines []string
}

func (r *scriptedReader) Prompt(string) (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func TestRunChat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("pinned content"), 0644))

	te := newTestEnv(t, nil)
	te.cloud.events = deltas("Hi ", "there")
	in := &scriptedReader{lines: []string{
		"/pin " + path,
		"hello",
		"/refs",
		"/backend local",
		"/nope",
		"/quit",
		"never sent",
	}}

	require.NoError(t, runChat(context.Background(), te.Env, Args{Quiet: true}, in))

	out := te.out.String()
	assert.Contains(t, out, "pinned "+path)
	assert.Contains(t, out, "Hi there\n")
	assert.Contains(t, out, "pinned: "+path)
	assert.Contains(t, out, "backend: local")
	assert.Contains(t, out, `unknown command "/nope"`)
	assert.Equal(t, []string{"never sent"}, in.lines)

	assert.Contains(t, te.cloud.last().Prompt(), "pinned content")
	assert.Nil(t, te.local.last())
}

func TestRunChat_ClearStartsNewConversation(t *testing.T) {
	store := openStore(t)
	te := newTestEnv(t, store)
	te.cloud.events = deltas("answer")
	in := &scriptedReader{lines: []string{"one", "/clear", "two"}}

	require.NoError(t, runChat(context.Background(), te.Env, Args{Quiet: true}, in))

	metas, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, metas, 2)
	assert.Len(t, te.cloud.last().Messages, 2, "second conversation carries no history")
}

func TestCompleteCommand(t *testing.T) {
	assert.Equal(t, []string{"/pin"}, completeCommand("/pi"))
	assert.Nil(t, completeCommand("hello"))
	assert.Contains(t, completeCommand("/c"), "/clear")
}

// =============================================================================
// HISTORY TESTS
// =============================================================================

func TestHandleHistory(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.Record(ctx, "abc123", backend.Cloud,
		model.NewUserMessage("first question"), model.NewAssistantMessage("first answer")))

	te := newTestEnv(t, store)

	require.NoError(t, HandleHistory(ctx, te.Env, Args{Limit: 20}))
	assert.Contains(t, te.out.String(), "first question")

	te.out.Reset()
	require.NoError(t, HandleHistory(ctx, te.Env, Args{Subcommand: "show", Rest: []string{"1"}}))
	assert.Contains(t, te.out.String(), "first answer")

	err := HandleHistory(ctx, te.Env, Args{Subcommand: "show"})
	assert.Equal(t, ExitUsage, ExitCode(err))

	te.out.Reset()
	require.NoError(t, HandleHistory(ctx, te.Env, Args{Subcommand: "delete", Rest: []string{"abc"}}))
	assert.Equal(t, "deleted abc123\n", te.out.String())

	err = HandleHistory(ctx, te.Env, Args{Subcommand: "show", Rest: []string{"abc"}})
	assert.ErrorIs(t, err, storage.ErrConversationNotFound)
}

func TestHandleHistory_Export(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.Record(ctx, "abc123", backend.Local,
		model.NewUserMessage("<b>bold</b> question"), model.NewAssistantMessage("`code` answer")))

	te := newTestEnv(t, store)
	dir := t.TempDir()

	require.NoError(t, HandleHistory(ctx, te.Env, Args{Subcommand: "export", Rest: []string{"1"}, Format: "html", OutDir: dir}))
	path := strings.TrimPrefix(strings.TrimSpace(te.out.String()), "exported ")
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Equal(t, ".html", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<code>code</code> answer")
	assert.NotContains(t, string(data), "<b>bold</b>")

	err = HandleHistory(ctx, te.Env, Args{Subcommand: "export", Rest: []string{"1"}, Format: "pdf"})
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestHandleHistory_Disabled(t *testing.T) {
	te := newTestEnv(t, nil)
	err := HandleHistory(context.Background(), te.Env, Args{})
	assert.ErrorIs(t, err, errHistoryDisabled)
}

// =============================================================================
// CONFIG TESTS
// =============================================================================

func isolateConfig(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("RELAYCHAT_HOME", home)
	for _, k := range []string{"RELAYCHAT_BACKEND", "RELAYCHAT_CLOUD_URL", "RELAYCHAT_MODEL",
		"RELAYCHAT_API_KEY", "DEEPSEEK_API_KEY", "RELAYCHAT_LOCAL_URL", "RELAYCHAT_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	return home
}

func TestHandleConfig(t *testing.T) {
	home := isolateConfig(t)
	var out bytes.Buffer

	require.NoError(t, HandleConfig(&out, Args{Subcommand: "path"}))
	assert.Equal(t, filepath.Join(home, "config.toml")+"\n", out.String())

	out.Reset()
	require.NoError(t, HandleConfig(&out, Args{Subcommand: "init"}))
	_, err := os.Stat(filepath.Join(home, "config.toml"))
	require.NoError(t, err)

	err = HandleConfig(&out, Args{Subcommand: "init"})
	assert.Error(t, err, "init must not overwrite without --force")
	require.NoError(t, HandleConfig(&out, Args{Subcommand: "init", Force: true}))

	assert.Equal(t, ExitUsage, ExitCode(HandleConfig(&out, Args{Subcommand: "bogus"})))
}

func TestHandleConfig_ShowMasksKey(t *testing.T) {
	isolateConfig(t)
	t.Setenv("RELAYCHAT_API_KEY", "sk-very-secret-key")

	var out bytes.Buffer
	require.NoError(t, HandleConfig(&out, Args{}))
	assert.NotContains(t, out.String(), "sk-very-secret-key")
	assert.Contains(t, out.String(), "REDACTED")
	assert.Contains(t, out.String(), "deepseek-chat")
}
