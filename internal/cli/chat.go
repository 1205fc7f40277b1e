// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - line-mode chat for terminals where the panel is unwanted.
//
// Interactive commands:
//
//	/help            list commands
//	/backend [name]  show or switch the backend
//	/pin, /unpin     attach files to every turn
//	/ctx             attach files to the next turn
//	/refs            list attached files
//	/code            print the last code block
//	/clear           start a new conversation
//	/quit            exit (Ctrl+D also exits)
//
// Ctrl+C stops the current answer.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/jeranaias/relaychat/internal/backend"
	"github.com/jeranaias/relaychat/internal/config"
	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/refs"
	"github.com/jeranaias/relaychat/internal/session"
)

// =============================================================================
// INPUT
// =============================================================================

// lineReader reads one line of input. *liner.State satisfies it.
type lineReader interface {
	Prompt(prompt string) (string, error)
}

// lineEditor adds persistent history and completion to liner.
type lineEditor struct {
	*liner.State
	historyFile string
}

func newLineEditor() *lineEditor {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetCompleter(completeCommand)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	e := &lineEditor{State: state, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(e.historyFile); err == nil {
		state.ReadHistory(f)
		f.Close()
	}
	return e
}

// Prompt reads a line and records it in the history.
func (e *lineEditor) Prompt(prompt string) (string, error) {
	input, err := e.State.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		e.AppendHistory(input)
	}
	return input, nil
}

// Close saves the history and restores the terminal.
// SECURITY: history may contain pasted secrets, so it is written 0600.
func (e *lineEditor) Close() {
	if err := os.MkdirAll(filepath.Dir(e.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(e.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			e.WriteHistory(f)
			f.Close()
		}
	}
	e.State.Close()
}

func completeCommand(line string) []string {
	if !strings.HasPrefix(line, "/") {
		return nil
	}
	var out []string
	for _, name := range chatCommandNames() {
		if strings.HasPrefix("/"+name, line) {
			out = append(out, "/"+name)
		}
	}
	return out
}

// =============================================================================
// CHAT LOOP
// =============================================================================

// chatSession is the state of one line-mode chat.
type chatSession struct {
	env     *Env
	ctrl    *session.Controller
	surface *lineSurface
	refs    *refs.Set
	paint   painter
}

// HandleChat runs an interactive line-mode chat.
func HandleChat(ctx context.Context, env *Env, args Args) error {
	if !IsTTY() {
		return &UsageError{Msg: "chat needs an interactive terminal; use ask for pipes"}
	}
	editor := newLineEditor()
	defer editor.Close()
	return runChat(ctx, env, args, editor)
}

func runChat(ctx context.Context, env *Env, args Args, in lineReader) error {
	kind, err := env.backend(args)
	if err != nil {
		return err
	}
	cs := &chatSession{
		env:     env,
		surface: newLineSurface(env.Out, env.Err),
		refs:    refs.NewSet(),
		paint:   newPainter(env.Out),
	}
	cs.ctrl = env.newController(cs.surface, kind)
	defer cs.ctrl.Dispose()
	for _, f := range args.Files {
		cs.refs.Pin(f)
	}

	if !args.Quiet {
		cs.printWelcome()
	}

	for {
		input, err := in.Prompt(cs.ctrl.Selected().String() + "> ")
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			fmt.Fprintln(env.Out, cs.paint.paint(infoStyle, "(use /quit or Ctrl+D to exit)"))
			continue
		case errors.Is(err, io.EOF):
			fmt.Fprintln(env.Out)
			return nil
		case err != nil:
			return &CommandError{Command: "chat", Action: "read", Err: err}
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if quit := cs.runCommand(input); quit {
				return nil
			}
			continue
		}
		cs.turn(ctx, input)
		if ctx.Err() != nil {
			return ErrInterrupted
		}
	}
}

// turn sends one message and waits for the answer. Ctrl+C stops it.
func (cs *chatSession) turn(ctx context.Context, input string) {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	names := cs.refs.TakeTurn()
	files, err := refs.Context(names, nil, cs.env.Config.Context.MaxFileSize)
	if err != nil {
		fmt.Fprintln(cs.env.Err, cs.paint.paint(warningStyle, err.Error()))
	}

	cs.surface.begin()
	if _, err := cs.ctrl.Start(turnCtx, session.Submit{Input: input, Context: files, Backend: cs.ctrl.Selected()}); err != nil {
		fmt.Fprintln(cs.env.Err, cs.paint.paint(errorStyle, "not sent: "+err.Error()))
		return
	}
	if _, err := cs.surface.wait(turnCtx, cs.ctrl); err != nil {
		fmt.Fprintln(cs.env.Err, cs.paint.paint(warningStyle, "stopped"))
	}
	fmt.Fprintln(cs.env.Out)
}

func (cs *chatSession) printWelcome() {
	out := cs.env.Out
	fmt.Fprintln(out, cs.paint.paint(welcomeStyle, "relaychat "+Version))
	fmt.Fprintln(out, cs.paint.paint(infoStyle, "backend: "+cs.ctrl.Selected().String()+"   /help for commands, Ctrl+C stops an answer"))
	if pinned := cs.refs.Pinned(); len(pinned) > 0 {
		fmt.Fprintln(out, cs.paint.paint(infoStyle, "pinned: "+strings.Join(pinned, ", ")))
	}
	fmt.Fprintln(out)
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

type chatCommand struct {
	usage string
	help  string
	run   func(cs *chatSession, args []string) (quit bool)
}

var chatCommands map[string]chatCommand

func init() {
	chatCommands = map[string]chatCommand{
		"help":    {"/help", "list commands", (*chatSession).cmdHelp},
		"backend": {"/backend [cloud|local]", "show or switch the backend", (*chatSession).cmdBackend},
		"pin":     {"/pin <file>...", "attach files to every turn", (*chatSession).cmdPin},
		"unpin":   {"/unpin <file>...", "stop attaching files", (*chatSession).cmdUnpin},
		"ctx":     {"/ctx <file>...", "attach files to the next turn", (*chatSession).cmdCtx},
		"refs":    {"/refs", "list attached files", (*chatSession).cmdRefs},
		"code":    {"/code", "print the last code block", (*chatSession).cmdCode},
		"clear":   {"/clear", "start a new conversation", (*chatSession).cmdClear},
		"quit":    {"/quit", "exit", func(*chatSession, []string) bool { return true }},
	}
}

func chatCommandNames() []string {
	names := make([]string, 0, len(chatCommands))
	for name := range chatCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (cs *chatSession) runCommand(input string) bool {
	fields := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(fields) == 0 {
		return false
	}
	name := strings.ToLower(fields[0])
	switch name {
	case "q", "exit":
		name = "quit"
	case "h", "?":
		name = "help"
	}
	cmd, ok := chatCommands[name]
	if !ok {
		cs.notice(warningStyle, fmt.Sprintf("unknown command %q, try /help", "/"+fields[0]))
		return false
	}
	return cmd.run(cs, fields[1:])
}

func (cs *chatSession) notice(style lipgloss.Style, text string) {
	fmt.Fprintln(cs.env.Out, cs.paint.paint(style, text))
}

func (cs *chatSession) cmdHelp(_ []string) bool {
	for _, name := range chatCommandNames() {
		c := chatCommands[name]
		fmt.Fprintf(cs.env.Out, "  %s %s\n", cs.paint.paint(commandStyle, fmt.Sprintf("%-24s", c.usage)), c.help)
	}
	return false
}

func (cs *chatSession) cmdBackend(args []string) bool {
	if len(args) == 0 {
		fmt.Fprintln(cs.env.Out, "backend: "+cs.ctrl.Selected().String())
		return false
	}
	k, err := backend.Parse(args[0])
	if err != nil {
		fmt.Fprintln(cs.env.Err, cs.paint.paint(errorStyle, err.Error()))
		return false
	}
	cs.ctrl.SwitchBackend(k)
	fmt.Fprintln(cs.env.Out, "backend: "+k.String())
	return false
}

func (cs *chatSession) cmdPin(args []string) bool {
	for _, name := range args {
		if cs.refs.Pin(name) {
			fmt.Fprintln(cs.env.Out, "pinned "+name)
		}
	}
	return false
}

func (cs *chatSession) cmdUnpin(args []string) bool {
	for _, name := range args {
		if cs.refs.Unpin(name) {
			fmt.Fprintln(cs.env.Out, "unpinned "+name)
		}
	}
	return false
}

func (cs *chatSession) cmdCtx(args []string) bool {
	for _, name := range args {
		if cs.refs.Attach(name) {
			fmt.Fprintln(cs.env.Out, "attached "+name+" to the next turn")
		}
	}
	return false
}

func (cs *chatSession) cmdRefs(_ []string) bool {
	pinned, transient := cs.refs.Pinned(), cs.refs.Transient()
	if len(pinned) == 0 && len(transient) == 0 {
		fmt.Fprintln(cs.env.Out, "no files attached")
		return false
	}
	if len(pinned) > 0 {
		fmt.Fprintln(cs.env.Out, "pinned: "+strings.Join(pinned, ", "))
	}
	if len(transient) > 0 {
		fmt.Fprintln(cs.env.Out, "next turn: "+strings.Join(transient, ", "))
	}
	return false
}

func (cs *chatSession) cmdCode(_ []string) bool {
	hist := cs.ctrl.History()
	for i := len(hist) - 1; i >= 0; i-- {
		if hist[i].Role == model.RoleAssistant {
			printLastBlock(cs.env.Out, hist[i].Content)
			return false
		}
	}
	fmt.Fprintln(cs.env.Out, "no answer yet")
	return false
}

func (cs *chatSession) cmdClear(_ []string) bool {
	cs.ctrl.Reset()
	fmt.Fprintln(cs.env.Out, cs.paint.paint(infoStyle, "new conversation"))
	return false
}
