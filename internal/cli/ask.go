// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - single question command.
//
// Examples:
//
//	relaychat ask "What is a goroutine leak?"
//	relaychat ask --backend local "Explain this error" < build.log
//	relaychat ask --file main.go,util.go "Review these"
//	relaychat ask --code "Write a Go HTTP health check"
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/jeranaias/relaychat/internal/handoff"
	"github.com/jeranaias/relaychat/internal/refs"
	"github.com/jeranaias/relaychat/internal/session"
)

// maxStdinQuestion bounds a question read from a pipe.
const maxStdinQuestion = 1 << 20

// AskResult is the JSON form of an answer.
type AskResult struct {
	ConversationID string   `json:"conversation_id"`
	Backend        string   `json:"backend"`
	Question       string   `json:"question"`
	Files          []string `json:"files,omitempty"`
	Answer         string   `json:"answer,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// HandleAsk sends one question and streams the answer to stdout. Ctrl+C
// stops the answer.
func HandleAsk(ctx context.Context, env *Env, args Args) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	return runAsk(ctx, env, args)
}

func runAsk(ctx context.Context, env *Env, args Args) error {
	question := strings.TrimSpace(args.Query)
	if question == "" && !isTerminal(env.In) {
		data, err := io.ReadAll(io.LimitReader(env.In, maxStdinQuestion))
		if err != nil {
			return &CommandError{Command: "ask", Action: "read stdin", Err: err}
		}
		question = strings.TrimSpace(string(data))
	}
	if question == "" {
		return &UsageError{Msg: "ask needs a question, e.g. relaychat ask \"what is a mutex?\""}
	}

	kind, err := env.backend(args)
	if err != nil {
		return err
	}
	files, err := refs.Context(args.Files, nil, env.Config.Context.MaxFileSize)
	if err != nil {
		return &CommandError{Command: "ask", Action: "attach", Err: err}
	}

	out := env.Out
	if args.JSON {
		out = io.Discard
	}
	surface := newLineSurface(out, env.Err)
	ctrl := env.newController(surface, kind)
	defer ctrl.Dispose()

	surface.begin()
	if _, err := ctrl.Start(ctx, session.Submit{Input: question, Context: files, Backend: kind}); err != nil {
		return &CommandError{Command: "ask", Action: "send", Err: err}
	}
	result, waitErr := surface.wait(ctx, ctrl)

	if args.JSON {
		res := AskResult{
			ConversationID: ctrl.ConversationID(),
			Backend:        kind.String(),
			Question:       question,
			Files:          args.Files,
		}
		switch {
		case waitErr != nil:
			res.Error = "stopped"
		case result.failed:
			res.Error = result.text
		default:
			res.Answer = result.text
		}
		enc := json.NewEncoder(env.Out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	}

	if waitErr != nil {
		fmt.Fprintln(env.Err, "stopped")
		return waitErr
	}
	if result.failed {
		// The failure text is already on stderr.
		return ErrAnswerFailed
	}
	if args.Code && !args.JSON {
		printLastBlock(env.Out, result.text)
	}
	return nil
}

// printLastBlock writes the last fenced code block of answer, highlighted
// when out is a color terminal.
func printLastBlock(out io.Writer, answer string) {
	b, ok := handoff.Last(answer)
	if !ok {
		return
	}
	code := b.Code
	if ColorsEnabled(out) {
		code = handoff.Highlight(b, "monokai")
	}
	fmt.Fprintln(out)
	io.WriteString(out, code)
	if !strings.HasSuffix(code, "\n") {
		fmt.Fprintln(out)
	}
}
