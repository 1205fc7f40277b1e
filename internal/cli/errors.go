// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError reports malformed arguments.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

// CommandError wraps a failure of one command action.
type CommandError struct {
	Command string
	Action  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ErrAnswerFailed marks an ask whose request failed after it was sent.
var ErrAnswerFailed = errors.New("answer failed")

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2

	// ExitInterrupted follows the shell convention for SIGINT.
	ExitInterrupted = 130
)

// ErrInterrupted is returned when the user stopped a command.
var ErrInterrupted = errors.New("interrupted")

// ExitCode maps err to a process exit status.
func ExitCode(err error) int {
	var usage *UsageError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &usage):
		return ExitUsage
	case errors.Is(err, ErrInterrupted):
		return ExitInterrupted
	default:
		return ExitFailure
	}
}

// DisplayError prints err to w, with a usage hint for argument errors.
// Interruptions and failed answers were already reported.
func DisplayError(w io.Writer, err error) {
	if err == nil || errors.Is(err, ErrInterrupted) || errors.Is(err, ErrAnswerFailed) {
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	var usage *UsageError
	if errors.As(err, &usage) {
		fmt.Fprintln(w, "Run 'relaychat help' for usage.")
	}
}
