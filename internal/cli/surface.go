// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jeranaias/relaychat/internal/session"
)

// =============================================================================
// LINE SURFACE
// =============================================================================

// outcome is how one answer ended.
type outcome struct {
	text      string
	failed    bool
	cancelled bool
}

// lineSurface prints an answer to a plain stream as it grows. Only the
// new suffix of each rendering is written, so the output is append-only
// and safe to pipe.
type lineSurface struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	printed string
	done    chan outcome
}

func newLineSurface(out, errOut io.Writer) *lineSurface {
	return &lineSurface{out: out, errOut: errOut, done: make(chan outcome, 1)}
}

// begin prepares for a new answer.
func (s *lineSurface) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.printed = ""
	select {
	case <-s.done:
	default:
	}
}

// Stream implements relay.Surface.
func (s *lineSurface) Stream(rendered string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(rendered)
}

// appendLocked writes what rendered adds to the printed text. A
// rendering that does not extend it starts on a fresh line.
func (s *lineSurface) appendLocked(rendered string) {
	if strings.HasPrefix(rendered, s.printed) {
		io.WriteString(s.out, rendered[len(s.printed):])
	} else {
		if s.printed != "" && !strings.HasSuffix(s.printed, "\n") {
			io.WriteString(s.out, "\n")
		}
		io.WriteString(s.out, rendered)
	}
	s.printed = rendered
}

// Finalize implements relay.Surface.
func (s *lineSurface) Finalize(rendered string, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if failed {
		s.breakLineLocked()
		fmt.Fprintln(s.errOut, rendered)
	} else {
		s.appendLocked(rendered)
		s.breakLineLocked()
	}
	s.signal(outcome{text: rendered, failed: failed})
}

// Clear implements relay.Surface.
func (s *lineSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakLineLocked()
	s.signal(outcome{cancelled: true})
}

func (s *lineSurface) SetBusy(bool)           {}
func (s *lineSurface) SetPauseAvailable(bool) {}
func (s *lineSurface) SetPaused(bool)         {}

func (s *lineSurface) breakLineLocked() {
	if s.printed != "" && !strings.HasSuffix(s.printed, "\n") {
		io.WriteString(s.out, "\n")
	}
	s.printed = ""
}

func (s *lineSurface) signal(o outcome) {
	select {
	case s.done <- o:
	default:
	}
}

// wait blocks until the answer ends. If ctx ends first the session is
// cancelled and ErrInterrupted returned.
func (s *lineSurface) wait(ctx context.Context, ctrl *session.Controller) (outcome, error) {
	select {
	case o := <-s.done:
		if o.cancelled {
			return o, ErrInterrupted
		}
		return o, nil
	case <-ctx.Done():
		ctrl.CancelActive()
		return outcome{cancelled: true}, ErrInterrupted
	}
}
