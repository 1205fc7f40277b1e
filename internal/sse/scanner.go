// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"errors"
	"io"
)

// readChunkSize is the size of each raw read from the body.
const readChunkSize = 4096

// Scanner exposes a reader as a lazy, finite sequence of events. The sequence
// ends with exactly one EventEnd (sentinel or reader EOF) followed by io.EOF.
type Scanner struct {
	r       io.Reader
	parser  *Parser
	pending []Event
	buf     []byte
	ended   bool
	err     error
}

// NewScanner creates a scanner over r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{
		r:      r,
		parser: NewParser(),
		buf:    make([]byte, readChunkSize),
	}
}

// Next returns the next event. Read errors other than io.EOF are returned
// as-is and end the sequence.
func (s *Scanner) Next() (Event, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			if ev.Kind == EventEnd {
				s.ended = true
				s.pending = nil
			}
			return ev, nil
		}
		if s.ended {
			return Event{}, io.EOF
		}
		if s.err != nil {
			return Event{}, s.err
		}

		n, err := s.r.Read(s.buf)
		if n > 0 {
			s.pending = append(s.pending, s.parser.Feed(string(s.buf[:n]))...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.pending = append(s.pending, s.parser.Flush()...)
				if !s.parser.Done() {
					s.pending = append(s.pending, End())
				}
				continue
			}
			s.err = err
		}
	}
}

// Parser exposes the underlying parser for diagnostics.
func (s *Scanner) Parser() *Parser { return s.parser }
