// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"strings"

	"github.com/tidwall/gjson"
)

// =============================================================================
// EVENTS
// =============================================================================

// EventKind identifies what a parsed line produced.
type EventKind int

const (
	// EventDelta carries an incremental content fragment.
	EventDelta EventKind = iota
	// EventEnd marks protocol-level end of stream.
	EventEnd
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "delta"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Event is one decoded unit of the stream.
type Event struct {
	Kind EventKind
	Text string
}

// Delta builds a delta event.
func Delta(text string) Event { return Event{Kind: EventDelta, Text: text} }

// End builds the end-of-stream event.
func End() Event { return Event{Kind: EventEnd} }

// =============================================================================
// PARSER
// =============================================================================

const (
	// DataPrefix starts every payload-carrying line.
	DataPrefix = "data:"

	// DoneSentinel is the payload that terminates the stream.
	DoneSentinel = "[DONE]"

	// DeltaPath is the gjson path of the incremental content.
	DeltaPath = "choices.0.delta.content"
)

// Parser turns raw chunks into events. It is not safe for concurrent use and
// is bound to a single response body.
type Parser struct {
	partial strings.Builder
	done    bool
	lines   int
	skipped int
}

// NewParser creates an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends a chunk and returns the events for every complete line it
// finished. The trailing incomplete line is held until the next call.
func (p *Parser) Feed(chunk string) []Event {
	if p.done || chunk == "" {
		return nil
	}

	p.partial.WriteString(chunk)
	buf := p.partial.String()

	last := strings.LastIndexByte(buf, '\n')
	if last < 0 {
		return nil
	}

	complete := buf[:last]
	rest := buf[last+1:]
	p.partial.Reset()
	p.partial.WriteString(rest)

	var events []Event
	for _, line := range strings.Split(complete, "\n") {
		ev, ok := p.parseLine(line)
		if !ok {
			continue
		}
		events = append(events, ev)
		if ev.Kind == EventEnd {
			p.finish()
			break
		}
	}
	return events
}

// Flush interprets whatever is left in the partial buffer as a final line.
// Transports call it once the body hits EOF.
func (p *Parser) Flush() []Event {
	if p.done {
		return nil
	}
	rest := p.partial.String()
	p.partial.Reset()
	if strings.TrimSpace(rest) == "" {
		return nil
	}
	ev, ok := p.parseLine(rest)
	if !ok {
		return nil
	}
	if ev.Kind == EventEnd {
		p.finish()
	}
	return []Event{ev}
}

// Done reports whether the end sentinel has been seen.
func (p *Parser) Done() bool { return p.done }

// Lines returns the number of complete lines interpreted so far.
func (p *Parser) Lines() int { return p.lines }

// Skipped returns how many data lines were dropped as malformed.
func (p *Parser) Skipped() int { return p.skipped }

func (p *Parser) finish() {
	p.done = true
	p.partial.Reset()
}

// parseLine returns the event a single line produces, if any.
func (p *Parser) parseLine(line string) (Event, bool) {
	p.lines++

	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, DataPrefix) {
		return Event{}, false
	}

	payload := strings.TrimSpace(strings.TrimPrefix(trimmed, DataPrefix))
	if payload == DoneSentinel {
		return End(), true
	}

	if !gjson.Valid(payload) {
		p.skipped++
		return Event{}, false
	}

	content := gjson.Get(payload, DeltaPath)
	if content.Type != gjson.String || content.Str == "" {
		return Event{}, false
	}
	return Delta(content.Str), true
}
