// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package handoff

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/jeranaias/relaychat/internal/util"
)

// ErrNoBlock is returned when there is no code to hand off.
var ErrNoBlock = errors.New("no code block")

// Sink receives a code block. The returned string describes the outcome for
// a status line.
type Sink interface {
	Deliver(b Block, hint string) (string, error)
}

// =============================================================================
// CLIPBOARD
// =============================================================================

// Clipboard copies code to the system clipboard.
type Clipboard struct {
	// Write defaults to clipboard.WriteAll.
	Write func(string) error
}

// Deliver implements Sink.
func (c Clipboard) Deliver(b Block, _ string) (string, error) {
	if b.Code == "" {
		return "", ErrNoBlock
	}
	write := c.Write
	if write == nil {
		write = clipboard.WriteAll
	}
	if err := write(b.Code); err != nil {
		return "", fmt.Errorf("clipboard: %w", err)
	}
	return fmt.Sprintf("copied %d lines", lineCount(b.Code)), nil
}

// =============================================================================
// DOWNLOAD
// =============================================================================

// Download saves code into Dir under the hinted name. Existing files are
// never overwritten: a numeric suffix is added instead.
type Download struct {
	Dir string
}

// Deliver implements Sink.
func (d Download) Deliver(b Block, hint string) (string, error) {
	if b.Code == "" {
		return "", ErrNoBlock
	}
	name := filepath.Base(strings.TrimSpace(hint))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = b.Suggest(1)
	}
	dir := d.Dir
	if dir == "" {
		dir = "."
	}

	path, err := uniquePath(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	if err := util.AtomicWriteFile(path, []byte(b.Code), 0644); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return "saved " + path, nil
}

// uniquePath returns path, or path with -1, -2... before the extension if
// it already exists.
func uniquePath(path string) (string, error) {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	candidate := path
	for i := 1; i < 1000; i++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
	return "", fmt.Errorf("too many files named like %s", path)
}

// =============================================================================
// APPLY
// =============================================================================

// Apply inserts code into a target file before Line (1-based). Line 0 or a
// line past the end appends. A missing file is created.
type Apply struct {
	Path string
	Line int
}

// Deliver implements Sink.
func (a Apply) Deliver(b Block, _ string) (string, error) {
	if b.Code == "" {
		return "", ErrNoBlock
	}
	if a.Path == "" {
		return "", errors.New("no target file (use /apply <file>)")
	}

	perm := os.FileMode(0644)
	existing, err := os.ReadFile(a.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		existing = nil
	case err != nil:
		return "", fmt.Errorf("read %s: %w", a.Path, err)
	default:
		if info, statErr := os.Stat(a.Path); statErr == nil {
			perm = info.Mode().Perm()
		}
	}

	updated := insertAt(string(existing), b.Code, a.Line)
	if err := util.AtomicWriteFile(a.Path, []byte(updated), perm); err != nil {
		return "", fmt.Errorf("apply to %s: %w", a.Path, err)
	}
	return fmt.Sprintf("inserted %d lines into %s", lineCount(b.Code), a.Path), nil
}

// insertAt places code before the given 1-based line of content.
func insertAt(content, code string, line int) string {
	if !strings.HasSuffix(code, "\n") {
		code += "\n"
	}
	if content == "" {
		return code
	}

	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if line <= 0 || line > len(lines) {
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		return content + code
	}

	var b strings.Builder
	for i, l := range lines {
		if i == line-1 {
			b.WriteString(code)
		}
		b.WriteString(l)
	}
	return b.String()
}

func lineCount(s string) int {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
