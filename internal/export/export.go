// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/jeranaias/relaychat/internal/storage"
	"github.com/jeranaias/relaychat/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a conversation into one file format.
type Exporter interface {
	Export(conv *storage.Conversation) ([]byte, error)

	// FileExtension includes the dot, e.g. ".md".
	FileExtension() string
}

// ErrEmptyConversation is returned for conversations with no messages.
var ErrEmptyConversation = errors.New("conversation has no messages")

// Options configures exporters.
type Options struct {
	// IncludeMetadata adds a header with backend, dates and counts.
	IncludeMetadata bool

	// IncludeTimestamps labels each message with its time.
	IncludeTimestamps bool

	// Theme selects the HTML palette: "dark" or "light".
	Theme string

	// Now stamps the export. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the default export options.
func DefaultOptions() Options {
	return Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Theme:             "dark",
	}
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Formats lists the names ForFormat accepts.
var Formats = []string{"md", "json", "html"}

// ForFormat returns the exporter for a format name.
func ForFormat(name string, opts Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "md", "markdown", "":
		return &MarkdownExporter{opts: opts}, nil
	case "json":
		return &JSONExporter{opts: opts}, nil
	case "html", "htm":
		return &HTMLExporter{opts: opts}, nil
	default:
		return nil, fmt.Errorf("unknown export format %q (want %s)", name, strings.Join(Formats, ", "))
	}
}

func validate(conv *storage.Conversation) error {
	if conv == nil {
		return errors.New("conversation is nil")
	}
	if len(conv.Messages) == 0 {
		return ErrEmptyConversation
	}
	return nil
}

// =============================================================================
// FILE OUTPUT
// =============================================================================

// ToFile exports conv into dir and returns the written path. The name is
// derived from the title and ID; existing files are never overwritten.
func ToFile(conv *storage.Conversation, exp Exporter, dir string) (string, error) {
	content, err := exp.Export(conv)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}
	if dir == "" {
		dir = "."
	}

	base := Filename(conv)
	path := filepath.Join(dir, base+exp.FileExtension())
	for i := 2; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			break
		} else if err != nil {
			return "", err
		}
		path = filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, i, exp.FileExtension()))
	}

	if err := util.AtomicWriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// Filename returns a file-system safe base name for conv.
func Filename(conv *storage.Conversation) string {
	title := sanitizeFilename(conv.Title)
	if title == "" {
		title = "conversation"
	}
	return title + "-" + sanitizeFilename(firstRunes(conv.ID, 8))
}

// sanitizeFilename keeps letters, digits, dashes and underscores, folds
// runs of anything else into one dash and caps the length.
// SECURITY: the result never contains path separators or dots.
func sanitizeFilename(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteRune('-')
			dash = true
		}
	}
	return strings.TrimRight(firstRunes(b.String(), 40), "-")
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

func formatTimestamp(t time.Time) string {
	return t.Format("January 2, 2006 at 3:04 PM")
}
