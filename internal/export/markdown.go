// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/relaychat/internal/storage"
)

// MarkdownExporter writes a conversation as Markdown with YAML front
// matter.
type MarkdownExporter struct {
	opts Options
}

// NewMarkdownExporter creates a Markdown exporter.
func NewMarkdownExporter(opts Options) *MarkdownExporter {
	return &MarkdownExporter{opts: opts}
}

// Export implements Exporter.
func (e *MarkdownExporter) Export(conv *storage.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}
	title := titleOf(conv)

	var sb strings.Builder
	if e.opts.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(title))
		fmt.Fprintf(&sb, "conversation: %s\n", conv.ID)
		fmt.Fprintf(&sb, "backend: %s\n", conv.Backend)
		fmt.Fprintf(&sb, "date: %s\n", conv.StartedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "messages: %d\n", len(conv.Messages))
		fmt.Fprintf(&sb, "exported: %s\n", e.opts.now().Format(time.RFC3339))
		sb.WriteString("generator: relaychat\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(title))

	for i, msg := range conv.Messages {
		label := msg.Role.DisplayName()
		if e.opts.IncludeTimestamps && !msg.Timestamp.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, msg.Timestamp.Format("15:04:05"))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}
		// Message bodies are already markdown.
		sb.WriteString(strings.TrimRight(msg.Content, "\n"))
		sb.WriteString("\n\n")
		if i < len(conv.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	fmt.Fprintf(&sb, "*Exported from relaychat on %s*\n", formatTimestamp(e.opts.now()))
	return []byte(sb.String()), nil
}

// FileExtension implements Exporter.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

func titleOf(conv *storage.Conversation) string {
	if t := strings.TrimSpace(conv.Title); t != "" {
		return t
	}
	return "Conversation " + conv.ID
}

// escapeMarkdown escapes characters that would restyle a heading.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(`#`, `\#`, `*`, `\*`, `_`, `\_`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}

// escapeYAML quotes s when it holds characters with YAML meaning.
func escapeYAML(s string) string {
	if !strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") && s == strings.TrimSpace(s) {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)
	return `"` + r.Replace(s) + `"`
}
