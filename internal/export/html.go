// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/storage"
)

// HTMLExporter writes a standalone HTML page with embedded CSS.
type HTMLExporter struct {
	opts Options
}

// NewHTMLExporter creates an HTML exporter.
func NewHTMLExporter(opts Options) *HTMLExporter {
	return &HTMLExporter{opts: opts}
}

// SECURITY: goldmark escapes raw HTML unless WithUnsafe is set, so
// message content cannot inject markup or scripts.
var htmlRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Export implements Exporter.
func (e *HTMLExporter) Export(conv *storage.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}
	theme := e.opts.Theme
	if theme != "light" {
		theme = "dark"
	}
	title := html.EscapeString(titleOf(conv))

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("<meta charset=\"UTF-8\">\n")
	sb.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString("<meta name=\"generator\" content=\"relaychat\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", title)
	sb.WriteString("<style>\n" + pageCSS + "</style>\n")
	fmt.Fprintf(&sb, "</head>\n<body class=\"%s\">\n<div class=\"container\">\n", theme)

	fmt.Fprintf(&sb, "<header><h1>%s</h1>\n", title)
	if e.opts.IncludeMetadata {
		fmt.Fprintf(&sb, "<p class=\"meta\">%s backend &middot; %s &middot; %d messages</p>\n",
			html.EscapeString(conv.Backend.String()),
			html.EscapeString(formatTimestamp(conv.StartedAt)),
			len(conv.Messages))
	}
	sb.WriteString("</header>\n<main>\n")

	for _, msg := range conv.Messages {
		body, err := renderMarkdown(msg.Content)
		if err != nil {
			return nil, fmt.Errorf("render message: %w", err)
		}
		fmt.Fprintf(&sb, "<section class=\"message %s\">\n<div class=\"role\">%s",
			roleClass(msg.Role), html.EscapeString(msg.Role.DisplayName()))
		if e.opts.IncludeTimestamps && !msg.Timestamp.IsZero() {
			fmt.Fprintf(&sb, " <time datetime=\"%s\">%s</time>",
				msg.Timestamp.Format(time.RFC3339), msg.Timestamp.Format("15:04:05"))
		}
		sb.WriteString("</div>\n<div class=\"content\">\n")
		sb.WriteString(body)
		sb.WriteString("</div>\n</section>\n")
	}

	fmt.Fprintf(&sb, "</main>\n<footer>Exported from relaychat on %s</footer>\n",
		html.EscapeString(formatTimestamp(e.opts.now())))
	sb.WriteString("</div>\n</body>\n</html>\n")
	return []byte(sb.String()), nil
}

// FileExtension implements Exporter.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

func renderMarkdown(md string) (string, error) {
	var buf bytes.Buffer
	if err := htmlRenderer.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func roleClass(r model.Role) string {
	switch r {
	case model.RoleUser:
		return "user"
	case model.RoleAssistant:
		return "assistant"
	default:
		return "system"
	}
}

const pageCSS = `body { margin: 0; font: 15px/1.6 -apple-system, "Segoe UI", Roboto, sans-serif; }
body.dark { background: #0f1117; color: #e5e7eb; }
body.light { background: #ffffff; color: #1f2937; }
.container { max-width: 860px; margin: 0 auto; padding: 2rem 1rem; }
header h1 { margin-bottom: .25rem; }
.meta, footer, time { color: #9ca3af; font-size: .85rem; }
.message { border-radius: 8px; padding: .75rem 1rem; margin: 1rem 0; }
.dark .user { background: #164e63; }
.dark .assistant { background: #1f2937; }
.light .user { background: #ecfeff; }
.light .assistant { background: #f3f4f6; }
.role { font-weight: 600; margin-bottom: .25rem; }
.user .role { color: #22d3ee; }
.assistant .role { color: #a78bfa; }
pre { overflow-x: auto; padding: .75rem; border-radius: 6px; background: rgba(0,0,0,.35); }
code { font-family: "JetBrains Mono", Menlo, Consolas, monospace; font-size: .9em; }
footer { margin-top: 2rem; text-align: center; }
`
