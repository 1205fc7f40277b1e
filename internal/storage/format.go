// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"strings"

	"github.com/jeranaias/relaychat/internal/util"
)

// =============================================================================
// LISTING FORMAT
// =============================================================================

// FormatList renders conversation metadata as a numbered table. The
// numbers are accepted by Resolve.
func FormatList(metas []ConversationMeta) string {
	if len(metas) == 0 {
		return "No conversations found."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-4s %-10s %-17s %-6s %5s  %s\n", "#", "ID", "Updated", "Source", "Msgs", "Title")
	for i, m := range metas {
		fmt.Fprintf(&sb, "%-4d %-10s %-17s %-6s %5d  %s\n",
			i+1,
			util.TruncateRunes(m.ID, 8),
			m.UpdatedAt.Format("2006-01-02 15:04"),
			m.Backend,
			m.MessageCount,
			util.TruncateWidth(m.Title, 40),
		)
	}
	return sb.String()
}

// FormatTranscript renders a conversation as plain text.
func FormatTranscript(conv *Conversation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Conversation %s (%s, started %s)\n",
		conv.ID, conv.Backend, conv.StartedAt.Format("2006-01-02 15:04"))
	for _, m := range conv.Messages {
		fmt.Fprintf(&sb, "\n[%s] %s\n%s\n", m.Timestamp.Format("15:04:05"), m.Role.DisplayName(), m.Content)
	}
	return sb.String()
}
