// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes saved conversations as Markdown, JSON or
// standalone HTML.
//
// # Usage
//
//	conv, _ := store.Load(ctx, id)
//	exp, err := export.ForFormat("html", export.DefaultOptions())
//	path, err := export.ToFile(conv, exp, "exports")
//
// Exporters never modify the conversation. HTML output renders message
// markdown with goldmark; raw HTML in messages is escaped, never passed
// through.
package export
