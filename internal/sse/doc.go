// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sse decodes the line-oriented server-sent-events framing used by
// OpenAI-compatible chat completion endpoints.
//
// Input arrives as raw text chunks with no guarantee that a chunk ends on a
// line boundary. The Parser keeps the trailing partial line between calls and
// only interprets complete lines:
//
//	data: {"choices":[{"delta":{"content":"Hel"}}]}
//	data: {"choices":[{"delta":{"content":"lo"}}]}
//	data: [DONE]
//
// Lines without the data prefix and payloads that are not valid JSON are
// skipped. The [DONE] sentinel ends the stream; nothing after it is emitted.
//
// Scanner wraps an io.Reader and exposes the same events as a pull-based
// sequence for transports that own the response body.
package sse
