// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport performs the network calls for each backend and exposes
// them to the session controller as one uniform, pull-based Stream.
//
// # Variants
//
//   - CloudClient: OpenAI-compatible chat completions with stream=true. The
//     body is decoded by package sse and surfaces as delta events followed by
//     a final Done event.
//   - LocalClient: a single-shot generation service answering one JSON object
//     with text and/or code fields. It surfaces as a single Done event
//     carrying the full display string.
//
// # Failures
//
// Network errors, non-2xx statuses, malformed JSON and empty answers all
// become *Error, which matches ErrTransport under errors.Is and carries a
// human-readable Cause. Nothing here retries.
//
// # Abort
//
// Closing a Stream, or cancelling the context passed to Open, tears down the
// request. A closed stream reports io.EOF and never delivers another event.
package transport
