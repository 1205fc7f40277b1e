// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package handoff extracts code blocks from answers and hands them to the
// outside world: the clipboard, a file on disk, or a target source file.
//
// Handoffs are fire-and-forget. They never feed back into session state.
package handoff
