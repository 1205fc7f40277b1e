// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across relaychat.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth: truncation by terminal display width
//   - TruncateBytes: byte cap that never splits a character
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	status := util.TruncateWidth(line, width)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
