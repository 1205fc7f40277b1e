// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists finalized conversation turns in SQLite.
//
// # Key Types
//
//   - Store: SQLite-backed store; implements session.Recorder
//   - Conversation: A stored conversation with its messages
//   - ConversationMeta: Lightweight metadata for listing
//
// # Usage
//
//	store, err := storage.Open(cfg.Storage.Path)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	metas, err := store.List(ctx, 20)
//	conv, err := store.Load(ctx, metas[0].ID)
//
// Only completed turns reach the store. Failure notices are filtered out
// by Record so a transport error never shows up in history listings.
package storage
