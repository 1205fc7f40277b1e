// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the message and history types shared by the session
// controller, the transports and storage.
//
// # Key Types
//
//   - Role: user, assistant or system
//   - Message: one finalized turn, optionally tagged as an error notice
//   - History: the append-only conversation committed by completed sessions
//
// # Usage
//
//	h := model.NewHistory()
//	h.Append(model.NewUserMessage("hi"), model.NewAssistantMessage("hello"))
//	outbound := model.ForRequest(model.DefaultSystemPrompt, h.Snapshot())
package model
