// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements relaychat's command-line surface.
//
// Without a command relaychat starts the chat panel (package ui/chat,
// wired in main). The commands here cover everything that works on a
// plain stream:
//
//   - ask: one question, answer streamed to stdout
//   - chat: line-mode conversation with history and completion
//   - history: list, show and delete saved conversations
//   - config: show (key masked), path, init
//   - version, help
//
// # Usage
//
//	cmd, args, err := cli.Parse(os.Args[1:])
//	env := cli.NewEnv(cfg, transports, store)
//	switch cmd {
//	case cli.CmdAsk:
//	    err = cli.HandleAsk(ctx, env, args)
//	}
//	os.Exit(cli.ExitCode(err))
//
// Line-mode commands drive the same session controller and relay as the
// panel; a lineSurface prints each rendering's new suffix so output stays
// append-only when piped.
package cli
