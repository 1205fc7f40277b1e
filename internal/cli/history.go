// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history.go - saved conversation browser.
//
// Examples:
//
//	relaychat history                 list the 20 most recent conversations
//	relaychat history list --limit 5
//	relaychat history show 1          show the most recent conversation
//	relaychat history show 3f2a       show by ID prefix
//	relaychat history delete 3f2a
//	relaychat history export 1 --format html --out ~/notes
package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/relaychat/internal/export"
	"github.com/jeranaias/relaychat/internal/storage"
)

// errHistoryDisabled is returned when storage is turned off in config.
var errHistoryDisabled = errors.New("history is disabled (storage.disabled = true in config)")

// HandleHistory browses, deletes and exports saved conversations.
func HandleHistory(ctx context.Context, env *Env, args Args) error {
	if env.Store == nil {
		return &CommandError{Command: "history", Err: errHistoryDisabled}
	}

	switch args.Subcommand {
	case "", "list", "ls":
		metas, err := env.Store.List(ctx, args.Limit)
		if err != nil {
			return &CommandError{Command: "history", Action: "list", Err: err}
		}
		out := storage.FormatList(metas)
		fmt.Fprint(env.Out, out)
		if !strings.HasSuffix(out, "\n") {
			fmt.Fprintln(env.Out)
		}
		return nil

	case "show", "cat":
		id, err := resolveRef(ctx, env, args, "show")
		if err != nil {
			return err
		}
		conv, err := env.Store.Load(ctx, id)
		if err != nil {
			return &CommandError{Command: "history", Action: "show", Err: err}
		}
		fmt.Fprint(env.Out, storage.FormatTranscript(conv))
		return nil

	case "delete", "rm":
		id, err := resolveRef(ctx, env, args, "delete")
		if err != nil {
			return err
		}
		if err := env.Store.Delete(ctx, id); err != nil {
			return &CommandError{Command: "history", Action: "delete", Err: err}
		}
		fmt.Fprintf(env.Out, "deleted %s\n", id)
		return nil

	case "export":
		exp, err := export.ForFormat(args.Format, export.DefaultOptions())
		if err != nil {
			return &UsageError{Msg: err.Error()}
		}
		id, err := resolveRef(ctx, env, args, "export")
		if err != nil {
			return err
		}
		conv, err := env.Store.Load(ctx, id)
		if err != nil {
			return &CommandError{Command: "history", Action: "export", Err: err}
		}
		path, err := export.ToFile(conv, exp, args.OutDir)
		if err != nil {
			return &CommandError{Command: "history", Action: "export", Err: err}
		}
		fmt.Fprintf(env.Out, "exported %s\n", path)
		return nil

	default:
		return &UsageError{Msg: fmt.Sprintf("unknown history subcommand %q (want list, show, delete or export)", args.Subcommand)}
	}
}

func resolveRef(ctx context.Context, env *Env, args Args, action string) (string, error) {
	if len(args.Rest) == 0 {
		return "", &UsageError{Msg: fmt.Sprintf("history %s needs a conversation number or ID", action)}
	}
	id, err := env.Store.Resolve(ctx, args.Rest[0])
	if err != nil {
		return "", &CommandError{Command: "history", Action: action, Err: err}
	}
	return id, nil
}
