// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - configuration inspection.
//
// Examples:
//
//	relaychat config          show the effective config, API key masked
//	relaychat config path     print the config file location
//	relaychat config init     write a default config file
package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/relaychat/internal/config"
)

// HandleConfig shows, locates or creates the config file. It loads the
// config itself so that path and init work with a broken file.
func HandleConfig(out io.Writer, args Args) error {
	switch args.Subcommand {
	case "", "show":
		cfg, err := config.Load()
		if err != nil {
			return &CommandError{Command: "config", Action: "show", Err: err}
		}
		// SECURITY: never print the API key itself.
		if err := toml.NewEncoder(out).Encode(cfg.Redacted()); err != nil {
			return &CommandError{Command: "config", Action: "show", Err: err}
		}
		return nil

	case "path":
		path, err := config.Path()
		if err != nil {
			return &CommandError{Command: "config", Action: "path", Err: err}
		}
		fmt.Fprintln(out, path)
		return nil

	case "init":
		path, err := config.Path()
		if err != nil {
			return &CommandError{Command: "config", Action: "init", Err: err}
		}
		if _, err := os.Stat(path); err == nil && !args.Force {
			return &CommandError{Command: "config", Action: "init",
				Err: fmt.Errorf("%s already exists (use --force to overwrite)", path)}
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &CommandError{Command: "config", Action: "init", Err: err}
		}
		if err := config.SaveTOML(config.Default(), path); err != nil {
			return &CommandError{Command: "config", Action: "init", Err: err}
		}
		fmt.Fprintf(out, "wrote %s\n", path)
		return nil

	default:
		return &UsageError{Msg: fmt.Sprintf("unknown config subcommand %q (want show, path or init)", args.Subcommand)}
	}
}
