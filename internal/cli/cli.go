// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (overridden at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command is the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdChat
	CmdHistory
	CmdConfig
	CmdVersion
	CmdHelp
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdAsk:
		return "ask"
	case CmdChat:
		return "chat"
	case CmdHistory:
		return "history"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Backend overrides the configured backend ("cloud" or "local").
	Backend string

	// Files are attached to the question (ask) or pinned (chat, tui).
	Files []string

	// Code prints the last code block of the answer, highlighted (ask).
	Code bool

	// JSON switches ask and version to machine-readable output.
	JSON bool

	// Quiet suppresses banners and notices.
	Quiet bool

	// Force allows config init to overwrite an existing file.
	Force bool

	// Limit caps history listings.
	Limit int

	// Format and OutDir control history export.
	Format string
	OutDir string

	// Query is the question for ask.
	Query string

	// Subcommand and Rest are the positionals after the command.
	Subcommand string
	Rest       []string
}

// boolFlags never take a value.
var boolFlags = []string{"code", "json", "quiet", "q", "force", "help", "h", "version"}

const usageText = `relaychat - streaming chat relay for cloud and local models

Usage:
  relaychat                         Start the chat panel (default)
  relaychat ask [flags] <question>  Ask one question and stream the answer
  relaychat chat [flags]            Line-mode chat session
  relaychat history [list|show|delete|export] [id]
                                    Browse saved conversations
  relaychat config [show|path|init] Inspect or create the config file
  relaychat version                 Show version information
  relaychat help                    Show this help

Flags:
  -b, --backend NAME   cloud or local (overrides config)
  -f, --file PATHS     Comma-separated files to attach
  --code               ask: print the last code block, highlighted
  --json               ask, version: JSON output
  -q, --quiet          Less chatter
  --limit N            history list: number of conversations (default 20)
  --force              config init: overwrite an existing file
  --format FMT         history export: md, json or html (default md)
  --out DIR            history export: output directory (default .)

Panel keys:
  enter send   esc stop   C-p pause/resume   tab switch backend
  C-y copy code   C-s save code   C-a apply code   C-l new conversation
  F1 help   C-c quit

Environment:
  RELAYCHAT_HOME       Config directory (default ~/.relaychat)
  RELAYCHAT_API_KEY    Cloud API key (DEEPSEEK_API_KEY also accepted)
  RELAYCHAT_BACKEND    Startup backend
  RELAYCHAT_LOG_LEVEL  debug, info, warn or error
`

// =============================================================================
// PARSING
// =============================================================================

// Parse converts command-line arguments (without the program name) into a
// command and its arguments.
func Parse(argv []string) (Command, Args, error) {
	p := NewArgParser(argv, boolFlags...)
	args := Args{
		Backend: p.Flag("backend", "b"),
		Code:    p.BoolFlag("code"),
		JSON:    p.BoolFlag("json"),
		Quiet:   p.BoolFlag("quiet", "q"),
		Force:   p.BoolFlag("force"),
		Format:  p.Flag("format"),
		OutDir:  p.Flag("out", "o"),
	}
	if files := p.Flag("file", "f"); files != "" {
		for _, f := range strings.Split(files, ",") {
			if f = strings.TrimSpace(f); f != "" {
				args.Files = append(args.Files, f)
			}
		}
	}
	limit, err := p.FlagInt(20, "limit", "n")
	if err != nil {
		return CmdHelp, args, &UsageError{Msg: err.Error()}
	}
	if limit <= 0 {
		return CmdHelp, args, &UsageError{Msg: "--limit must be positive"}
	}
	args.Limit = limit

	if p.BoolFlag("help", "h") {
		return CmdHelp, args, nil
	}
	if p.BoolFlag("version") {
		return CmdVersion, args, nil
	}

	args.Subcommand = p.Positional(1)
	args.Rest = p.PositionalFrom(2)

	switch name := p.Subcommand(); name {
	case "":
		return CmdTUI, args, nil
	case "ask", "a":
		args.Query = strings.Join(p.PositionalFrom(1), " ")
		args.Subcommand, args.Rest = "", nil
		return CmdAsk, args, nil
	case "chat":
		return CmdChat, args, nil
	case "history", "hist":
		return CmdHistory, args, nil
	case "config":
		return CmdConfig, args, nil
	case "version":
		return CmdVersion, args, nil
	case "help":
		return CmdHelp, args, nil
	default:
		return CmdHelp, args, &UsageError{Msg: fmt.Sprintf("unknown command %q", name)}
	}
}

// =============================================================================
// HELP AND VERSION
// =============================================================================

// HandleHelp prints usage.
func HandleHelp(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// VersionInfo is the JSON form of the version command.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// HandleVersion prints version information.
func HandleVersion(w io.Writer, args Args) error {
	info := VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if args.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintf(w, "relaychat %s\n", info.Version)
	if !args.Quiet {
		fmt.Fprintf(w, "  commit:   %s\n", info.GitCommit)
		fmt.Fprintf(w, "  built:    %s\n", info.BuildDate)
		fmt.Fprintf(w, "  go:       %s\n", info.GoVersion)
		fmt.Fprintf(w, "  platform: %s\n", info.Platform)
	}
	return nil
}
