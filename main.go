// relaychat - streaming chat relay for cloud and local models.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/relaychat/internal/backend"
	"github.com/jeranaias/relaychat/internal/cli"
	"github.com/jeranaias/relaychat/internal/config"
	"github.com/jeranaias/relaychat/internal/markdown"
	"github.com/jeranaias/relaychat/internal/refs"
	"github.com/jeranaias/relaychat/internal/relay"
	"github.com/jeranaias/relaychat/internal/session"
	"github.com/jeranaias/relaychat/internal/storage"
	"github.com/jeranaias/relaychat/internal/telemetry"
	"github.com/jeranaias/relaychat/internal/transport"
	"github.com/jeranaias/relaychat/internal/ui/chat"
	"github.com/jeranaias/relaychat/internal/workspace"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args, err := cli.Parse(os.Args[1:])
	if err != nil {
		cli.DisplayError(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}

	switch cmd {
	case cli.CmdHelp:
		cli.HandleHelp(os.Stdout)
	case cli.CmdVersion:
		err = cli.HandleVersion(os.Stdout, args)
	case cli.CmdConfig:
		err = cli.HandleConfig(os.Stdout, args)
	default:
		err = run(cmd, args)
	}
	cli.DisplayError(os.Stderr, err)
	os.Exit(cli.ExitCode(err))
}

// app holds the process-wide collaborators built from config.
type app struct {
	cfg   *config.Config
	store *storage.Store
	cloud *transport.CloudClient
	local *transport.LocalClient
}

func (a *app) transports() transport.Registry {
	return transport.NewRegistry(a.cloud, a.local)
}

// run loads config, starts logging and storage, then executes cmd.
func run(cmd cli.Command, args cli.Args) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	_, closeLog, err := telemetry.InitLogger(cfg.Log.Path, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
	} else {
		defer closeLog()
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTelemetry(ctx, cfg.Telemetry.Dir, Version)
		if err != nil {
			slog.Warn("telemetry disabled", "error", err)
		} else {
			defer shutdown()
		}
	}

	a := &app{
		cfg:   cfg,
		cloud: transport.NewCloudClient(cfg.CloudTransport()),
		local: transport.NewLocalClient(cfg.LocalTransport()),
	}
	if !cfg.Storage.Disabled {
		store, err := storage.Open(cfg.Storage.Path)
		if err != nil {
			// RELIABILITY: a broken history database must not block chatting.
			slog.Warn("history disabled", "path", cfg.Storage.Path, "error", err)
			fmt.Fprintf(os.Stderr, "Warning: history disabled: %v\n", err)
		} else {
			a.store = store
			defer store.Close()
		}
	}

	slog.Info("relaychat starting", "command", cmd.String(), "version", Version,
		"backend", cfg.Backend, "model", cfg.Cloud.Model)

	env := cli.NewEnv(cfg, a.transports(), a.store)
	switch cmd {
	case cli.CmdAsk:
		return cli.HandleAsk(ctx, env, args)
	case cli.CmdChat:
		return cli.HandleChat(ctx, env, args)
	case cli.CmdHistory:
		return cli.HandleHistory(ctx, env, args)
	default:
		return runTUI(ctx, a, args)
	}
}

// runTUI starts the chat panel.
func runTUI(ctx context.Context, a *app, args cli.Args) error {
	if !cli.IsStdoutTTY() || !cli.IsTTY() {
		return &cli.UsageError{Msg: "the chat panel needs a terminal; use 'relaychat ask' with pipes"}
	}
	cfg := a.cfg

	kind := cfg.SelectedBackend()
	if args.Backend != "" {
		k, err := backend.Parse(args.Backend)
		if err != nil {
			return &cli.UsageError{Msg: err.Error()}
		}
		kind = k
	}

	md := markdown.New(markdown.Options{
		Style:    markdown.ResolveStyle(cfg.UI.Style),
		WordWrap: cfg.UI.WordWrap,
	})
	panel := chat.NewPanel()
	r := relay.New(panel, md, relay.WithRenderRate(cfg.UI.RenderFPS))

	scfg := session.DefaultConfig()
	scfg.Backend = kind
	if cfg.Cloud.SystemPrompt != "" {
		scfg.SystemPrompt = cfg.Cloud.SystemPrompt
	}
	if a.store != nil {
		scfg.Recorder = a.store
	}
	ctrl := session.New(r, a.transports(), scfg)
	defer ctrl.Dispose()

	set := refs.NewSet()
	for _, f := range args.Files {
		set.Pin(f)
	}

	ws := workspace.DefaultOptions()
	ws.MaxFileSize = cfg.Context.MaxFileSize
	ws.MaxTotal = cfg.Context.WorkspaceMaxSize
	ws.MaxFiles = cfg.Context.WorkspaceFiles

	m := chat.New(chat.Deps{
		Controller: ctrl,
		Relay:      r,
		Panel:      panel,
		Markdown:   md,
		Refs:       set,
		Context:    ctx,
	}, chat.Options{
		RenderFPS:   cfg.UI.RenderFPS,
		MaxFileSize: cfg.Context.MaxFileSize,
		DownloadDir: cfg.UI.DownloadDir,
		Workspace:   ws,
	})

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	// Session events are handled on the program's update loop, so the
	// controller, relay and panel are only touched from one goroutine.
	ctrl.SetDispatcher(func(ev session.Event) { p.Send(ev) })

	if path, err := config.Path(); err == nil {
		w, err := config.Watch(ctx, path, config.DefaultDebounce, func(next *config.Config) {
			a.cloud.Reconfigure(next.CloudTransport())
			a.local.Reconfigure(next.LocalTransport())
			p.Send(chat.NoticeMsg("configuration reloaded"))
		})
		if err != nil {
			slog.Warn("config hot reload disabled", "error", err)
		} else {
			defer w.Close()
		}
	}

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("chat panel: %w", err)
	}
	return nil
}
