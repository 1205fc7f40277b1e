// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"os"

	"github.com/jeranaias/relaychat/internal/backend"
	"github.com/jeranaias/relaychat/internal/config"
	"github.com/jeranaias/relaychat/internal/relay"
	"github.com/jeranaias/relaychat/internal/session"
	"github.com/jeranaias/relaychat/internal/storage"
	"github.com/jeranaias/relaychat/internal/transport"
)

// Env carries what the line-mode commands share. main builds it once.
type Env struct {
	Config     *config.Config
	Transports transport.Registry

	// Store is nil when history is disabled.
	Store *storage.Store

	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// NewEnv returns an Env wired to the process streams.
func NewEnv(cfg *config.Config, transports transport.Registry, store *storage.Store) *Env {
	return &Env{
		Config:     cfg,
		Transports: transports,
		Store:      store,
		In:         os.Stdin,
		Out:        os.Stdout,
		Err:        os.Stderr,
	}
}

// backend resolves the --backend override against the config.
func (e *Env) backend(args Args) (backend.Kind, error) {
	if args.Backend == "" {
		return e.Config.SelectedBackend(), nil
	}
	k, err := backend.Parse(args.Backend)
	if err != nil {
		return k, &UsageError{Msg: err.Error()}
	}
	return k, nil
}

// newController builds a session controller drawing onto surface. Events
// are handled on the pump goroutine; the controller and relay lock.
func (e *Env) newController(surface relay.Surface, kind backend.Kind) *session.Controller {
	r := relay.New(surface, relay.PlainRenderer)
	cfg := session.DefaultConfig()
	cfg.Backend = kind
	if e.Config.Cloud.SystemPrompt != "" {
		cfg.SystemPrompt = e.Config.Cloud.SystemPrompt
	}
	if e.Store != nil {
		cfg.Recorder = e.Store
	}
	return session.New(r, e.Transports, cfg)
}
