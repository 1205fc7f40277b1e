// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jeranaias/relaychat/internal/backend"
	"github.com/jeranaias/relaychat/internal/model"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

const (
	// DefaultLocalURL is where the local generation service listens.
	DefaultLocalURL = "http://127.0.0.1:5000"

	// DefaultLocalTimeout bounds one single-shot generation.
	DefaultLocalTimeout = 120 * time.Second

	generatePath = "/generate"
)

// LocalConfig holds the settings for the single-shot backend.
type LocalConfig struct {
	BaseURL        string
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

// DefaultLocalConfig returns the default single-shot backend settings.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		BaseURL:        DefaultLocalURL,
		Timeout:        DefaultLocalTimeout,
		ConnectTimeout: DefaultConnectTimeout,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// LocalClient talks to a generation service that answers in one JSON object.
type LocalClient struct {
	mu         sync.RWMutex
	cfg        LocalConfig
	httpClient *http.Client
}

// NewLocalClient creates a client, filling unset fields with defaults.
func NewLocalClient(cfg LocalConfig) *LocalClient {
	cfg = withLocalDefaults(cfg)
	return &LocalClient{
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.ConnectTimeout, cfg.Timeout),
	}
}

func withLocalDefaults(cfg LocalConfig) LocalConfig {
	def := DefaultLocalConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return cfg
}

// Kind returns backend.Local.
func (c *LocalClient) Kind() backend.Kind { return backend.Local }

// Reconfigure swaps the endpoint and timeout for later requests.
func (c *LocalClient) Reconfigure(cfg LocalConfig) {
	cfg = withLocalDefaults(cfg)
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

// Config returns the active settings.
func (c *LocalClient) Config() LocalConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

type generateRequest struct {
	Prompt   string       `json:"prompt"`
	Messages []model.Wire `json:"messages"`
}

// Open performs the whole generation and returns a stream holding the answer.
// It blocks until the service responds or ctx is cancelled.
func (c *LocalClient) Open(ctx context.Context, req *Request) (Stream, error) {
	cfg := c.Config()

	payload, err := json.Marshal(generateRequest{
		Prompt:   req.Prompt(),
		Messages: req.Messages,
	})
	if err != nil {
		return nil, fail(backend.Local, 0, "failed to encode request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(cfg.BaseURL, generatePath), bytes.NewReader(payload))
	if err != nil {
		return nil, fail(backend.Local, 0, "invalid endpoint URL", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	slog.Debug("local request", "session", req.SessionID, "url", cfg.BaseURL)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, networkError(backend.Local, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(backend.Local, resp)
	}

	body, err := readLimited(resp.Body)
	if err != nil {
		return nil, networkError(backend.Local, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fail(backend.Local, 0, "malformed JSON response", errors.New("invalid JSON"))
	}

	answer := ComposeAnswer(
		gjson.GetBytes(body, "text").String(),
		gjson.GetBytes(body, "code").String(),
		gjson.GetBytes(body, "language").String(),
	)
	if answer == "" {
		return nil, fail(backend.Local, 0, "empty response", ErrEmptyResponse)
	}
	return newOnceStream(answer, nil), nil
}

// ComposeAnswer joins the text and code fields of a single-shot answer: text
// first, then the code as a fenced block.
func ComposeAnswer(text, code, language string) string {
	text = strings.TrimSpace(text)
	code = strings.Trim(code, "\n")

	var b strings.Builder
	b.WriteString(text)
	if strings.TrimSpace(code) != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("```")
		b.WriteString(strings.TrimSpace(language))
		b.WriteString("\n")
		b.WriteString(code)
		b.WriteString("\n```")
	}
	return b.String()
}
