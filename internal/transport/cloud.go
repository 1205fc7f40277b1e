// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jeranaias/relaychat/internal/backend"
	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/sse"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

const (
	// DefaultCloudURL is the base URL of the default chat endpoint.
	DefaultCloudURL = "https://api.deepseek.com"

	// DefaultCloudModel is the model requested when none is configured.
	DefaultCloudModel = "deepseek-chat"

	chatCompletionsPath = "/chat/completions"
)

// CloudConfig holds the settings for the streaming backend.
type CloudConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	ConnectTimeout time.Duration
	HeaderTimeout  time.Duration
}

// DefaultCloudConfig returns the default streaming backend settings.
func DefaultCloudConfig() CloudConfig {
	return CloudConfig{
		BaseURL:        DefaultCloudURL,
		Model:          DefaultCloudModel,
		ConnectTimeout: DefaultConnectTimeout,
		HeaderTimeout:  DefaultHeaderTimeout,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// CloudClient talks to an OpenAI-compatible chat completions endpoint.
type CloudClient struct {
	mu         sync.RWMutex
	cfg        CloudConfig
	httpClient *http.Client
}

// NewCloudClient creates a client, filling unset fields with defaults.
func NewCloudClient(cfg CloudConfig) *CloudClient {
	cfg = withCloudDefaults(cfg)
	return &CloudClient{
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.ConnectTimeout, cfg.HeaderTimeout),
	}
}

func withCloudDefaults(cfg CloudConfig) CloudConfig {
	def := DefaultCloudConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	return cfg
}

// Kind returns backend.Cloud.
func (c *CloudClient) Kind() backend.Kind { return backend.Cloud }

// Reconfigure swaps endpoint, model and key. Streams already open keep the
// settings they started with.
func (c *CloudClient) Reconfigure(cfg CloudConfig) {
	cfg = withCloudDefaults(cfg)
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

// Config returns the active settings.
func (c *CloudClient) Config() CloudConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// IsConfigured reports whether an API key is set.
func (c *CloudClient) IsConfigured() bool {
	return c.Config().APIKey != ""
}

type chatRequest struct {
	Model    string       `json:"model"`
	Messages []model.Wire `json:"messages"`
	Stream   bool         `json:"stream"`
}

// Open issues a streaming chat request.
func (c *CloudClient) Open(ctx context.Context, req *Request) (Stream, error) {
	cfg := c.Config()
	if cfg.APIKey == "" {
		return nil, fail(backend.Cloud, 0, "API key not configured", ErrNotConfigured)
	}

	payload, err := json.Marshal(chatRequest{
		Model:    cfg.Model,
		Messages: req.Messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fail(backend.Cloud, 0, "failed to encode request", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(cfg.BaseURL, chatCompletionsPath), bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fail(backend.Cloud, 0, "invalid endpoint URL", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("User-Agent", userAgent)

	slog.Debug("cloud request",
		"session", req.SessionID,
		"model", cfg.Model,
		"messages", len(req.Messages),
		"key", MaskKey(cfg.APIKey))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, networkError(backend.Cloud, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel()
		defer resp.Body.Close()
		return nil, statusError(backend.Cloud, resp)
	}

	// Some proxies ignore stream=true and answer in one JSON object.
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType == "application/json" {
		defer cancel()
		defer resp.Body.Close()
		return decodeCompletion(resp.Body)
	}

	return &cloudStream{
		ctx:     ctx,
		cancel:  cancel,
		body:    resp.Body,
		scanner: sse.NewScanner(resp.Body),
		session: req.SessionID,
	}, nil
}

// decodeCompletion turns a non-streamed chat completion into a one-shot stream.
func decodeCompletion(r io.Reader) (Stream, error) {
	body, err := readLimited(r)
	if err != nil {
		return nil, fail(backend.Cloud, 0, "", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fail(backend.Cloud, 0, "malformed JSON response", errors.New("invalid JSON"))
	}
	content := gjson.GetBytes(body, "choices.0.message.content").String()
	if content == "" {
		return nil, fail(backend.Cloud, 0, "no content in response", ErrEmptyResponse)
	}
	return newOnceStream(content, nil), nil
}

// =============================================================================
// STREAM
// =============================================================================

type cloudStream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	body    io.ReadCloser
	scanner *sse.Scanner
	session string
	closed  atomic.Bool
}

func (s *cloudStream) Next() (Event, error) {
	if s.closed.Load() {
		return Event{}, io.EOF
	}

	ev, err := s.scanner.Next()
	if s.closed.Load() {
		return Event{}, io.EOF
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.Close()
			return Event{}, io.EOF
		}
		if aborted(s.ctx) {
			s.Close()
			return Event{}, io.EOF
		}
		s.Close()
		return Event{}, networkError(backend.Cloud, err)
	}

	if ev.Kind == sse.EventEnd {
		if skipped := s.scanner.Parser().Skipped(); skipped > 0 {
			slog.Debug("cloud stream skipped malformed lines", "session", s.session, "skipped", skipped)
		}
		s.Close()
		return Event{Done: true}, nil
	}
	return Event{Delta: ev.Text}, nil
}

func (s *cloudStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	return s.body.Close()
}

// onceStream delivers a single Done event carrying the full answer.
type onceStream struct {
	full      string
	release   func()
	delivered atomic.Bool
	closed    atomic.Bool
}

func newOnceStream(full string, release func()) *onceStream {
	return &onceStream{full: full, release: release}
}

func (s *onceStream) Next() (Event, error) {
	if s.closed.Load() || !s.delivered.CompareAndSwap(false, true) {
		return Event{}, io.EOF
	}
	full := s.full
	return Event{Done: true, Full: &full}, nil
}

func (s *onceStream) Close() error {
	if s.closed.CompareAndSwap(false, true) && s.release != nil {
		s.release()
	}
	return nil
}
