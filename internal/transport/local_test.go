// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// LOCAL CLIENT TESTS
// =============================================================================

func TestLocalClient_TextAndCode(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			t.Errorf("path = %q, want /generate", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"text":"Here you go.","code":"fmt.Println(1)\n","language":"go"}`)
	}))
	defer server.Close()

	client := NewLocalClient(LocalConfig{BaseURL: server.URL})
	stream, err := client.Open(context.Background(), testRequest())
	require.NoError(t, err)

	events, err := drain(t, stream)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.True(t, events[0].Done)
	require.NotNil(t, events[0].Full)
	assert.Equal(t, "Here you go.\n\n```go\nfmt.Println(1)\n```", *events[0].Full)

	assert.Equal(t, "hello", got.Prompt)
	assert.Len(t, got.Messages, 2)
}

func TestLocalClient_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		cause  string
	}{
		{"malformed", http.StatusOK, `{"text":`, "malformed JSON response"},
		{"empty", http.StatusOK, `{"text":"","code":""}`, "empty response"},
		{"status", http.StatusServiceUnavailable, `{"error":"model loading"}`, "model loading"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := NewLocalClient(LocalConfig{BaseURL: server.URL})
			_, err := client.Open(context.Background(), testRequest())

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTransport)
			assert.Equal(t, tt.cause, Cause(err))
		})
	}
}

func TestLocalClient_CancelledContext(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	client := NewLocalClient(LocalConfig{BaseURL: server.URL})
	_, err := client.Open(ctx, testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOnceStream_CloseSuppressesResult(t *testing.T) {
	s := newOnceStream("answer", nil)
	require.NoError(t, s.Close())

	events, err := drain(t, s)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestComposeAnswer(t *testing.T) {
	tests := []struct {
		name             string
		text, code, lang string
		want             string
	}{
		{"text only", "hello", "", "", "hello"},
		{"code only", "", "x := 1", "go", "```go\nx := 1\n```"},
		{"both no lang", "see:", "print(1)", "", "see:\n\n```\nprint(1)\n```"},
		{"neither", "  ", "\n", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComposeAnswer(tt.text, tt.code, tt.lang); got != tt.want {
				t.Errorf("ComposeAnswer() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestPrompt(t *testing.T) {
	req := testRequest()
	if got := req.Prompt(); got != "hello" {
		t.Errorf("Prompt() = %q, want 'hello'", got)
	}
	if got := (&Request{}).Prompt(); got != "" {
		t.Errorf("empty Prompt() = %q", got)
	}
}
