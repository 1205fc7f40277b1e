// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/relaychat/internal/backend"
	"github.com/jeranaias/relaychat/internal/model"
)

// =============================================================================
// HELPERS
// =============================================================================

func testRequest() *Request {
	return &Request{
		SessionID: "s-test",
		Messages: model.ForRequest(model.DefaultSystemPrompt, []model.Message{
			model.NewUserMessage("hello"),
		}),
	}
}

func drain(t *testing.T, s Stream) ([]Event, error) {
	t.Helper()
	var events []Event
	for {
		ev, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return events, err
		}
		events = append(events, ev)
	}
}

func sseLine(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"delta": map[string]any{"content": content}}},
	})
	return "data: " + string(b) + "\n\n"
}

// =============================================================================
// CLOUD CLIENT TESTS
// =============================================================================

func TestCloudClient_Stream(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if accept := r.Header.Get("Accept"); accept != "text/event-stream" {
			t.Errorf("Accept = %q", accept)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, part := range []string{"Hel", "lo", "!"} {
			fmt.Fprint(w, sseLine(part))
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, sseLine("after done"))
	}))
	defer server.Close()

	client := NewCloudClient(CloudConfig{BaseURL: server.URL, APIKey: "sk-test"})
	stream, err := client.Open(context.Background(), testRequest())
	require.NoError(t, err)

	events, err := drain(t, stream)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, "Hel", events[0].Delta)
	assert.Equal(t, "lo", events[1].Delta)
	assert.Equal(t, "!", events[2].Delta)
	assert.True(t, events[3].Done)
	assert.Nil(t, events[3].Full)

	assert.True(t, got.Stream)
	assert.Equal(t, DefaultCloudModel, got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
}

func TestCloudClient_BaseURLWithPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer server.Close()

	client := NewCloudClient(CloudConfig{BaseURL: server.URL + "/chat/completions/", APIKey: "k"})
	stream, err := client.Open(context.Background(), testRequest())
	require.NoError(t, err)
	events, err := drain(t, stream)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Done)
}

func TestCloudClient_NotConfigured(t *testing.T) {
	client := NewCloudClient(CloudConfig{})

	_, err := client.Open(context.Background(), testRequest())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, client.IsConfigured())
}

func TestCloudClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		sentinel  error
		wantCause string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, ErrAuthFailed, "bad key"},
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, ErrRateLimited, "slow down"},
		{"server error", http.StatusInternalServerError, "upstream exploded", nil, "upstream exploded"},
		{"empty body", http.StatusBadGateway, "", nil, "Bad Gateway"},
		{"long body cut on rune boundary", http.StatusInternalServerError,
			strings.Repeat("a", 199) + "é and more", nil, strings.Repeat("a", 199) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := NewCloudClient(CloudConfig{BaseURL: server.URL, APIKey: "k"})
			_, err := client.Open(context.Background(), testRequest())

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTransport)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}

			var te *Error
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.status, te.Status)
			assert.Equal(t, tt.wantCause, te.Cause)
			assert.Equal(t, tt.wantCause, Cause(err))
		})
	}
}

func TestCloudClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewCloudClient(CloudConfig{BaseURL: url, APIKey: "k"})
	_, err := client.Open(context.Background(), testRequest())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotEmpty(t, Cause(err))
}

func TestCloudClient_NonStreamedFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"whole answer"}}]}`)
	}))
	defer server.Close()

	client := NewCloudClient(CloudConfig{BaseURL: server.URL, APIKey: "k"})
	stream, err := client.Open(context.Background(), testRequest())
	require.NoError(t, err)

	events, err := drain(t, stream)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Full)
	assert.Equal(t, "whole answer", *events[0].Full)
}

func TestCloudClient_CloseAbortsStream(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseLine("first"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewCloudClient(CloudConfig{BaseURL: server.URL, APIKey: "k"})
	stream, err := client.Open(context.Background(), testRequest())
	require.NoError(t, err)

	ev, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "first", ev.Delta)

	done := make(chan error, 1)
	go func() {
		_, err := stream.Next()
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after Close")
	}

	_, err = stream.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCloudClient_Reconfigure(t *testing.T) {
	client := NewCloudClient(CloudConfig{APIKey: "  k1  "})
	assert.Equal(t, "k1", client.Config().APIKey)

	client.Reconfigure(CloudConfig{APIKey: "k2", Model: "other"})
	cfg := client.Config()
	assert.Equal(t, "k2", cfg.APIKey)
	assert.Equal(t, "other", cfg.Model)
	assert.Equal(t, DefaultCloudURL, cfg.BaseURL)
	assert.Equal(t, backend.Cloud, client.Kind())
}

func TestMaskKey(t *testing.T) {
	masked := MaskKey("sk-secret-value")
	if strings.Contains(masked, "secret") {
		t.Errorf("MaskKey leaked key: %q", masked)
	}
	if got := MaskKey(""); got != "[not set]" {
		t.Errorf("MaskKey(\"\") = %q", got)
	}
}
