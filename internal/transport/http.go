// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jeranaias/relaychat/internal/backend"
	"github.com/jeranaias/relaychat/internal/util"
)

const (
	// MaxResponseSize caps a buffered response body.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024

	// DefaultConnectTimeout bounds dialing and the TLS handshake.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultHeaderTimeout bounds the wait for response headers.
	DefaultHeaderTimeout = 60 * time.Second

	// maxErrorBody caps a plain-text error body used as a failure cause.
	maxErrorBody = 200

	userAgent = "relaychat/0.3.0"
)

// newHTTPClient builds a pooled client. There is no overall timeout: streams
// live as long as their context.
func newHTTPClient(connect, header time.Duration) *http.Client {
	if connect <= 0 {
		connect = DefaultConnectTimeout
	}
	if header <= 0 {
		header = DefaultHeaderTimeout
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: connect}).DialContext,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   connect,
			ResponseHeaderTimeout: header,
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
}

// readLimited reads a buffered body, refusing anything over MaxResponseSize.
func readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// statusError maps a non-2xx response to a transport failure. API error
// bodies of the form {"error":{"message":...}} or {"error":"..."} are used as
// the cause when present.
func statusError(kind backend.Kind, resp *http.Response) *Error {
	body, _ := readLimited(resp.Body)

	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = gjson.GetBytes(body, "error").String()
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = util.TruncateBytes(msg, maxErrorBody) + "..."
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = ErrAuthFailed
	case http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	default:
		sentinel = fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return fail(kind, resp.StatusCode, msg, sentinel)
}

// networkError maps a failed round trip to a transport failure.
func networkError(kind backend.Kind, err error) *Error {
	var urlErr *url.Error
	cause := err.Error()
	if errors.As(err, &urlErr) {
		cause = urlErr.Err.Error()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		cause = "timed out: " + cause
	}
	if errors.Is(err, context.DeadlineExceeded) {
		cause = "timed out"
	}
	return fail(kind, 0, cause, err)
}

// aborted reports whether the request was cancelled by the caller.
func aborted(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

// joinURL appends path to base unless base already ends with it.
func joinURL(base, path string) string {
	base = strings.TrimSuffix(base, "/")
	if strings.HasSuffix(base, path) {
		return base
	}
	return base + path
}

// MaskKey returns a loggable fingerprint of an API key.
// SECURITY: Never exposes key fragments.
func MaskKey(key string) string {
	if key == "" {
		return "[not set]"
	}
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("[REDACTED, length=%d, fingerprint=%s]", len(key), hex.EncodeToString(h[:4]))
}
