// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"strings"
	"testing"
)

func TestRender_PlainStyleKeepsText(t *testing.T) {
	r := New(Options{Style: "notty", WordWrap: 60})

	out := r.Render("# Title\n\nSome **bold** text.")

	if !strings.Contains(out, "Title") || !strings.Contains(out, "bold") {
		t.Errorf("Render lost content: %q", out)
	}
	if r.Style() != "notty" {
		t.Errorf("Style() = %q, want notty", r.Style())
	}
}

func TestRender_Empty(t *testing.T) {
	r := New(Options{Style: "notty"})
	if got := r.Render("  "); got != "  " {
		t.Errorf("Render(blank) = %q", got)
	}
}

func TestRender_PartialMarkdown(t *testing.T) {
	r := New(Options{Style: "notty"})

	// An unterminated fence mid-stream must still render something.
	out := r.Render("Here:\n```go\nfunc main() {")
	if !strings.Contains(out, "func main()") {
		t.Errorf("partial render lost code: %q", out)
	}
}

func TestResolveStyle_Explicit(t *testing.T) {
	if got := ResolveStyle("dracula"); got != "dracula" {
		t.Errorf("ResolveStyle(dracula) = %q", got)
	}
}

func TestSetWidth(t *testing.T) {
	r := New(Options{Style: "notty", WordWrap: 40})
	r.SetWidth(100)
	if r.wrap != 100 {
		t.Errorf("wrap = %d, want 100", r.wrap)
	}
	r.SetWidth(0)
	if r.wrap != 100 {
		t.Errorf("wrap changed on zero width: %d", r.wrap)
	}
}
