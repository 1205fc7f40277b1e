// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"
	"unicode/utf8"
)

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		expected string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"ellipsis", "hello world", 8, "hello..."},
		{"tiny", "hello", 2, "he"},
		{"zero", "hello", 0, ""},
		{"multibyte", "héllo wörld", 8, "héllo..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateRunes(tt.input, tt.max); got != tt.expected {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.expected)
			}
		})
	}
}

func TestTruncateWidth(t *testing.T) {
	if got := TruncateWidth("hello", 10); got != "hello" {
		t.Errorf("TruncateWidth short = %q", got)
	}
	if got := TruncateWidth("hello world", 8); got != "hello..." {
		t.Errorf("TruncateWidth = %q, want 'hello...'", got)
	}

	// Each CJK character is two columns wide.
	got := TruncateWidth("日本語のテキスト", 7)
	if w := StringWidth(got); w > 7 {
		t.Errorf("TruncateWidth CJK width = %d, want <= 7 (%q)", w, got)
	}
	if StringWidth("日本") != 4 {
		t.Errorf("StringWidth(日本) = %d, want 4", StringWidth("日本"))
	}
}

func TestTruncateBytes(t *testing.T) {
	s := "aé" // 'é' is two bytes
	if got := TruncateBytes(s, 2); got != "a" {
		t.Errorf("TruncateBytes split a rune: %q", got)
	}
	if got := TruncateBytes(s, 3); got != s {
		t.Errorf("TruncateBytes(%q, 3) = %q", s, got)
	}
	long := "日本語日本語"
	for i := 0; i <= len(long); i++ {
		if got := TruncateBytes(long, i); !utf8.ValidString(got) {
			t.Fatalf("TruncateBytes(%d) produced invalid UTF-8", i)
		}
	}
}

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "file.txt")

	if err := AtomicWriteFile(path, []byte("first"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("second"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile overwrite: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q, want 'second'", data)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}
