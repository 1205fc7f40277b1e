// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package refs tracks the file references attached to chat turns.
//
// Pinned references stay attached until unpinned. Transient references ride
// along with the next submit only. Adding a name that is already present, or
// removing one that is not, does nothing.
package refs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/relaychat/internal/util"
)

// DefaultMaxFileSize caps how much of each file is inlined into a prompt.
const DefaultMaxFileSize = 50 * 1024

// Set holds the pinned and transient reference names.
type Set struct {
	mu        sync.Mutex
	pinned    map[string]struct{}
	transient map[string]struct{}
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{
		pinned:    make(map[string]struct{}),
		transient: make(map[string]struct{}),
	}
}

// Normalize returns the canonical form of a file name: cleaned and in NFC,
// so visually identical names compare equal.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return norm.NFC.String(filepath.Clean(name))
}

// Pin adds name to the pinned set. It returns false if nothing changed.
func (s *Set) Pin(name string) bool {
	return s.add(s.pinned, name)
}

// Unpin removes name from the pinned set. It returns false if it was absent.
func (s *Set) Unpin(name string) bool {
	return s.remove(s.pinned, name)
}

// Attach adds name for the next turn only. Names already pinned are ignored.
func (s *Set) Attach(name string) bool {
	s.mu.Lock()
	_, pinned := s.pinned[Normalize(name)]
	s.mu.Unlock()
	if pinned {
		return false
	}
	return s.add(s.transient, name)
}

// Detach removes a transient name.
func (s *Set) Detach(name string) bool {
	return s.remove(s.transient, name)
}

// Pinned returns the pinned names in sorted order.
func (s *Set) Pinned() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.pinned)
}

// Transient returns the transient names in sorted order.
func (s *Set) Transient() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.transient)
}

// TakeTurn returns the names for the current turn (pinned first) and clears
// the transient set.
func (s *Set) TakeTurn() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := sortedKeys(s.pinned)
	for _, name := range sortedKeys(s.transient) {
		if _, dup := s.pinned[name]; !dup {
			names = append(names, name)
		}
	}
	s.transient = make(map[string]struct{})
	return names
}

// Clear drops every reference.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned = make(map[string]struct{})
	s.transient = make(map[string]struct{})
}

func (s *Set) add(m map[string]struct{}, name string) bool {
	name = Normalize(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := m[name]; ok {
		return false
	}
	m[name] = struct{}{}
	return true
}

func (s *Set) remove(m map[string]struct{}, name string) bool {
	name = Normalize(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := m[name]; !ok {
		return false
	}
	delete(m, name)
	return true
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// PROMPT COMPOSITION
// =============================================================================

// ReadFunc loads a referenced file.
type ReadFunc func(name string) ([]byte, error)

// Compose prefixes input with the contents of each referenced file.
func Compose(input string, names []string, read ReadFunc, maxSize int) (string, error) {
	block, err := Context(names, read, maxSize)
	return block + input, err
}

// Context renders each referenced file as a fenced block, ready to be
// prefixed to a message. Files larger than maxSize are truncated.
// Unreadable files are reported in the returned error but do not stop
// the rest.
func Context(names []string, read ReadFunc, maxSize int) (string, error) {
	if len(names) == 0 {
		return "", nil
	}
	if read == nil {
		read = os.ReadFile
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	var b strings.Builder
	var failed []string
	for _, name := range names {
		data, err := read(name)
		if err != nil {
			failed = append(failed, name)
			continue
		}
		content := string(data)
		truncated := false
		if len(content) > maxSize {
			content = util.TruncateBytes(content, maxSize)
			truncated = true
		}
		fmt.Fprintf(&b, "File: %s\n```%s\n%s\n```\n", name, fenceLanguage(name), strings.TrimRight(content, "\n"))
		if truncated {
			fmt.Fprintf(&b, "(truncated to %d bytes)\n", maxSize)
		}
		b.WriteString("\n")
	}

	if len(failed) > 0 {
		return b.String(), fmt.Errorf("could not read %s", strings.Join(failed, ", "))
	}
	return b.String(), nil
}

func fenceLanguage(name string) string {
	return strings.TrimPrefix(filepath.Ext(name), ".")
}
