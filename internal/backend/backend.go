// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend defines the backend selection and its capability table.
//
// A Kind is chosen once per session. Everything that depends on which backend
// is active (can it stream, can the user pause it) is answered by Caps, never
// by comparing names.
package backend

import (
	"fmt"
	"strings"
)

// Kind selects a transport variant.
type Kind int

const (
	// Cloud is the streaming chat-completion endpoint.
	Cloud Kind = iota
	// Local is the single-shot local generation service.
	Local
)

// Capabilities describes what a backend supports.
type Capabilities struct {
	Streaming bool
	Pause     bool
}

var capabilityTable = map[Kind]Capabilities{
	Cloud: {Streaming: true, Pause: true},
	Local: {Streaming: false, Pause: false},
}

var kindNames = map[Kind]string{
	Cloud: "cloud",
	Local: "local",
}

// All lists every known backend in cycle order.
func All() []Kind {
	return []Kind{Cloud, Local}
}

// Caps returns the capability row for k. Unknown kinds support nothing.
func (k Kind) Caps() Capabilities {
	return capabilityTable[k]
}

// String returns the config/command name of the backend.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("backend(%d)", int(k))
}

// Valid reports whether k is a known backend.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Next returns the backend after k in cycle order.
func (k Kind) Next() Kind {
	all := All()
	for i, candidate := range all {
		if candidate == k {
			return all[(i+1)%len(all)]
		}
	}
	return all[0]
}

// Parse maps a name to a Kind. A few aliases are accepted so config files and
// slash commands can use the wording people expect.
func Parse(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cloud", "stream", "streaming", "deepseek", "remote":
		return Cloud, nil
	case "local", "generate", "single", "single-shot":
		return Local, nil
	default:
		return Cloud, fmt.Errorf("unknown backend %q (want cloud or local)", name)
	}
}

// MarshalText implements encoding.TextMarshaler so Kind works in TOML.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown backend %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
