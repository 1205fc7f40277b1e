// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/relaychat/internal/backend"
	"github.com/jeranaias/relaychat/internal/util"
)

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// command is one slash command.
type command struct {
	usage string
	help  string
	run   func(m *Model, args []string) tea.Cmd
}

// commands maps names to handlers. Populated in init to allow /help to
// reference the table.
var commands map[string]command

func init() {
	commands = map[string]command{
		"pin": {
			usage: "/pin <file>...",
			help:  "attach files to every turn",
			run:   (*Model).cmdPin,
		},
		"unpin": {
			usage: "/unpin <file>...",
			help:  "stop attaching files",
			run:   (*Model).cmdUnpin,
		},
		"ctx": {
			usage: "/ctx <file>...",
			help:  "attach files to the next turn only",
			run:   (*Model).cmdCtx,
		},
		"refs": {
			usage: "/refs",
			help:  "list attached files",
			run:   (*Model).cmdRefs,
		},
		"backend": {
			usage: "/backend [cloud|local]",
			help:  "show or switch the backend",
			run:   (*Model).cmdBackend,
		},
		"analyze": {
			usage: "/analyze <file>",
			help:  "review one file",
			run:   (*Model).cmdAnalyze,
		},
		"workspace": {
			usage: "/workspace [dir]",
			help:  "review the sources under dir",
			run:   (*Model).cmdWorkspace,
		},
		"apply": {
			usage: "/apply <file> [line]",
			help:  "insert the last code block into file",
			run:   (*Model).cmdApply,
		},
		"clear": {
			usage: "/clear",
			help:  "start a new conversation",
			run:   func(m *Model, _ []string) tea.Cmd { m.clearConversation(); return nil },
		},
		"help": {
			usage: "/help",
			help:  "list commands",
			run:   (*Model).cmdHelp,
		},
	}
}

// parseCommand splits "/name arg..." into its parts.
func parseCommand(input string) (string, []string) {
	fields := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

func (m *Model) runCommand(input string) tea.Cmd {
	name, args := parseCommand(input)
	cmd, ok := commands[name]
	if !ok {
		m.deps.Panel.AddNotice(fmt.Sprintf("unknown command %q, try /help", "/"+name))
		return nil
	}
	return cmd.run(m, args)
}

func (m *Model) cmdPin(args []string) tea.Cmd {
	if len(args) == 0 {
		m.status = commands["pin"].usage
		return nil
	}
	for _, name := range args {
		if m.deps.Refs.Pin(name) {
			m.deps.Panel.AddNotice("pinned " + name)
		}
	}
	return nil
}

func (m *Model) cmdUnpin(args []string) tea.Cmd {
	if len(args) == 0 {
		m.status = commands["unpin"].usage
		return nil
	}
	for _, name := range args {
		if m.deps.Refs.Unpin(name) {
			m.deps.Panel.AddNotice("unpinned " + name)
		}
	}
	return nil
}

func (m *Model) cmdCtx(args []string) tea.Cmd {
	if len(args) == 0 {
		m.status = commands["ctx"].usage
		return nil
	}
	for _, name := range args {
		if m.deps.Refs.Attach(name) {
			m.deps.Panel.AddNotice("attached " + name + " to the next turn")
		}
	}
	return nil
}

func (m *Model) cmdRefs(_ []string) tea.Cmd {
	pinned, transient := m.deps.Refs.Pinned(), m.deps.Refs.Transient()
	if len(pinned) == 0 && len(transient) == 0 {
		m.deps.Panel.AddNotice("no files attached")
		return nil
	}
	var b strings.Builder
	if len(pinned) > 0 {
		b.WriteString("pinned: " + strings.Join(pinned, ", "))
	}
	if len(transient) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("next turn: " + strings.Join(transient, ", "))
	}
	m.deps.Panel.AddNotice(b.String())
	return nil
}

func (m *Model) cmdBackend(args []string) tea.Cmd {
	if len(args) == 0 {
		m.status = "backend: " + m.deps.Controller.Selected().String()
		return nil
	}
	k, err := backend.Parse(args[0])
	if err != nil {
		m.status = err.Error()
		return nil
	}
	m.switchBackend(k)
	return nil
}

func (m *Model) cmdAnalyze(args []string) tea.Cmd {
	if len(args) != 1 {
		m.status = commands["analyze"].usage
		return nil
	}
	name := args[0]
	data, err := os.ReadFile(name)
	if err != nil {
		m.deps.Panel.AddNotice("analyze: " + err.Error())
		return nil
	}

	m.interrupt()
	m.deps.Panel.AddUser("/analyze " + name)
	code := util.TruncateBytes(string(data), m.opts.MaxFileSize)
	if _, err := m.deps.Controller.Analyze(m.deps.Context, name, code); err != nil {
		m.deps.Panel.AddNotice("not sent: " + err.Error())
		return nil
	}
	return m.startBusy()
}

func (m *Model) cmdWorkspace(args []string) tea.Cmd {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	return m.collectWorkspace(root)
}

func (m *Model) cmdApply(args []string) tea.Cmd {
	if len(args) == 0 || len(args) > 2 {
		m.status = commands["apply"].usage
		return nil
	}
	line := 0
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			m.status = "line must be a non-negative number"
			return nil
		}
		line = n
	}
	m.applyTarget = args[0]
	m.apply(args[0], line)
	return nil
}

func (m *Model) cmdHelp(_ []string) tea.Cmd {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("commands:")
	for _, name := range names {
		c := commands[name]
		fmt.Fprintf(&b, "\n  %-24s %s", c.usage, c.help)
	}
	m.deps.Panel.AddNotice(b.String())
	return nil
}
