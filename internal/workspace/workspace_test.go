// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestCollect(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":                   "package main\n",
		"web/app.ts":                "export {}\n",
		"README.md":                 "# docs\n",
		"node_modules/lib/index.js": "module.exports = 1\n",
		".git/hooks/pre-commit.rb":  "exit 0\n",
	})

	files, err := Collect(root, DefaultOptions())
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"main.go", "web/app.ts"}, paths)
}

func TestCollect_Limits(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.go": strings.Repeat("a", 100),
		"b.go": strings.Repeat("b", 100),
		"c.go": strings.Repeat("c", 100),
	})

	files, err := Collect(root, Options{MaxFileSize: 10, MaxFiles: 2})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.True(t, files[0].Truncated)
	assert.Len(t, files[0].Content, 10)
}

func TestCollect_Empty(t *testing.T) {
	_, err := Collect(t.TempDir(), DefaultOptions())
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestConcat(t *testing.T) {
	out := Concat([]File{
		{Path: "a.go", Content: "A"},
		{Path: "b.go", Content: "B", Truncated: true},
	})
	assert.Equal(t, "// file: a.go\nA\n\n// file: b.go\nB\n// (truncated)", out)
}
