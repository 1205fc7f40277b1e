// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package workspace collects project source files for whole-project reviews.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jeranaias/relaychat/internal/util"
)

// DefaultExtensions are the source types included in a review.
var DefaultExtensions = []string{".js", ".ts", ".py", ".java", ".cpp", ".cs", ".go", ".rb"}

// DefaultSkipDirs are never descended into.
var DefaultSkipDirs = []string{"node_modules", ".git", "vendor", ".venv", "dist", "build"}

// ErrNoSources is returned when nothing matched.
var ErrNoSources = errors.New("no source files found")

// Options bounds a collection.
type Options struct {
	Extensions  []string
	SkipDirs    []string
	MaxFileSize int // bytes per file, larger files are truncated
	MaxTotal    int // bytes overall, collection stops once reached
	MaxFiles    int
}

// DefaultOptions returns conservative limits for prompt-sized output.
func DefaultOptions() Options {
	return Options{
		Extensions:  DefaultExtensions,
		SkipDirs:    DefaultSkipDirs,
		MaxFileSize: 32 * 1024,
		MaxTotal:    256 * 1024,
		MaxFiles:    200,
	}
}

// File is one collected source file.
type File struct {
	Path      string // relative to the root
	Content   string
	Truncated bool
}

// Collect walks root and returns matching files sorted by path.
func Collect(root string, opts Options) ([]File, error) {
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	exts := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		exts[strings.ToLower(e)] = true
	}
	skip := make(map[string]bool, len(opts.SkipDirs))
	for _, d := range opts.SkipDirs {
		skip[d] = true
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && skip[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && exts[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(paths)

	var files []File
	total := 0
	for _, path := range paths {
		if opts.MaxFiles > 0 && len(files) >= opts.MaxFiles {
			break
		}
		if opts.MaxTotal > 0 && total >= opts.MaxTotal {
			break
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		content := string(data)
		f := File{Path: relPath(root, path)}
		if opts.MaxFileSize > 0 && len(content) > opts.MaxFileSize {
			content = util.TruncateBytes(content, opts.MaxFileSize)
			f.Truncated = true
		}
		f.Content = content
		total += len(content)
		files = append(files, f)
	}

	if len(files) == 0 {
		return nil, ErrNoSources
	}
	return files, nil
}

// Concat renders files as one block of text with a header per file.
func Concat(files []File) string {
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "\n\n// file: %s\n%s", f.Path, f.Content)
		if f.Truncated {
			b.WriteString("\n// (truncated)")
		}
	}
	return strings.TrimPrefix(b.String(), "\n\n")
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
