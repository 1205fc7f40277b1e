// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package handoff

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/quick"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Block is one fenced code block.
type Block struct {
	Code     string
	Language string

	// Filename is the hint from the info string (```go main.go), if any.
	Filename string
}

var mdParser = goldmark.New().Parser()

// Extract returns the fenced code blocks of a markdown answer in order.
func Extract(markdown string) []Block {
	src := []byte(markdown)
	doc := mdParser.Parse(text.NewReader(src))

	var blocks []Block
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fcb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var code bytes.Buffer
		lines := fcb.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			code.Write(seg.Value(src))
		}

		b := Block{Code: code.String(), Language: string(fcb.Language(src))}
		if fcb.Info != nil {
			fields := strings.Fields(string(fcb.Info.Segment.Value(src)))
			if len(fields) > 1 {
				b.Filename = filepath.Base(fields[1])
			}
		}
		blocks = append(blocks, b)
		return ast.WalkSkipChildren, nil
	})
	return blocks
}

// Last returns the final code block of an answer.
func Last(markdown string) (Block, bool) {
	blocks := Extract(markdown)
	if len(blocks) == 0 {
		return Block{}, false
	}
	return blocks[len(blocks)-1], true
}

// Extension guesses a file extension for the block's language from the
// lexer registry. Unknown languages get ".txt".
func (b Block) Extension() string {
	if b.Filename != "" {
		if ext := filepath.Ext(b.Filename); ext != "" {
			return ext
		}
	}
	if b.Language == "" {
		return ".txt"
	}
	lexer := lexers.Get(b.Language)
	if lexer == nil {
		return ".txt"
	}
	for _, pattern := range lexer.Config().Filenames {
		if strings.HasPrefix(pattern, "*.") && !strings.ContainsAny(pattern[2:], "*?[") {
			return pattern[1:]
		}
	}
	return ".txt"
}

// Suggest returns a filename hint for the nth block of an answer.
func (b Block) Suggest(n int) string {
	if b.Filename != "" {
		return b.Filename
	}
	return fmt.Sprintf("snippet-%d%s", n, b.Extension())
}

// Highlight renders the block with terminal syntax colors. On any error the
// plain code is returned.
func Highlight(b Block, style string) string {
	lang := b.Language
	if lang == "" {
		if lexer := lexers.Analyse(b.Code); lexer != nil {
			lang = lexer.Config().Name
		}
	}
	if lang == "" {
		return b.Code
	}
	if styles.Get(style) == styles.Fallback {
		style = "monokai"
	}

	var out strings.Builder
	if err := quick.Highlight(&out, b.Code, lang, "terminal256", style); err != nil {
		return b.Code
	}
	return out.String()
}
