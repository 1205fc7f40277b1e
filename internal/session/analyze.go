// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/relaychat/internal/model"
)

// ErrNothingToAnalyze is returned when an analysis has no code to look at.
var ErrNothingToAnalyze = errors.New("no code to analyze")

const (
	// ReviewPrompt is the system prompt for single-file reviews.
	ReviewPrompt = "You are a professional code review assistant. Analyze the code the user provides and suggest concrete changes."

	// WorkspaceReviewPrompt is the system prompt for whole-project reviews.
	WorkspaceReviewPrompt = "You are a professional code review assistant. Analyze the code of the whole project and suggest concrete changes."
)

// Analyze starts a standalone review session for one piece of code. The
// review is sent without prior history. Only a short request line is
// committed, never the code itself.
func (c *Controller) Analyze(ctx context.Context, name, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", ErrNothingToAnalyze
	}
	label := "the code above"
	block := "```\n" + strings.TrimRight(code, "\n") + "\n```\n\n"
	if name != "" {
		label = name
		block = fmt.Sprintf("File: %s\n", name) + block
	}

	return c.Start(ctx, Submit{
		Input:   fmt.Sprintf("Please analyze %s and suggest improvements.", label),
		Context: block,
		History: []model.Message{},
		Backend: c.Selected(),
		System:  ReviewPrompt,
	})
}

// AnalyzeWorkspace starts a standalone review of concatenated project
// sources. Like Analyze, the sources go out with the request only.
func (c *Controller) AnalyzeWorkspace(ctx context.Context, sources string) (string, error) {
	if strings.TrimSpace(sources) == "" {
		return "", ErrNothingToAnalyze
	}
	return c.Start(ctx, Submit{
		Input:   "Please analyze the project code above and suggest improvements.",
		Context: strings.TrimRight(sources, "\n") + "\n\n",
		History: []model.Message{},
		Backend: c.Selected(),
		System:  WorkspaceReviewPrompt,
	})
}
