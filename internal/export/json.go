// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/storage"
)

// JSONExporter writes a conversation as indented JSON.
type JSONExporter struct {
	opts Options
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(opts Options) *JSONExporter {
	return &JSONExporter{opts: opts}
}

// jsonDocument is the exported shape.
type jsonDocument struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Backend   string          `json:"backend"`
	StartedAt time.Time       `json:"started_at"`
	Exported  time.Time       `json:"exported_at"`
	Messages  []model.Message `json:"messages"`
}

// Export implements Exporter.
func (e *JSONExporter) Export(conv *storage.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}
	doc := jsonDocument{
		ID:        conv.ID,
		Title:     conv.Title,
		Backend:   conv.Backend.String(),
		StartedAt: conv.StartedAt,
		Exported:  e.opts.now(),
		Messages:  conv.Messages,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// FileExtension implements Exporter.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}
