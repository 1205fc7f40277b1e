// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/relaychat/internal/backend"
	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/util"
)

// =============================================================================
// TYPES
// =============================================================================

// Conversation is a stored conversation with its messages in order.
type Conversation struct {
	ID        string
	Backend   backend.Kind
	Title     string
	StartedAt time.Time
	Messages  []model.Message
}

// ConversationMeta is the listing view of a conversation.
type ConversationMeta struct {
	ID           string
	Backend      backend.Kind
	Title        string
	StartedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}

// ErrConversationNotFound is returned when an ID does not exist.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

// ConversationError represents a conversation-related error.
type ConversationError struct {
	Message string
}

// Error implements the error interface.
func (e *ConversationError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing conversation errors.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// TitleLength caps the stored title, taken from the first user message.
const TitleLength = 60

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id         TEXT PRIMARY KEY,
    backend    TEXT NOT NULL,
    title      TEXT NOT NULL DEFAULT '',
    started_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);

CREATE TABLE IF NOT EXISTS messages (
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    seq             INTEGER NOT NULL,
    role            TEXT NOT NULL,
    content         TEXT NOT NULL,
    created_at      INTEGER NOT NULL,
    PRIMARY KEY (conversation_id, seq)
);
`

// =============================================================================
// STORE
// =============================================================================

// Store is a SQLite-backed conversation store. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends msgs to the conversation, creating it on first use.
// Failure notices are dropped; a call with nothing left is a no-op.
func (s *Store) Record(ctx context.Context, conversationID string, kind backend.Kind, msgs ...model.Message) error {
	kept := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.Error {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	if conversationID == "" {
		return errors.New("conversation id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, backend, title, started_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		conversationID, kind.String(), titleFor(kept), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE conversation_id = ?`,
		conversationID).Scan(&seq); err != nil {
		return fmt.Errorf("failed to read sequence: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (conversation_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range kept {
		seq++
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, conversationID, seq, string(m.Role), m.Content, ts.UnixMilli()); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	return tx.Commit()
}

// titleFor picks the first user message as the conversation title.
func titleFor(msgs []model.Message) string {
	for _, m := range msgs {
		if m.Role == model.RoleUser {
			line, _, _ := strings.Cut(strings.TrimSpace(m.Content), "\n")
			return util.TruncateRunes(line, TitleLength)
		}
	}
	return ""
}

// List returns up to limit conversations, most recently updated first.
// A limit of zero or less returns all of them.
func (s *Store) List(ctx context.Context, limit int) ([]ConversationMeta, error) {
	query := `
		SELECT c.id, c.backend, c.title, c.started_at, c.updated_at, COUNT(m.seq)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id
		ORDER BY c.updated_at DESC, c.started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var metas []ConversationMeta
	for rows.Next() {
		var (
			meta             ConversationMeta
			kind             string
			started, updated int64
		)
		if err := rows.Scan(&meta.ID, &kind, &meta.Title, &started, &updated, &meta.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		meta.Backend, _ = backend.Parse(kind)
		meta.StartedAt = time.UnixMilli(started)
		meta.UpdatedAt = time.UnixMilli(updated)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// Load returns the conversation with id and all of its messages.
func (s *Store) Load(ctx context.Context, id string) (*Conversation, error) {
	conv := &Conversation{ID: id}
	var kind string
	var started int64
	err := s.db.QueryRowContext(ctx,
		`SELECT backend, title, started_at FROM conversations WHERE id = ?`, id).
		Scan(&kind, &conv.Title, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	conv.Backend, _ = backend.Parse(kind)
	conv.StartedAt = time.UnixMilli(started)

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role, content string
		var created int64
		if err := rows.Scan(&role, &content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		conv.Messages = append(conv.Messages, model.Message{
			Role:      model.Role(role),
			Content:   content,
			Timestamp: time.UnixMilli(created),
		})
	}
	return conv, rows.Err()
}

// Delete removes a conversation and its messages.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// Resolve maps a listing index ("1" is the most recent) or an ID prefix to
// a full conversation ID.
func (s *Store) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrConversationNotFound
	}
	if n, err := strconv.Atoi(ref); err == nil && n > 0 {
		metas, err := s.List(ctx, n)
		if err != nil {
			return "", err
		}
		if n <= len(metas) {
			return metas[n-1].ID, nil
		}
		return "", ErrConversationNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM conversations WHERE id = ? OR id LIKE ? || '%' LIMIT 2`, ref, ref)
	if err != nil {
		return "", fmt.Errorf("failed to resolve conversation: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		if id == ref {
			return id, nil
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", ErrConversationNotFound
	case 1:
		return ids[0], nil
	default:
		return "", &ConversationError{Message: fmt.Sprintf("ambiguous conversation id %q", ref)}
	}
}
