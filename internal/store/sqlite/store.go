// Package sqlite is an alternate MessageStore backing for
// internal/pipeline, grounded on server/internal/store/store.go's
// modernc.org/sqlite (pure-Go, cgo-free) open/migrate pattern and its
// idempotent ALTER TABLE column-addition idiom. The in-memory store
// remains the conformant default; this implementation exercises the
// dependency the teacher ships for callers that want messages to
// survive a restart.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/google/uuid"

	"termchat/internal/pipeline"
)

// Store persists pipeline.StoredMessage rows in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database and runs migrations.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite: database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	st := &Store{db: db}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("sqlite message store opened", "path", path)
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS messages (
	message_id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	text TEXT NOT NULL,
	timestamp_ms INTEGER NOT NULL,
	status INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp_ms);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: run migrations: %w", err)
	}

	// Idempotent column additions for future schema growth; ignore
	// errors for columns that already exist.
	for _, stmt := range []string{
		`ALTER TABLE messages ADD COLUMN edited_at_ms INTEGER NOT NULL DEFAULT 0`,
	} {
		_, _ = s.db.ExecContext(ctx, stmt)
	}

	if err := s.migrateRooms(ctx); err != nil {
		return err
	}

	slog.Debug("sqlite message store migrations applied")
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Save implements pipeline.MessageStore.
func (s *Store) Save(msg pipeline.StoredMessage) error {
	const q = `
INSERT INTO messages (message_id, conversation_id, sender_id, text, timestamp_ms, status)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(message_id) DO UPDATE SET status = excluded.status
`
	_, err := s.db.ExecContext(context.Background(), q,
		msg.MessageID.String(), msg.ConversationID.String(), msg.SenderID, msg.Text, msg.Timestamp, int(msg.Status))
	if err != nil {
		return fmt.Errorf("sqlite: save message: %w", err)
	}
	return nil
}

// UpdateStatus implements pipeline.MessageStore.
func (s *Store) UpdateStatus(messageID uuid.UUID, status pipeline.Status) error {
	const q = `UPDATE messages SET status = ? WHERE message_id = ?`
	result, err := s.db.ExecContext(context.Background(), q, int(status), messageID.String())
	if err != nil {
		return fmt.Errorf("sqlite: update status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite: unknown message %s", messageID)
	}
	return nil
}

// GetConversation implements pipeline.MessageStore.
func (s *Store) GetConversation(conversationID uuid.UUID) ([]pipeline.StoredMessage, error) {
	const q = `
SELECT message_id, conversation_id, sender_id, text, timestamp_ms, status
FROM messages WHERE conversation_id = ? ORDER BY timestamp_ms ASC
`
	rows, err := s.db.QueryContext(context.Background(), q, conversationID.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite: query conversation: %w", err)
	}
	defer rows.Close()

	var out []pipeline.StoredMessage
	for rows.Next() {
		var (
			messageIDStr, conversationIDStr, senderID, text string
			timestamp                                       uint64
			status                                          int
		)
		if err := rows.Scan(&messageIDStr, &conversationIDStr, &senderID, &text, &timestamp, &status); err != nil {
			return nil, fmt.Errorf("sqlite: scan message row: %w", err)
		}
		messageID, err := uuid.Parse(messageIDStr)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse message id: %w", err)
		}
		convID, err := uuid.Parse(conversationIDStr)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse conversation id: %w", err)
		}
		out = append(out, pipeline.StoredMessage{
			MessageID: messageID, ConversationID: convID, SenderID: senderID,
			Text: text, Timestamp: timestamp, Status: pipeline.Status(status),
		})
	}
	return out, rows.Err()
}

var _ pipeline.MessageStore = (*Store)(nil)
