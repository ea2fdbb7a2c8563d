// Package store provides durable key-scoped persistence over SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Load when the key has no stored value.
var ErrNotFound = errors.New("key not found")

// Well-known keys for session artifacts. Transcript and report are written
// together after session end and cleared together on user wipe.
const (
	KeyTranscripts = "smart_interview_transcripts_v1"
	KeyReport      = "smart_interview_report_v1"
	KeyChatHistory = "career_chat_history_v1"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS images (
	id         TEXT PRIMARY KEY,
	prompt     TEXT NOT NULL,
	mime_type  TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`

// Store persists JSON values by key plus a bounded image history.
type Store struct {
	db       *sql.DB
	imageCap int
}

// Open opens (or creates) the database at path with WAL enabled.
func Open(path string, imageCap int) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, imageCap: imageCap}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Save marshals value as JSON and upserts it under key.
func (s *Store) Save(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %q: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save %q: %w", key, err)
	}
	return nil
}

// Load unmarshals the value stored under key into dest. Returns ErrNotFound
// when the key is absent.
func (s *Store) Load(ctx context.Context, key string, dest any) error {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("unmarshal %q: %w", key, err)
	}
	return nil
}

// Clear removes the given keys. Missing keys are not an error.
func (s *Store) Clear(ctx context.Context, keys ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			tx.Rollback()
			return fmt.Errorf("clear %q: %w", key, err)
		}
	}
	return tx.Commit()
}

// ImageRecord is one generated image in the history.
type ImageRecord struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	MimeType  string    `json:"mimeType"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
}

// AddImage appends a record to the image history, evicting the oldest
// records beyond the configured capacity.
func (s *Store) AddImage(ctx context.Context, rec ImageRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add image: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO images (id, prompt, mime_type, data, created_at) VALUES (?, ?, ?, ?, ?)
	`, rec.ID, rec.Prompt, rec.MimeType, rec.Data, rec.CreatedAt.UnixMilli())
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert image: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM images WHERE id NOT IN (
			SELECT id FROM images ORDER BY created_at DESC, rowid DESC LIMIT ?
		)
	`, s.imageCap)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("evict images: %w", err)
	}
	return tx.Commit()
}

// Images returns the image history, newest first.
func (s *Store) Images(ctx context.Context) ([]ImageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, prompt, mime_type, data, created_at
		FROM images
		ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	var records []ImageRecord
	for rows.Next() {
		var rec ImageRecord
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.Prompt, &rec.MimeType, &rec.Data, &createdAt); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Nuke removes every stored value and image.
func (s *Store) Nuke(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin nuke: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM kv`); err != nil {
		tx.Rollback()
		return fmt.Errorf("nuke kv: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM images`); err != nil {
		tx.Rollback()
		return fmt.Errorf("nuke images: %w", err)
	}
	return tx.Commit()
}
