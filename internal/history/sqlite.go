package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ent0n29/pagechat/internal/transcript"
)

// SQLiteStore persists transcripts in a single-table SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite history: %w", err)
	}
	// One writer keeps per-page writes in issue order.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite history: %w", err)
	}
	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS page_transcripts (
		page_id TEXT PRIMARY KEY,
		transcript TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, pageID string) (transcript.Transcript, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT transcript FROM page_transcripts WHERE page_id = ?`, pageID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query transcript: %w", err)
	}
	t, err := transcript.Decode([]byte(raw))
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, pageID string, t transcript.Transcript) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO page_transcripts (page_id, transcript, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(page_id) DO UPDATE SET
			transcript = excluded.transcript,
			updated_at = excluded.updated_at`,
		pageID, string(raw), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert transcript: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, pageID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM page_transcripts WHERE page_id = ?`, pageID); err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
