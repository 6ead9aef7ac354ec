package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/pagechat/internal/transcript"
)

// PostgresStore persists transcripts in PostgreSQL as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS page_transcripts (
			page_id TEXT PRIMARY KEY,
			transcript JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, pageID string) (transcript.Transcript, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT transcript FROM page_transcripts WHERE page_id=$1`,
		pageID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query transcript: %w", err)
	}
	t, err := transcript.Decode(raw)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, pageID string, t transcript.Transcript) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO page_transcripts (page_id, transcript, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (page_id) DO UPDATE SET
			transcript = EXCLUDED.transcript,
			updated_at = EXCLUDED.updated_at`,
		pageID,
		raw,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert transcript: %w", err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, pageID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM page_transcripts WHERE page_id=$1`, pageID); err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
