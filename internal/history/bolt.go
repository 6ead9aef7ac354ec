package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ent0n29/pagechat/internal/transcript"
)

var transcriptsBucket = []byte("transcripts")

// BoltStore persists transcripts in a local bbolt file, one key per page.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt history: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(transcriptsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(_ context.Context, pageID string) (transcript.Transcript, bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(transcriptsBucket).Get([]byte(pageID)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("read transcript: %w", err)
	}
	if raw == nil {
		return nil, false, nil
	}
	t, err := transcript.Decode(raw)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (s *BoltStore) Set(_ context.Context, pageID string, t transcript.Transcript) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(transcriptsBucket).Put([]byte(pageID), raw)
	})
	if err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

func (s *BoltStore) Remove(_ context.Context, pageID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(transcriptsBucket).Delete([]byte(pageID))
	})
	if err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	return nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
