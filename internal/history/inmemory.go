package history

import (
	"context"
	"sync"

	"github.com/ent0n29/pagechat/internal/transcript"
)

// InMemoryStore keeps transcripts in process memory for local/dev use.
type InMemoryStore struct {
	mu    sync.RWMutex
	pages map[string]transcript.Transcript
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{pages: make(map[string]transcript.Transcript)}
}

func (s *InMemoryStore) Get(_ context.Context, pageID string) (transcript.Transcript, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.pages[pageID]
	if !ok {
		return nil, false, nil
	}
	return t.Clone(), true, nil
}

func (s *InMemoryStore) Set(_ context.Context, pageID string, t transcript.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[pageID] = t.Clone()
	return nil
}

func (s *InMemoryStore) Remove(_ context.Context, pageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, pageID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
