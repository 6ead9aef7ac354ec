package settings

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps settings in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	current  Settings
	defaults Settings
}

func NewMemoryStore(initial Settings) *MemoryStore {
	d := Defaults()
	return &MemoryStore{current: initial.WithDefaults(d), defaults: d}
}

func (s *MemoryStore) Load(_ context.Context) (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *MemoryStore) Save(_ context.Context, settings Settings) error {
	settings = settings.WithDefaults(s.defaults)
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = settings
	return nil
}
