package memory

import (
	"context"
	"sync"
	"time"

	"github.com/haithamq/visaflow/internal/core/domain"
)

type entry struct {
	blob      []byte
	expiresAt time.Time
}

// Store is an in-process checkpoint store with per-key TTL. Suitable for
// development and tests; production uses the Postgres store.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

func New() *Store {
	return &Store{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, domain.ErrCheckpointNotFound
	}

	blob := make([]byte, len(e.blob))
	copy(blob, e.blob)
	return blob, nil
}

func (s *Store) Set(_ context.Context, key string, blob []byte, ttl time.Duration) error {
	stored := make([]byte, len(blob))
	copy(stored, blob)

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry{blob: stored, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

// CleanupExpired removes expired entries and reports how many were dropped.
func (s *Store) CleanupExpired() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
