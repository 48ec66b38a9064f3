package state

import (
	"sync"

	"ai-profile-studio/internal/catalog"
)

// Store holds the one session of the process.
type Store struct {
	mu      sync.Mutex
	catalog *catalog.Catalog
	current Snapshot
}

func NewStore(c *catalog.Catalog) *Store {
	return &Store{catalog: c, current: New(c)}
}

func (s *Store) Catalog() *catalog.Catalog {
	return s.catalog
}

func (s *Store) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update applies fn atomically and returns the previous and the new snapshot.
func (s *Store) Update(fn func(Snapshot) Snapshot) (prev, next Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev = s.current
	if fn != nil {
		s.current = fn(s.current)
	}
	return prev, s.current
}
