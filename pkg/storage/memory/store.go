package memory

import (
	"context"
	"sync"

	"klinefeed/internal/memorystore"
)

// Store keeps snapshots in process memory.
type Store struct {
	mu    sync.Mutex
	snaps map[string][]memorystore.Bar
	saves int
}

func NewStore() *Store {
	return &Store{
		snaps: make(map[string][]memorystore.Bar),
	}
}

func (s *Store) Save(_ context.Context, symbol string, bars []memorystore.Bar) error {
	cp := make([]memorystore.Bar, len(bars))
	copy(cp, bars)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[symbol] = cp
	s.saves++
	return nil
}

func (s *Store) Load(_ context.Context, symbol string) ([]memorystore.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy to avoid race
	cp := make([]memorystore.Bar, len(s.snaps[symbol]))
	copy(cp, s.snaps[symbol])
	return cp, nil
}

// Saves returns how many Save calls succeeded.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
