package conversation

import (
	"context"
	"sync"

	"github.com/scrypster/recall/pkg/types"
)

// MemoryStore is an in-process Store. History is lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	maxTurns int
	turns    map[string][]types.Turn
}

// NewMemoryStore creates a store keeping maxTurns per user (default 20).
func NewMemoryStore(maxTurns int) *MemoryStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &MemoryStore{maxTurns: maxTurns, turns: make(map[string][]types.Turn)}
}

// History returns a copy of the user's turns.
func (s *MemoryStore) History(_ context.Context, userID string) ([]types.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Turn, len(s.turns[userID]))
	copy(out, s.turns[userID])
	return out, nil
}

// Append adds turns and drops the oldest beyond the bound.
func (s *MemoryStore) Append(_ context.Context, userID string, turns ...types.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := append(s.turns[userID], turns...)
	trimmed := Trim(all, s.maxTurns)
	s.turns[userID] = append([]types.Turn(nil), trimmed...)
	return nil
}

// Clear forgets the user's history.
func (s *MemoryStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, userID)
	return nil
}

var _ Store = (*MemoryStore)(nil)
