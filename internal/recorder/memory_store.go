package recorder

import (
	"context"
	"sync"

	"github.com/Kaushals112/shadow-aiims-defender/internal/models"
)

// MemoryStore is the in-process append-only event log. A single RWMutex
// serializes appends, which keeps the global log and the per-session index
// in insertion order without any lost updates.
type MemoryStore struct {
	mu        sync.RWMutex
	events    []models.AttackEvent
	bySession map[string][]int
}

// NewMemoryStore creates an empty in-memory event log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bySession: make(map[string][]int)}
}

func (s *MemoryStore) Append(_ context.Context, event models.AttackEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	s.bySession[event.SessionID] = append(s.bySession[event.SessionID], len(s.events)-1)
	return nil
}

func (s *MemoryStore) EventsForSession(_ context.Context, sessionID string) ([]models.AttackEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.bySession[sessionID]
	out := make([]models.AttackEvent, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.events[i])
	}
	return out, nil
}

func (s *MemoryStore) EventsByKind(_ context.Context, kind models.EventKind) ([]models.AttackEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AttackEvent
	for _, e := range s.events {
		if e.EventKind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) All(_ context.Context) ([]models.AttackEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AttackEvent, len(s.events))
	copy(out, s.events)
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events), nil
}
