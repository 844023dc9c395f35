package timeline

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory event store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byRift map[string][]*Event
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byRift: make(map[string][]*Event)}
}

func (s *MemoryStore) Append(ctx context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *e
	s.byRift[e.RiftID] = append(s.byRift[e.RiftID], &c)
	return nil
}

func (s *MemoryStore) ListByRift(ctx context.Context, riftID string, limit int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.byRift[riftID]
	out := make([]*Event, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		c := *events[i]
		out = append(out, &c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
