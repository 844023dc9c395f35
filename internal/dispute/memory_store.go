package dispute

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory dispute store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	disputes map[string]*Dispute
}

// NewMemoryStore creates an empty in-memory dispute store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{disputes: make(map[string]*Dispute)}
}

func cloneDispute(d *Dispute) *Dispute {
	c := *d
	if d.ResolvedAt != nil {
		t := *d.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

// Create stores a new dispute, rejecting a second unresolved dispute for
// the same rift.
func (s *MemoryStore) Create(ctx context.Context, d *Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.disputes {
		if existing.RiftID == d.RiftID && existing.Status != StatusResolved {
			return ErrDisputeOpen
		}
	}
	s.disputes[d.ID] = cloneDispute(d)
	return nil
}

// Get retrieves a dispute by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.disputes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDispute(d), nil
}

// GetActiveByRift returns the unresolved dispute for a rift, if any.
func (s *MemoryStore) GetActiveByRift(ctx context.Context, riftID string) (*Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.disputes {
		if d.RiftID == riftID && d.Status != StatusResolved {
			return cloneDispute(d), nil
		}
	}
	return nil, ErrNotFound
}

// Update persists dispute changes.
func (s *MemoryStore) Update(ctx context.Context, d *Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.disputes[d.ID]; !ok {
		return ErrNotFound
	}
	s.disputes[d.ID] = cloneDispute(d)
	return nil
}

// ListByRift returns every dispute for a rift, newest first.
func (s *MemoryStore) ListByRift(ctx context.Context, riftID string) ([]*Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Dispute
	for _, d := range s.disputes {
		if d.RiftID == riftID {
			out = append(out, cloneDispute(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
