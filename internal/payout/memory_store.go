package payout

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory payout store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	payouts map[string]*Payout
}

// NewMemoryStore creates an empty in-memory payout store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payouts: make(map[string]*Payout)}
}

func clonePayout(p *Payout) *Payout {
	c := *p
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func (s *MemoryStore) Create(ctx context.Context, p *Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payouts[p.ID] = clonePayout(p)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payouts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePayout(p), nil
}

func (s *MemoryStore) GetByReference(ctx context.Context, reference string) (*Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.payouts {
		if p.Reference == reference {
			return clonePayout(p), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Update(ctx context.Context, p *Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payouts[p.ID]; !ok {
		return ErrNotFound
	}
	s.payouts[p.ID] = clonePayout(p)
	return nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Payout
	for _, p := range s.payouts {
		if p.UserID == userID {
			out = append(out, clonePayout(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListStuckProcessing(ctx context.Context, before time.Time, limit int) ([]*Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Payout
	for _, p := range s.payouts {
		if p.Status == StatusProcessing && p.UpdatedAt.Before(before) {
			out = append(out, clonePayout(p))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
