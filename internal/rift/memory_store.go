package rift

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory rift store for development and tests.
type MemoryStore struct {
	rifts      map[string]*Rift
	releases   map[string]*ReleaseRecord // riftID + "|" + unitKey
	nextNumber int64
	mu         sync.RWMutex
}

// NewMemoryStore creates a new in-memory rift store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rifts:    make(map[string]*Rift),
		releases: make(map[string]*ReleaseRecord),
	}
}

func releaseKey(riftID, unitKey string) string {
	return riftID + "|" + unitKey
}

// cloneRift deep-copies a rift so callers never mutate stored state
// before a successful Update.
func cloneRift(r *Rift) *Rift {
	cp := *r
	if len(r.Milestones) > 0 {
		cp.Milestones = make([]*Milestone, len(r.Milestones))
		for i, ms := range r.Milestones {
			m := *ms
			cp.Milestones[i] = &m
		}
	}
	return &cp
}

func (m *MemoryStore) Create(ctx context.Context, r *Rift) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextNumber++
	r.Number = m.nextNumber
	m.rifts[r.ID] = cloneRift(r)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Rift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rifts[id]
	if !ok {
		return nil, ErrRiftNotFound
	}
	return cloneRift(r), nil
}

// Update applies a compare-and-swap on the version counter.
func (m *MemoryStore) Update(ctx context.Context, r *Rift) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.rifts[r.ID]
	if !ok {
		return ErrRiftNotFound
	}
	if stored.Version != r.Version {
		return ErrVersionConflict
	}
	r.Version++
	m.rifts[r.ID] = cloneRift(r)
	return nil
}

func (m *MemoryStore) ListByParty(ctx context.Context, userID string, limit int) ([]*Rift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Rift
	for _, r := range m.rifts {
		if r.BuyerID == userID || r.SellerID == userID {
			result = append(result, cloneRift(r))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ListDueForRelease(ctx context.Context, now time.Time, limit int) ([]*Rift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Rift
	for _, r := range m.rifts {
		if len(result) >= limit {
			break
		}
		if !r.AutoReleaseScheduled || r.Status.IsTerminal() || r.AutoReleaseAt == nil {
			continue
		}
		if !r.AutoReleaseAt.After(now) {
			result = append(result, cloneRift(r))
		}
	}
	return result, nil
}

func (m *MemoryStore) ListDueMilestones(ctx context.Context, now time.Time, limit int) ([]*Rift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Rift
	for _, r := range m.rifts {
		if len(result) >= limit {
			break
		}
		if !r.AllowsPartialRelease || r.Status.IsTerminal() {
			continue
		}
		for _, ms := range r.Milestones {
			if !ms.Released && ms.AutoReleaseAt != nil && !ms.AutoReleaseAt.After(now) {
				result = append(result, cloneRift(r))
				break
			}
		}
	}
	return result, nil
}

// BeginRelease is the atomic insert-or-return at the heart of the
// concurrency guard: the existence check and the placeholder insert
// happen under one lock acquisition.
func (m *MemoryStore) BeginRelease(ctx context.Context, rec *ReleaseRecord) (*ReleaseRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := releaseKey(rec.RiftID, rec.UnitKey)
	if existing, ok := m.releases[key]; ok {
		cp := *existing
		return &cp, false, nil
	}

	cp := *rec
	m.releases[key] = &cp
	out := cp
	return &out, true, nil
}

func (m *MemoryStore) CompleteRelease(ctx context.Context, riftID, unitKey, payoutRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.releases[releaseKey(riftID, unitKey)]
	if !ok {
		return ErrReleaseNotFound
	}
	now := time.Now()
	rec.Status = ReleaseDone
	rec.PayoutRef = payoutRef
	rec.ReleasedAt = &now
	return nil
}

func (m *MemoryStore) AbortRelease(ctx context.Context, riftID, unitKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.releases, releaseKey(riftID, unitKey))
	return nil
}

func (m *MemoryStore) GetRelease(ctx context.Context, riftID, unitKey string) (*ReleaseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.releases[releaseKey(riftID, unitKey)]
	if !ok {
		return nil, ErrReleaseNotFound
	}
	cp := *rec
	return &cp, nil
}

// ListStaleReleases returns creating records older than before, for the
// reconciliation pass.
func (m *MemoryStore) ListStaleReleases(ctx context.Context, before time.Time, limit int) ([]*ReleaseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*ReleaseRecord
	for _, rec := range m.releases {
		if len(result) >= limit {
			break
		}
		if rec.Status == ReleaseCreating && rec.CreatedAt.Before(before) {
			cp := *rec
			result = append(result, &cp)
		}
	}
	return result, nil
}
