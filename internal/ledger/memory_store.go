package ledger

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/riftworks/riftpay/internal/idgen"
	"github.com/riftworks/riftpay/internal/money"
	"github.com/riftworks/riftpay/internal/pagination"
)

// MemoryStore is an in-memory ledger store for development and tests.
type MemoryStore struct {
	balances      map[string]*Balance
	entries       []*Entry
	compensations map[string]bool // "userID:reference" -> already compensated
	mu            sync.RWMutex
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances:      make(map[string]*Balance),
		compensations: make(map[string]bool),
	}
}

func (m *MemoryStore) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if bal, ok := m.balances[userID]; ok {
		cp := *bal
		return &cp, nil
	}
	return &Balance{
		UserID:    userID,
		Available: "0.00",
		Pending:   "0.00",
		TotalIn:   "0.00",
		TotalOut:  "0.00",
		UpdatedAt: time.Now(),
	}, nil
}

// getOrCreate must be called with the write lock held; wallet creation
// happens inside the same critical section as the first mutation.
func (m *MemoryStore) getOrCreate(userID string) *Balance {
	bal, ok := m.balances[userID]
	if !ok {
		bal = &Balance{
			UserID:    userID,
			Available: "0.00",
			Pending:   "0.00",
			TotalIn:   "0.00",
			TotalOut:  "0.00",
		}
		m.balances[userID] = bal
	}
	return bal
}

func (m *MemoryStore) append(userID, entryType, amount, reason, reference string) {
	m.entries = append(m.entries, &Entry{
		ID:        idgen.WithPrefix("le_"),
		UserID:    userID,
		Type:      entryType,
		Amount:    amount,
		Reason:    reason,
		Reference: reference,
		CreatedAt: time.Now(),
	})
}

func (m *MemoryStore) Credit(ctx context.Context, userID, amount, reason, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal := m.getOrCreate(userID)

	avail, _ := money.Parse(bal.Available)
	totalIn, _ := money.Parse(bal.TotalIn)
	add, _ := money.Parse(amount)

	avail.Add(avail, add)
	totalIn.Add(totalIn, add)
	bal.Available = money.Format(avail)
	bal.TotalIn = money.Format(totalIn)
	bal.UpdatedAt = time.Now()

	m.append(userID, EntryCredit, amount, reason, reference)
	return nil
}

func (m *MemoryStore) Debit(ctx context.Context, userID, amount, reason, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal, ok := m.balances[userID]
	if !ok {
		return ErrWalletNotFound
	}

	avail, _ := money.Parse(bal.Available)
	totalOut, _ := money.Parse(bal.TotalOut)
	sub, _ := money.Parse(amount)

	if avail.Cmp(sub) < 0 {
		return ErrInsufficientBalance
	}

	avail.Sub(avail, sub)
	totalOut.Add(totalOut, sub)
	bal.Available = money.Format(avail)
	bal.TotalOut = money.Format(totalOut)
	bal.UpdatedAt = time.Now()

	m.append(userID, EntryDebit, amount, reason, reference)
	return nil
}

func (m *MemoryStore) Hold(ctx context.Context, userID, amount, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal, ok := m.balances[userID]
	if !ok {
		return ErrWalletNotFound
	}

	avail, _ := money.Parse(bal.Available)
	pend, _ := money.Parse(bal.Pending)
	sub, _ := money.Parse(amount)

	if avail.Cmp(sub) < 0 {
		return ErrInsufficientBalance
	}

	avail.Sub(avail, sub)
	pend.Add(pend, sub)
	bal.Available = money.Format(avail)
	bal.Pending = money.Format(pend)
	bal.UpdatedAt = time.Now()

	m.append(userID, EntryHold, amount, "withdrawal_hold", reference)
	return nil
}

func (m *MemoryStore) ConfirmHold(ctx context.Context, userID, amount, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal, ok := m.balances[userID]
	if !ok {
		return ErrWalletNotFound
	}

	pend, _ := money.Parse(bal.Pending)
	totalOut, _ := money.Parse(bal.TotalOut)
	sub, _ := money.Parse(amount)

	if pend.Cmp(sub) < 0 {
		return ErrInsufficientBalance
	}

	pend.Sub(pend, sub)
	totalOut.Add(totalOut, sub)
	bal.Pending = money.Format(pend)
	bal.TotalOut = money.Format(totalOut)
	bal.UpdatedAt = time.Now()

	m.append(userID, EntryWithdrawal, amount, "payout_confirmed", reference)
	return nil
}

func (m *MemoryStore) ReleaseHold(ctx context.Context, userID, amount, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal, ok := m.balances[userID]
	if !ok {
		return ErrWalletNotFound
	}

	avail, _ := money.Parse(bal.Available)
	pend, _ := money.Parse(bal.Pending)
	sub, _ := money.Parse(amount)

	if pend.Cmp(sub) < 0 {
		return ErrInsufficientBalance
	}

	pend.Sub(pend, sub)
	avail.Add(avail, sub)
	bal.Available = money.Format(avail)
	bal.Pending = money.Format(pend)
	bal.UpdatedAt = time.Now()

	m.append(userID, EntryRelease, amount, "hold_released", reference)
	return nil
}

func (m *MemoryStore) Compensate(ctx context.Context, userID, amount, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Idempotency: one compensation per (user, reference)
	key := userID + ":" + reference
	if m.compensations[key] {
		return ErrDuplicateCompensation
	}

	bal, ok := m.balances[userID]
	if !ok {
		return ErrWalletNotFound
	}

	avail, _ := money.Parse(bal.Available)
	add, _ := money.Parse(amount)

	avail.Add(avail, add)
	bal.Available = money.Format(avail)
	bal.UpdatedAt = time.Now()

	m.compensations[key] = true
	m.append(userID, EntryCompensation, amount, "payout_failed", reference)
	return nil
}

func (m *MemoryStore) GetHistory(ctx context.Context, userID string, limit int, opts ...ListOption) ([]*Entry, error) {
	o := applyListOpts(opts)

	m.mu.RLock()
	var matched []*Entry
	for _, e := range m.entries {
		if e.UserID == userID {
			matched = append(matched, e)
		}
	}
	m.mu.RUnlock()

	// Same ordering as the SQL store: (created_at, id) descending.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	var result []*Entry
	for _, e := range matched {
		if len(result) >= limit {
			break
		}
		if o.cursor != nil && !beforeCursor(e, o.cursor) {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

// beforeCursor reports whether e sorts strictly before the cursor position
// in (created_at, id) descending order.
func beforeCursor(e *Entry, c *pagination.Cursor) bool {
	if e.CreatedAt.Before(c.CreatedAt) {
		return true
	}
	return e.CreatedAt.Equal(c.CreatedAt) && e.ID < c.ID
}

func (m *MemoryStore) GetEntries(ctx context.Context, userID string) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for _, e := range m.entries {
		if e.UserID == userID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *MemoryStore) SumAllBalances(ctx context.Context) (string, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	available := big.NewInt(0)
	pending := big.NewInt(0)
	for _, bal := range m.balances {
		a, _ := money.Parse(bal.Available)
		p, _ := money.Parse(bal.Pending)
		available.Add(available, a)
		pending.Add(pending, p)
	}
	return money.Format(available), money.Format(pending), nil
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]string, 0, len(m.balances))
	for id := range m.balances {
		users = append(users, id)
	}
	return users, nil
}
