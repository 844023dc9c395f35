package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/riftworks/riftpay/internal/money"
)

// ReconciliationResult holds the outcome of replaying entries vs the
// stored balance.
type ReconciliationResult struct {
	UserID          string `json:"userId"`
	Match           bool   `json:"match"`
	ReplayAvailable string `json:"replayAvailable"`
	ReplayPending   string `json:"replayPending"`
	ActualAvailable string `json:"actualAvailable"`
	ActualPending   string `json:"actualPending"`
}

// RebuildBalance replays a user's ledger entries to reconstruct the
// balance they imply. The entry history is the source of truth: if the
// replayed balance disagrees with the stored one, a mutation bypassed the
// ledger.
func RebuildBalance(userID string, entries []*Entry) *Balance {
	available := big.NewInt(0)
	pending := big.NewInt(0)
	totalIn := big.NewInt(0)
	totalOut := big.NewInt(0)

	for _, e := range entries {
		amt, ok := money.Parse(e.Amount)
		if !ok {
			continue
		}

		switch e.Type {
		case EntryCredit:
			available.Add(available, amt)
			totalIn.Add(totalIn, amt)
		case EntryDebit:
			available.Sub(available, amt)
			totalOut.Add(totalOut, amt)
		case EntryHold:
			available.Sub(available, amt)
			pending.Add(pending, amt)
		case EntryWithdrawal:
			pending.Sub(pending, amt)
			totalOut.Add(totalOut, amt)
		case EntryRelease:
			pending.Sub(pending, amt)
			available.Add(available, amt)
		case EntryCompensation:
			available.Add(available, amt)
		}
	}

	return &Balance{
		UserID:    userID,
		Available: money.Format(available),
		Pending:   money.Format(pending),
		TotalIn:   money.Format(totalIn),
		TotalOut:  money.Format(totalOut),
	}
}

// Reconcile replays a user's full entry history and compares it against
// the stored balance.
func (l *Ledger) Reconcile(ctx context.Context, userID string) (*ReconciliationResult, error) {
	userID = normalize(userID)

	entries, err := l.store.GetEntries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	actual, err := l.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}

	replay := RebuildBalance(userID, entries)

	replayAvail, _ := money.Parse(replay.Available)
	replayPend, _ := money.Parse(replay.Pending)
	actualAvail, _ := money.Parse(actual.Available)
	actualPend, _ := money.Parse(actual.Pending)

	return &ReconciliationResult{
		UserID:          userID,
		Match:           replayAvail.Cmp(actualAvail) == 0 && replayPend.Cmp(actualPend) == 0,
		ReplayAvailable: replay.Available,
		ReplayPending:   replay.Pending,
		ActualAvailable: actual.Available,
		ActualPending:   actual.Pending,
	}, nil
}

// ReconcileAll replays every wallet's entries against its stored balance.
func (l *Ledger) ReconcileAll(ctx context.Context) ([]*ReconciliationResult, error) {
	users, err := l.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*ReconciliationResult, 0, len(users))
	for _, userID := range users {
		result, err := l.Reconcile(ctx, userID)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// ListUsers returns all user IDs with a wallet.
func (l *Ledger) ListUsers(ctx context.Context) ([]string, error) {
	return l.store.ListUsers(ctx)
}

// SumAllBalances returns the platform-wide available and pending totals.
func (l *Ledger) SumAllBalances(ctx context.Context) (available, pending string, err error) {
	return l.store.SumAllBalances(ctx)
}
