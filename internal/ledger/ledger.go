// Package ledger tracks user wallet balances on the platform.
//
// Flow:
//  1. Escrow release credits the seller's available balance
//  2. User withdraws → funds held (available → pending) while the
//     external payout runs
//  3. Payout confirmed → pending cleared; payout failed → compensating
//     release back to available
//
// Every balance-affecting event appends an immutable ledger entry; the
// replayed entry history must always reproduce the stored balance.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/riftworks/riftpay/internal/money"
	"github.com/riftworks/riftpay/internal/pagination"
)

var (
	ErrInsufficientBalance   = errors.New("ledger: insufficient balance")
	ErrWalletNotFound        = errors.New("ledger: wallet not found")
	ErrInvalidAmount         = errors.New("ledger: invalid amount")
	ErrDuplicateCompensation = errors.New("ledger: compensation already applied")
)

// Entry types. An entry never changes after it is written.
const (
	EntryCredit       = "credit"       // escrow release proceeds or dispute refund
	EntryDebit        = "debit"        // direct debit (chargeback clawback)
	EntryHold         = "hold"         // withdrawal hold, available → pending
	EntryWithdrawal   = "withdrawal"   // hold confirmed, pending → paid out
	EntryRelease      = "release"      // hold released back, pending → available
	EntryCompensation = "compensation" // compensating credit after a failed payout
)

// Entry represents an immutable ledger entry.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Amount    string    `json:"amount"`
	Reason    string    `json:"reason,omitempty"`
	Reference string    `json:"reference,omitempty"` // rift ID, payout ID, etc.
	CreatedAt time.Time `json:"createdAt"`
}

// Balance represents a user's wallet balance.
type Balance struct {
	UserID    string    `json:"userId"`
	Available string    `json:"available"` // Can be withdrawn
	Pending   string    `json:"pending"`   // Held for in-flight payouts
	Currency  string    `json:"currency"`
	TotalIn   string    `json:"totalIn"`  // Lifetime credits
	TotalOut  string    `json:"totalOut"` // Lifetime confirmed withdrawals + debits
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListOption configures optional parameters for history queries.
type ListOption func(*listOpts)

type listOpts struct {
	cursor *pagination.Cursor
}

func applyListOpts(opts []ListOption) listOpts {
	var o listOpts
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithCursor filters results to entries before the given cursor position.
func WithCursor(cursor string) ListOption {
	return func(o *listOpts) {
		c, err := pagination.Decode(cursor)
		if err == nil {
			o.cursor = c
		}
	}
}

// Store persists wallet balances and ledger entries. Implementations must
// create the wallet row inside the same transaction as the first mutation,
// and must apply the balance change and the entry insert atomically.
type Store interface {
	GetBalance(ctx context.Context, userID string) (*Balance, error)
	Credit(ctx context.Context, userID, amount, reason, reference string) error
	Debit(ctx context.Context, userID, amount, reason, reference string) error
	Hold(ctx context.Context, userID, amount, reference string) error
	ConfirmHold(ctx context.Context, userID, amount, reference string) error
	ReleaseHold(ctx context.Context, userID, amount, reference string) error
	Compensate(ctx context.Context, userID, amount, reference string) error
	GetHistory(ctx context.Context, userID string, limit int, opts ...ListOption) ([]*Entry, error)
	GetEntries(ctx context.Context, userID string) ([]*Entry, error)
	SumAllBalances(ctx context.Context) (available, pending string, err error)
	ListUsers(ctx context.Context) ([]string, error)
}

// Ledger manages wallet balances.
type Ledger struct {
	store    Store
	currency string
}

// New creates a new ledger.
func New(store Store, currency string) *Ledger {
	return &Ledger{store: store, currency: currency}
}

// GetBalance returns a user's current balance.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	bal, err := l.store.GetBalance(ctx, normalize(userID))
	if err != nil {
		return nil, err
	}
	if bal.Currency == "" {
		bal.Currency = l.currency
	}
	return bal, nil
}

// Credit adds funds to a user's available balance. Idempotency per
// reference is the caller's responsibility (the release concurrency guard
// ensures a release credits at most once).
func (l *Ledger) Credit(ctx context.Context, userID, amount, reason, reference string) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	defer observeOp(EntryCredit)()
	return l.store.Credit(ctx, normalize(userID), amount, reason, reference)
}

// Debit removes funds from a user's available balance. Fails with
// ErrInsufficientBalance without writing an entry when the balance does
// not cover the amount.
func (l *Ledger) Debit(ctx context.Context, userID, amount, reason, reference string) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	defer observeOp(EntryDebit)()
	return l.store.Debit(ctx, normalize(userID), amount, reason, reference)
}

// Hold moves funds from available to pending for an in-flight payout.
func (l *Ledger) Hold(ctx context.Context, userID, amount, reference string) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	defer observeOp(EntryHold)()
	return l.store.Hold(ctx, normalize(userID), amount, reference)
}

// ConfirmHold finalizes a held amount after the external payout succeeded.
func (l *Ledger) ConfirmHold(ctx context.Context, userID, amount, reference string) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	defer observeOp(EntryWithdrawal)()
	return l.store.ConfirmHold(ctx, normalize(userID), amount, reference)
}

// ReleaseHold returns held funds to available after a payout failed.
func (l *Ledger) ReleaseHold(ctx context.Context, userID, amount, reference string) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	defer observeOp(EntryRelease)()
	return l.store.ReleaseHold(ctx, normalize(userID), amount, reference)
}

// Compensate credits back a user's balance after a definitively failed
// external transfer. Idempotent per (user, reference): a second call for
// the same reference returns ErrDuplicateCompensation and writes nothing.
func (l *Ledger) Compensate(ctx context.Context, userID, amount, reference string) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	defer observeOp(EntryCompensation)()
	return l.store.Compensate(ctx, normalize(userID), amount, reference)
}

// CanWithdraw checks if a user has sufficient available balance.
func (l *Ledger) CanWithdraw(ctx context.Context, userID, amount string) (bool, error) {
	amt, ok := money.Parse(amount)
	if !ok {
		return false, ErrInvalidAmount
	}
	bal, err := l.store.GetBalance(ctx, normalize(userID))
	if err != nil {
		return false, err
	}
	avail, _ := money.Parse(bal.Available)
	return avail.Cmp(amt) >= 0, nil
}

// GetHistory returns the most recent ledger entries for a user.
func (l *Ledger) GetHistory(ctx context.Context, userID string, limit int, opts ...ListOption) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.GetHistory(ctx, normalize(userID), limit, opts...)
}

func normalize(userID string) string {
	return strings.TrimSpace(userID)
}

func validateAmount(amount string) error {
	v, ok := money.Parse(amount)
	if !ok || v.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
