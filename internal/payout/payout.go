// Package payout moves wallet funds to external destinations.
//
// Withdrawals run as a saga: hold the funds, attempt the external
// transfer under a bounded timeout, then confirm the hold on success or
// release it on a definite failure. A timed-out attempt is neither: the
// payout stays in processing and the reconciliation pass settles it
// against the provider using the idempotent reference.
package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/riftworks/riftpay/internal/idgen"
	"github.com/riftworks/riftpay/internal/money"
	"github.com/riftworks/riftpay/internal/syncutil"
)

var (
	ErrNotFound      = errors.New("payout: not found")
	ErrValidation    = errors.New("payout: validation failed")
	ErrPayoutFailed  = errors.New("payout: transfer failed")
	ErrIndeterminate = errors.New("payout: transfer outcome unknown")
	// ErrNoDestination: the user has no payout destination configured.
	// Withdrawals reject it; release paths treat it as funds staying in
	// the platform wallet.
	ErrNoDestination = errors.New("payout: no destination configured")
)

// DefaultTimeout bounds a single external transfer attempt.
const DefaultTimeout = 10 * time.Second

// Status tracks a payout through the saga.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Payout is one external transfer attempt.
type Payout struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	Status        Status     `json:"status"`
	Reference     string     `json:"reference"`
	TransferID    string     `json:"transferId,omitempty"`
	FailureReason string     `json:"failureReason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// Store persists payouts.
type Store interface {
	Create(ctx context.Context, p *Payout) error
	Get(ctx context.Context, id string) (*Payout, error)
	GetByReference(ctx context.Context, reference string) (*Payout, error)
	Update(ctx context.Context, p *Payout) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Payout, error)
	ListStuckProcessing(ctx context.Context, before time.Time, limit int) ([]*Payout, error)
}

// Processor executes external transfers. CreatePayout must be idempotent
// per reference so a reconciliation retry never duplicates a transfer.
type Processor interface {
	CreatePayout(ctx context.Context, userID, amount, currency, reference string) (transferID string, err error)
	// FindTransfer reports whether a transfer for the reference exists at
	// the provider. Used by the reconciliation pass.
	FindTransfer(ctx context.Context, reference string) (transferID string, found bool, err error)
}

// HoldLedger is the slice of the ledger the withdrawal saga needs.
type HoldLedger interface {
	Hold(ctx context.Context, userID, amount, reference string) error
	ConfirmHold(ctx context.Context, userID, amount, reference string) error
	ReleaseHold(ctx context.Context, userID, amount, reference string) error
}

// Recorder appends timeline events.
type Recorder interface {
	Record(ctx context.Context, riftID, actor, action, detail string)
}

// Service implements withdrawal business logic.
type Service struct {
	store     Store
	ledger    HoldLedger
	processor Processor
	currency  string
	timeout   time.Duration
	logger    *slog.Logger
	locks     syncutil.ContextShardedMutex
}

// New creates a payout service.
func New(store Store, ledger HoldLedger, processor Processor, currency string) *Service {
	if currency == "" {
		currency = "USD"
	}
	return &Service{
		store:     store,
		ledger:    ledger,
		processor: processor,
		currency:  currency,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}
}

// WithTimeout sets the external transfer attempt timeout.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// WithLogger sets the logger.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

// Withdraw moves funds from a user's wallet to their external
// destination. The hold claims the funds before the provider is called,
// so a crash at any point leaves money either in the wallet or in the
// pending column, never duplicated.
func (s *Service) Withdraw(ctx context.Context, userID, amount string) (*Payout, error) {
	if !money.IsValid(amount) {
		return nil, fmt.Errorf("%w: invalid amount %q", ErrValidation, amount)
	}

	// One withdrawal at a time per user. The saga crosses an external
	// call, so the lock must honor cancellation.
	unlock, err := s.locks.LockContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := time.Now()
	p := &Payout{
		ID:        idgen.WithPrefix("po_"),
		UserID:    userID,
		Amount:    amount,
		Currency:  s.currency,
		Status:    StatusPending,
		Reference: "payout:" + idgen.Hex(8),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.ledger.Hold(ctx, userID, amount, p.Reference); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, p); err != nil {
		if relErr := s.ledger.ReleaseHold(ctx, userID, amount, p.Reference); relErr != nil {
			s.logger.Error("CRITICAL: funds held but payout row and release both failed",
				"user", userID, "amount", amount, "reference", p.Reference, "error", relErr)
		}
		return nil, err
	}

	p.Status = StatusProcessing
	p.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, p); err != nil {
		s.logger.Warn("failed to mark payout processing", "payoutId", p.ID, "error", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	transferID, err := s.processor.CreatePayout(callCtx, userID, amount, s.currency, p.Reference)
	observeDuration(time.Since(start))

	switch {
	case err == nil:
		return s.complete(ctx, p, transferID)

	case errors.Is(err, ErrNoDestination):
		s.fail(ctx, p, "no destination configured")
		if relErr := s.ledger.ReleaseHold(ctx, userID, amount, p.Reference); relErr != nil {
			s.logger.Error("CRITICAL: payout rejected but hold not released",
				"payoutId", p.ID, "error", relErr)
		}
		observeResult("no_destination")
		return p, ErrNoDestination

	case errors.Is(err, context.DeadlineExceeded):
		// The transfer may have gone through. Leave the hold and the
		// processing row for the reconciliation pass.
		s.logger.Warn("payout outcome indeterminate", "payoutId", p.ID, "reference", p.Reference)
		observeResult("indeterminate")
		return p, fmt.Errorf("%w: reference %s", ErrIndeterminate, p.Reference)

	default:
		s.fail(ctx, p, err.Error())
		if relErr := s.ledger.ReleaseHold(ctx, userID, amount, p.Reference); relErr != nil {
			s.logger.Error("CRITICAL: payout failed but hold not released",
				"payoutId", p.ID, "error", relErr)
		}
		observeResult("failed")
		return p, fmt.Errorf("%w: %v", ErrPayoutFailed, err)
	}
}

func (s *Service) complete(ctx context.Context, p *Payout, transferID string) (*Payout, error) {
	if err := s.ledger.ConfirmHold(ctx, p.UserID, p.Amount, p.Reference); err != nil {
		s.logger.Error("CRITICAL: transfer sent but hold not confirmed",
			"payoutId", p.ID, "transferId", transferID, "error", err)
		return nil, err
	}

	now := time.Now()
	p.Status = StatusCompleted
	p.TransferID = transferID
	p.CompletedAt = &now
	p.UpdatedAt = now
	if err := s.store.Update(ctx, p); err != nil {
		s.logger.Error("CRITICAL: transfer sent but payout row not finalized",
			"payoutId", p.ID, "transferId", transferID, "error", err)
		return nil, err
	}
	observeResult("completed")
	return p, nil
}

func (s *Service) fail(ctx context.Context, p *Payout, reason string) {
	now := time.Now()
	p.Status = StatusFailed
	p.FailureReason = reason
	p.UpdatedAt = now
	if err := s.store.Update(ctx, p); err != nil {
		s.logger.Warn("failed to mark payout failed", "payoutId", p.ID, "error", err)
	}
}

// Get returns a payout by ID.
func (s *Service) Get(ctx context.Context, id string) (*Payout, error) {
	return s.store.Get(ctx, id)
}

// ListByUser returns a user's payouts, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*Payout, error) {
	return s.store.ListByUser(ctx, userID, limit)
}

// Reconcile settles payouts stuck in processing longer than the attempt
// timeout by asking the provider whether the transfer exists.
func (s *Service) Reconcile(ctx context.Context, now time.Time) (settled int, err error) {
	stuck, err := s.store.ListStuckProcessing(ctx, now.Add(-s.timeout), 100)
	if err != nil {
		return 0, fmt.Errorf("failed to list stuck payouts: %w", err)
	}

	for _, p := range stuck {
		transferID, found, err := s.processor.FindTransfer(ctx, p.Reference)
		if err != nil {
			s.logger.Warn("payout reconcile lookup failed", "payoutId", p.ID, "error", err)
			continue
		}
		if found {
			if _, err := s.complete(ctx, p, transferID); err != nil {
				continue
			}
			s.logger.Info("reconciled stuck payout as completed", "payoutId", p.ID, "transferId", transferID)
		} else {
			s.fail(ctx, p, "transfer not found at provider")
			if relErr := s.ledger.ReleaseHold(ctx, p.UserID, p.Amount, p.Reference); relErr != nil {
				s.logger.Error("CRITICAL: stuck payout failed but hold not released",
					"payoutId", p.ID, "error", relErr)
				continue
			}
			s.logger.Info("reconciled stuck payout as failed", "payoutId", p.ID)
		}
		settled++
	}
	return settled, nil
}
