// Package dispute freezes rift payouts while a buyer complaint is open.
//
// Flow:
//  1. Buyer opens a dispute → rift moves to disputed, auto-release cancelled
//  2. Admin marks it under review
//  3. Resolution comes from outside: refund, release, or reopen
//  4. Release paths ask CheckFreeze immediately before paying out
package dispute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/riftworks/riftpay/internal/idgen"
	"github.com/riftworks/riftpay/internal/ledger"
	"github.com/riftworks/riftpay/internal/rift"
)

var (
	ErrNotFound      = errors.New("dispute: not found")
	ErrDisputeOpen   = errors.New("dispute: rift already has an open dispute")
	ErrValidation    = errors.New("dispute: validation failed")
	ErrResolved      = errors.New("dispute: already resolved")
	ErrUnknownAction = errors.New("dispute: unknown resolution outcome")
)

// Status tracks a dispute through its lifecycle.
type Status string

const (
	StatusOpen        Status = "open"
	StatusUnderReview Status = "under_review"
	StatusResolved    Status = "resolved"
)

// Outcome is the external resolution decision.
type Outcome string

const (
	OutcomeRefund  Outcome = "refund"
	OutcomeRelease Outcome = "release"
	OutcomeReopen  Outcome = "reopen"
)

// Dispute is one buyer complaint against a rift. At most one dispute per
// rift may be unresolved at a time.
type Dispute struct {
	ID         string     `json:"id"`
	RiftID     string     `json:"riftId"`
	BuyerID    string     `json:"buyerId"`
	Reason     string     `json:"reason"`
	Status     Status     `json:"status"`
	Outcome    Outcome    `json:"outcome,omitempty"`
	ResolvedBy string     `json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Store persists disputes. Create must reject a second unresolved dispute
// for the same rift with ErrDisputeOpen.
type Store interface {
	Create(ctx context.Context, d *Dispute) error
	Get(ctx context.Context, id string) (*Dispute, error)
	GetActiveByRift(ctx context.Context, riftID string) (*Dispute, error)
	Update(ctx context.Context, d *Dispute) error
	ListByRift(ctx context.Context, riftID string) ([]*Dispute, error)
}

// RiftService is the slice of the rift service disputes need.
type RiftService interface {
	Get(ctx context.Context, id string) (*rift.Rift, error)
	MarkDisputed(ctx context.Context, riftID, buyerID string) (*rift.Rift, error)
	Transition(ctx context.Context, riftID string, req rift.TransitionRequest) (*rift.Rift, error)
	ReleaseWhole(ctx context.Context, riftID, actorID string, role rift.Role) (*rift.ReleaseOutcome, error)
	ReleaseMilestone(ctx context.Context, riftID string, index int, actorID string, role rift.Role) (*rift.ReleaseOutcome, error)
}

// Refunder credits the buyer on a refund resolution. Compensate is
// idempotent per (user, reference) so a retried resolve never
// double-credits.
type Refunder interface {
	Compensate(ctx context.Context, userID, amount, reference string) error
}

// Recorder appends timeline events.
type Recorder interface {
	Record(ctx context.Context, riftID, actor, action, detail string)
}

// Service implements dispute business logic.
type Service struct {
	store    Store
	rifts    RiftService
	refunder Refunder
	recorder Recorder
	logger   *slog.Logger
}

// New creates a dispute service.
func New(store Store, rifts RiftService, refunder Refunder) *Service {
	return &Service{
		store:    store,
		rifts:    rifts,
		refunder: refunder,
		logger:   slog.Default(),
	}
}

// WithRecorder sets the timeline recorder.
func (s *Service) WithRecorder(r Recorder) *Service {
	s.recorder = r
	return s
}

// WithLogger sets the logger.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

func (s *Service) record(ctx context.Context, riftID, actor, action, detail string) {
	if s.recorder != nil {
		s.recorder.Record(ctx, riftID, actor, action, detail)
	}
}

// Open files a new dispute. The rift transition runs first so its state
// machine enforces who may dispute and from which states; the dispute row
// is only written once the rift is actually frozen.
func (s *Service) Open(ctx context.Context, riftID, buyerID, reason string) (*Dispute, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrValidation)
	}

	if existing, err := s.store.GetActiveByRift(ctx, riftID); err == nil && existing != nil {
		return nil, ErrDisputeOpen
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if _, err := s.rifts.MarkDisputed(ctx, riftID, buyerID); err != nil {
		return nil, err
	}

	now := time.Now()
	d := &Dispute{
		ID:        idgen.WithPrefix("dsp_"),
		RiftID:    riftID,
		BuyerID:   buyerID,
		Reason:    reason,
		Status:    StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, d); err != nil {
		if errors.Is(err, ErrDisputeOpen) {
			return nil, ErrDisputeOpen
		}
		// The rift is frozen but the dispute row is missing. CheckFreeze
		// still blocks payouts via the rift status, so funds are safe.
		s.logger.Error("CRITICAL: rift disputed but dispute row not persisted",
			"riftId", riftID, "buyer", buyerID, "error", err)
		return nil, err
	}

	s.record(ctx, riftID, buyerID, "dispute.opened", reason)
	observeOpened()
	return d, nil
}

// MarkUnderReview moves an open dispute and its rift into review.
func (s *Service) MarkUnderReview(ctx context.Context, riftID, adminID string) (*Dispute, error) {
	d, err := s.store.GetActiveByRift(ctx, riftID)
	if err != nil {
		return nil, err
	}
	if d.Status == StatusUnderReview {
		return d, nil
	}

	if _, err := s.rifts.Transition(ctx, riftID, rift.TransitionRequest{
		Target:    rift.StatusUnderReview,
		ActorID:   adminID,
		ActorRole: rift.RoleAdmin,
	}); err != nil {
		return nil, err
	}

	d.Status = StatusUnderReview
	d.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, d); err != nil {
		return nil, err
	}

	s.record(ctx, riftID, adminID, "dispute.under_review", "")
	return d, nil
}

// Resolve applies an externally decided outcome to the active dispute.
//
// refund: the rift is refunded and the buyer is credited the full buyer
// total (subtotal plus buyer fee). release: the payout path runs as
// normal once the freeze is lifted. reopen: the rift returns to
// delivered_pending_release for another round of review.
func (s *Service) Resolve(ctx context.Context, riftID, adminID string, outcome Outcome) (*Dispute, error) {
	d, err := s.store.GetActiveByRift(ctx, riftID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrResolved
		}
		return nil, err
	}

	r, err := s.rifts.Get(ctx, riftID)
	if err != nil {
		return nil, err
	}

	switch outcome {
	case OutcomeRefund:
		if _, err := s.rifts.Transition(ctx, riftID, rift.TransitionRequest{
			Target:    rift.StatusRefunded,
			ActorID:   adminID,
			ActorRole: rift.RoleAdmin,
		}); err != nil {
			return nil, err
		}
		// Exactly-once: the ledger claims the reference atomically, so a
		// retried resolve is a no-op on the wallet.
		ref := "rift:" + riftID + ":refund"
		if err := s.refunder.Compensate(ctx, r.BuyerID, r.BuyerTotal, ref); err != nil {
			if !errors.Is(err, ledger.ErrDuplicateCompensation) {
				s.logger.Error("CRITICAL: rift refunded but buyer credit failed",
					"riftId", riftID, "buyer", r.BuyerID, "amount", r.BuyerTotal, "error", err)
				return nil, fmt.Errorf("failed to credit buyer refund: %w", err)
			}
		}

	case OutcomeRelease:
		// Resolve the row first so CheckFreeze stops blocking, then pay.
		// Milestone rifts settle per remaining milestone; everything else
		// through the whole-rift unit.
		if err := s.finalize(ctx, d, adminID, outcome); err != nil {
			return nil, err
		}
		if r.AllowsPartialRelease {
			for _, ms := range r.Milestones {
				if ms.Released {
					continue
				}
				if _, err := s.rifts.ReleaseMilestone(ctx, riftID, ms.Index, adminID, rift.RoleAdmin); err != nil {
					s.logger.Error("dispute resolved for release but milestone payout did not complete",
						"riftId", riftID, "milestone", ms.Index, "error", err)
					return nil, err
				}
			}
		} else if _, err := s.rifts.ReleaseWhole(ctx, riftID, adminID, rift.RoleAdmin); err != nil {
			s.logger.Error("dispute resolved for release but payout did not complete",
				"riftId", riftID, "error", err)
			return nil, err
		}
		s.record(ctx, riftID, adminID, "dispute.resolved", string(outcome))
		observeResolved(string(outcome))
		return d, nil

	case OutcomeReopen:
		if _, err := s.rifts.Transition(ctx, riftID, rift.TransitionRequest{
			Target:    rift.StatusDelivered,
			ActorID:   adminID,
			ActorRole: rift.RoleAdmin,
		}); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, outcome)
	}

	if err := s.finalize(ctx, d, adminID, outcome); err != nil {
		return nil, err
	}
	s.record(ctx, riftID, adminID, "dispute.resolved", string(outcome))
	observeResolved(string(outcome))
	return d, nil
}

func (s *Service) finalize(ctx context.Context, d *Dispute, adminID string, outcome Outcome) error {
	now := time.Now()
	d.Status = StatusResolved
	d.Outcome = outcome
	d.ResolvedBy = adminID
	d.ResolvedAt = &now
	d.UpdatedAt = now
	return s.store.Update(ctx, d)
}

// Get returns a dispute by ID.
func (s *Service) Get(ctx context.Context, id string) (*Dispute, error) {
	return s.store.Get(ctx, id)
}

// ListByRift returns all disputes ever filed against a rift.
func (s *Service) ListByRift(ctx context.Context, riftID string) ([]*Dispute, error) {
	return s.store.ListByRift(ctx, riftID)
}

// CheckFreeze reports whether the rift has an unresolved dispute. Always
// reads the store; release paths call this at payout time, never from a
// cached value.
func (s *Service) CheckFreeze(ctx context.Context, riftID string) (bool, string, error) {
	d, err := s.store.GetActiveByRift(ctx, riftID)
	if errors.Is(err, ErrNotFound) {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	return true, fmt.Sprintf("dispute %s is %s", d.ID, d.Status), nil
}
