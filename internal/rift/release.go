package rift

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/riftworks/riftpay/internal/traces"
)

// ReleaseOutcome is the result of a release operation. Idempotent retries
// return the original outcome.
type ReleaseOutcome struct {
	Released        bool   `json:"released"`
	PayoutRef       string `json:"payoutRef,omitempty"`
	ParentCompleted bool   `json:"parentCompleted,omitempty"`
}

// ReleaseWhole releases the full escrow to the seller: guard, freeze
// check, external payout, wallet credit, then the terminal status update.
// A duplicate call returns the prior outcome instead of double-paying.
func (s *Service) ReleaseWhole(ctx context.Context, riftID, actorID string, role Role) (*ReleaseOutcome, error) {
	ctx, span := traces.StartSpan(ctx, "rift.ReleaseWhole",
		attribute.String("rift_id", riftID),
		attribute.String("role", string(role)),
	)
	defer span.End()

	defer s.riftLock(riftID)()

	r, err := s.store.Get(ctx, riftID)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(r, actorID, role); err != nil {
		return nil, err
	}

	// Milestone rifts settle exclusively through their milestone units.
	// The whole-rift unit never sees milestone credits, so paying it
	// would credit the full seller net on top of them.
	if r.AllowsPartialRelease {
		return nil, ErrMilestonesOnly
	}

	// Already released: idempotent retry returns the original outcome.
	if r.Status == StatusReleased {
		return s.priorOutcome(ctx, riftID, UnitWhole, false)
	}
	if r.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: rift is %s", ErrInvalidStatus, r.Status)
	}

	switch r.Status {
	case StatusDelivered, StatusProofSubmitted, StatusUnderReview, StatusDisputed:
	case StatusInTransit:
		if !earlyReleaseAllowed(r.ItemType) {
			return nil, fmt.Errorf("%w: physical items cannot be released before delivery confirmation", ErrInvalidStatus)
		}
	default:
		return nil, fmt.Errorf("%w: rift is %s", ErrInvalidStatus, r.Status)
	}

	if !allowed(r.Status, StatusReleased, role) {
		observeRejected()
		return nil, &TransitionError{From: r.Status, To: StatusReleased, Role: role}
	}

	if err := s.checkFreeze(ctx, riftID); err != nil {
		return nil, err
	}

	ref := "rift:" + r.ID
	rec := &ReleaseRecord{
		RiftID:    r.ID,
		UnitKey:   UnitWhole,
		Status:    ReleaseCreating,
		Amount:    r.Subtotal,
		SellerNet: r.SellerNet,
		CreatedAt: s.now(),
	}
	existing, created, err := s.store.BeginRelease(ctx, rec)
	if err != nil {
		return nil, err
	}
	if !created {
		if existing.Status == ReleaseDone {
			observeRelease(UnitWhole, "duplicate")
			return &ReleaseOutcome{Released: true, PayoutRef: existing.PayoutRef}, nil
		}
		return nil, ErrReleaseInProgress
	}

	payoutRef, err := s.attemptPayout(ctx, r.ID, UnitWhole, r.SellerID, r.SellerNet, ref)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Credit(ctx, r.SellerID, r.SellerNet, "escrow_release", ref); err != nil {
		// The record stays in creating status so the reconciliation pass
		// picks it up; a retry must not attempt a second payout.
		s.logger.Error("CRITICAL: payout sent but wallet credit failed",
			"riftId", r.ID, "seller", r.SellerID, "amount", r.SellerNet, "error", err)
		return nil, fmt.Errorf("failed to credit seller wallet: %w", err)
	}

	if err := s.store.CompleteRelease(ctx, r.ID, UnitWhole, payoutRef); err != nil {
		s.logger.Error("CRITICAL: seller credited but release record not finalized",
			"riftId", r.ID, "error", err)
		return nil, err
	}

	now := s.now()
	r.Status = StatusReleased
	r.ReleasedAt = &now
	r.AutoReleaseScheduled = false
	r.UpdatedAt = now
	if err := s.updateWithRetry(ctx, r); err != nil {
		s.logger.Error("CRITICAL: funds released but rift status update failed",
			"riftId", r.ID, "error", err)
		return nil, err
	}

	s.record(ctx, r.ID, actorID, "rift.released", payoutRef)
	observeTransition(string(StatusReleased))
	observeRelease(UnitWhole, "released")
	return &ReleaseOutcome{Released: true, PayoutRef: payoutRef}, nil
}

// ReleaseMilestone releases a single milestone's amount. Fees are
// computed on the milestone amount so its seller net rounds
// independently. Releasing the last milestone completes the parent rift
// in the same operation.
//
// The rift lock is held only for validation plus guard claim, and again
// for the parent row update. Between those the per-(rift, unit) guard
// record is the sole serialization, so distinct milestones of the same
// rift pay out concurrently.
func (s *Service) ReleaseMilestone(ctx context.Context, riftID string, index int, actorID string, role Role) (*ReleaseOutcome, error) {
	ctx, span := traces.StartSpan(ctx, "rift.ReleaseMilestone",
		attribute.String("rift_id", riftID),
		attribute.Int("milestone", index),
	)
	defer span.End()

	unit := MilestoneUnit(index)
	sellerID, sellerNet, prior, err := s.beginMilestoneRelease(ctx, riftID, index, unit, actorID, role)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		return prior, nil
	}

	ref := fmt.Sprintf("rift:%s:ms:%d", riftID, index)
	payoutRef, err := s.attemptPayout(ctx, riftID, unit, sellerID, sellerNet, ref)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Credit(ctx, sellerID, sellerNet, "milestone_release", ref); err != nil {
		s.logger.Error("CRITICAL: payout sent but wallet credit failed",
			"riftId", riftID, "milestone", index, "seller", sellerID, "amount", sellerNet, "error", err)
		return nil, fmt.Errorf("failed to credit seller wallet: %w", err)
	}

	if err := s.store.CompleteRelease(ctx, riftID, unit, payoutRef); err != nil {
		s.logger.Error("CRITICAL: seller credited but release record not finalized",
			"riftId", riftID, "milestone", index, "error", err)
		return nil, err
	}

	parentCompleted, err := s.finishMilestoneRelease(ctx, riftID, index)
	if err != nil {
		return nil, err
	}

	s.record(ctx, riftID, actorID, "rift.milestone_released", fmt.Sprintf("milestone %d, payout %s", index, payoutRef))
	observeRelease(unit, "released")
	if parentCompleted {
		s.record(ctx, riftID, actorID, "rift.released", "all milestones released")
		observeTransition(string(StatusReleased))
	}
	return &ReleaseOutcome{Released: true, PayoutRef: payoutRef, ParentCompleted: parentCompleted}, nil
}

// beginMilestoneRelease validates the milestone under the rift lock and
// claims its guard record. A non-nil prior outcome means the unit was
// already settled and the caller returns it unchanged.
func (s *Service) beginMilestoneRelease(ctx context.Context, riftID string, index int, unit, actorID string, role Role) (string, string, *ReleaseOutcome, error) {
	defer s.riftLock(riftID)()

	r, err := s.store.Get(ctx, riftID)
	if err != nil {
		return "", "", nil, err
	}

	if err := s.authorize(r, actorID, role); err != nil {
		return "", "", nil, err
	}
	if role == RoleSeller {
		return "", "", nil, &TransitionError{From: r.Status, To: StatusReleased, Role: role}
	}

	if !r.AllowsPartialRelease {
		return "", "", nil, ErrNoMilestones
	}
	if index < 0 || index >= len(r.Milestones) {
		return "", "", nil, ErrMilestoneOutOfRange
	}

	ms := r.Milestones[index]
	if ms.Released {
		prior, err := s.priorOutcome(ctx, riftID, unit, r.Status == StatusReleased)
		return "", "", prior, err
	}

	// Disputed is reachable only from a resolution decision; while the
	// dispute is active checkFreeze blocks below.
	switch r.Status {
	case StatusFunded, StatusProofSubmitted, StatusUnderReview, StatusDisputed:
	default:
		return "", "", nil, fmt.Errorf("%w: rift is %s", ErrInvalidStatus, r.Status)
	}

	if err := s.checkFreeze(ctx, riftID); err != nil {
		return "", "", nil, err
	}

	quote, err := s.calc.Quote(ms.Amount)
	if err != nil {
		return "", "", nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	rec := &ReleaseRecord{
		RiftID:    r.ID,
		UnitKey:   unit,
		Status:    ReleaseCreating,
		Amount:    ms.Amount,
		SellerNet: quote.SellerNet,
		CreatedAt: s.now(),
	}
	existing, created, err := s.store.BeginRelease(ctx, rec)
	if err != nil {
		return "", "", nil, err
	}
	if !created {
		if existing.Status == ReleaseDone {
			observeRelease(unit, "duplicate")
			return "", "", &ReleaseOutcome{Released: true, PayoutRef: existing.PayoutRef}, nil
		}
		return "", "", nil, ErrReleaseInProgress
	}

	return r.SellerID, quote.SellerNet, nil, nil
}

// finishMilestoneRelease marks the milestone released on a fresh read
// and converges the parent once every milestone is settled. Convergence
// is evaluated against state re-read under the lock, never a cached
// count.
func (s *Service) finishMilestoneRelease(ctx context.Context, riftID string, index int) (bool, error) {
	defer s.riftLock(riftID)()

	r, err := s.store.Get(ctx, riftID)
	if err != nil {
		s.logger.Error("CRITICAL: milestone funds released but rift re-read failed",
			"riftId", riftID, "milestone", index, "error", err)
		return false, err
	}

	now := s.now()
	ms := r.Milestones[index]
	ms.Released = true
	ms.ReleasedAt = &now
	ms.AutoReleaseAt = nil

	parentCompleted := true
	for _, m := range r.Milestones {
		if !m.Released {
			parentCompleted = false
			break
		}
	}
	if parentCompleted && !r.Status.IsTerminal() {
		r.Status = StatusReleased
		r.ReleasedAt = &now
		r.AutoReleaseScheduled = false
	}
	r.UpdatedAt = now

	if err := s.updateWithRetry(ctx, r); err != nil {
		s.logger.Error("CRITICAL: milestone funds released but rift update failed",
			"riftId", riftID, "milestone", index, "error", err)
		return false, err
	}
	return parentCompleted, nil
}

// SubmitMilestoneProof records seller proof for one milestone and starts
// its review window. The deadline is computed from this milestone's own
// proof time, not the rift's funding time.
func (s *Service) SubmitMilestoneProof(ctx context.Context, riftID string, index int, actorID, proofRef string) (*Rift, error) {
	defer s.riftLock(riftID)()

	r, err := s.store.Get(ctx, riftID)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(r, actorID, RoleSeller); err != nil {
		return nil, err
	}
	if !r.AllowsPartialRelease {
		return nil, ErrNoMilestones
	}
	if index < 0 || index >= len(r.Milestones) {
		return nil, ErrMilestoneOutOfRange
	}

	switch r.Status {
	case StatusFunded, StatusProofSubmitted, StatusUnderReview:
	default:
		return nil, fmt.Errorf("%w: rift is %s", ErrInvalidStatus, r.Status)
	}

	ms := r.Milestones[index]
	if ms.Released {
		return nil, fmt.Errorf("%w: milestone %d already released", ErrInvalidStatus, index)
	}
	if proofRef == "" {
		return nil, ErrProofRequired
	}

	now := s.now()
	deadline := now.Add(s.milestoneReview)
	ms.ProofRef = proofRef
	ms.ProofSubmittedAt = &now
	ms.AutoReleaseAt = &deadline
	r.UpdatedAt = now

	if err := s.updateWithRetry(ctx, r); err != nil {
		return nil, err
	}

	s.record(ctx, r.ID, actorID, "rift.milestone_proof", fmt.Sprintf("milestone %d", index))
	return r, nil
}

// attemptPayout runs the external transfer and maps its outcome. On
// failure the guard record is aborted so a later retry can proceed; on
// an indeterminate outcome it is left in creating status on purpose.
func (s *Service) attemptPayout(ctx context.Context, riftID, unit, sellerID, amount, ref string) (string, error) {
	if s.payer == nil {
		return "", nil
	}

	transferID, outcome, err := s.payer.SendRelease(ctx, sellerID, amount, ref)
	switch outcome {
	case PayoutSent:
		return transferID, nil
	case PayoutNoDestination:
		// Valid terminal state: funds stay in the platform wallet.
		return "", nil
	case PayoutIndeterminate:
		observeRelease(unit, "indeterminate")
		s.logger.Warn("payout outcome unknown, leaving release for reconciliation",
			"riftId", riftID, "unit", unit, "error", err)
		return "", fmt.Errorf("%w: %v", ErrPayoutIndeterminate, err)
	default:
		if abortErr := s.store.AbortRelease(ctx, riftID, unit); abortErr != nil {
			s.logger.Error("failed to abort release record after payout failure",
				"riftId", riftID, "unit", unit, "error", abortErr)
		}
		observeRelease(unit, "failed")
		return "", fmt.Errorf("%w: %v", ErrPayoutFailed, err)
	}
}

func (s *Service) checkFreeze(ctx context.Context, riftID string) error {
	if s.freeze == nil {
		return nil
	}
	frozen, reason, err := s.freeze.CheckFreeze(ctx, riftID)
	if err != nil {
		return fmt.Errorf("freeze check failed: %w", err)
	}
	if frozen {
		observeRelease(UnitWhole, "frozen")
		return fmt.Errorf("%w: %s", ErrFrozen, reason)
	}
	return nil
}

// priorOutcome reconstructs the response for an idempotent retry.
func (s *Service) priorOutcome(ctx context.Context, riftID, unitKey string, parentCompleted bool) (*ReleaseOutcome, error) {
	rec, err := s.store.GetRelease(ctx, riftID, unitKey)
	if err != nil {
		// Released without a record should not happen; answer with what
		// we know rather than failing the retry.
		return &ReleaseOutcome{Released: true, ParentCompleted: parentCompleted}, nil
	}
	return &ReleaseOutcome{Released: true, PayoutRef: rec.PayoutRef, ParentCompleted: parentCompleted}, nil
}

// updateWithRetry re-reads and reapplies once on a version conflict.
// Callers hold the per-rift lock, so a conflict means another process
// updated the row; the caller's fields win for the fields it owns.
func (s *Service) updateWithRetry(ctx context.Context, r *Rift) error {
	err := s.store.Update(ctx, r)
	if err == nil || err != ErrVersionConflict {
		return err
	}
	fresh, getErr := s.store.Get(ctx, r.ID)
	if getErr != nil {
		return err
	}
	r.Version = fresh.Version
	return s.store.Update(ctx, r)
}
