package rift

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func deliverDigital(t *testing.T, svc *Service, r *Rift) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.Transition(ctx, r.ID, TransitionRequest{
		Target: StatusInTransit, ActorID: "usr_seller", ActorRole: RoleSeller,
		ProofRef: "proof",
	}); err != nil {
		t.Fatalf("Transition to in_transit failed: %v", err)
	}
	if _, err := svc.Transition(ctx, r.ID, TransitionRequest{
		Target: StatusDelivered, ActorID: "usr_buyer", ActorRole: RoleBuyer,
	}); err != nil {
		t.Fatalf("Transition to delivered failed: %v", err)
	}
}

func TestReleaseWhole_CreditsSellerNet(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	r := createFunded(t, svc, ItemDigital, "100.00", nil)
	deliverDigital(t, svc, r)

	outcome, err := svc.ReleaseWhole(ctx, r.ID, "usr_buyer", RoleBuyer)
	if err != nil {
		t.Fatalf("ReleaseWhole failed: %v", err)
	}
	if !outcome.Released {
		t.Fatal("Expected released outcome")
	}

	if ledger.creditCount() != 1 {
		t.Fatalf("Expected 1 credit, got %d", ledger.creditCount())
	}
	c := ledger.credits[0]
	if c.UserID != "usr_seller" || c.Amount != "95.00" {
		t.Errorf("Credit: user=%s amount=%s", c.UserID, c.Amount)
	}

	updated, _ := svc.Get(ctx, r.ID)
	if updated.Status != StatusReleased {
		t.Errorf("Expected released, got %s", updated.Status)
	}
	if updated.ReleasedAt == nil {
		t.Error("Expected releasedAt stamped")
	}
	if updated.AutoReleaseScheduled {
		t.Error("Release must clear the scheduled flag")
	}
}

func TestReleaseWhole_IdempotentRetry(t *testing.T) {
	svc, ledger := newTestService(t)
	payer := &mockPayer{outcome: PayoutSent}
	svc.WithPayer(payer)
	ctx := context.Background()

	r := createFunded(t, svc, ItemDigital, "100.00", nil)
	deliverDigital(t, svc, r)

	first, err := svc.ReleaseWhole(ctx, r.ID, "usr_buyer", RoleBuyer)
	if err != nil {
		t.Fatalf("First release failed: %v", err)
	}
	second, err := svc.ReleaseWhole(ctx, r.ID, "usr_buyer", RoleBuyer)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}

	if second.PayoutRef != first.PayoutRef {
		t.Errorf("Retry returned different payout ref: %s vs %s", second.PayoutRef, first.PayoutRef)
	}
	if ledger.creditCount() != 1 {
		t.Errorf("Expected exactly 1 credit after retry, got %d", ledger.creditCount())
	}
	if payer.callCount() != 1 {
		t.Errorf("Expected exactly 1 payout attempt, got %d", payer.callCount())
	}
}

func TestReleaseWhole_ConcurrentCallsSingleCredit(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	r := createFunded(t, svc, ItemDigital, "100.00", nil)
	deliverDigital(t, svc, r)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.ReleaseWhole(ctx, r.ID, "usr_buyer", RoleBuyer)
		}()
	}
	wg.Wait()

	if ledger.creditCount() != 1 {
		t.Errorf("Expected exactly 1 credit under concurrency, got %d", ledger.creditCount())
	}
}

func TestReleaseWhole_EarlyReleaseNonPhysicalOnly(t *testing.T) {
	ctx := context.Background()

	// Digital: buyer may release straight from in_transit
	svc, ledger := newTestService(t)
	r := createFunded(t, svc, ItemDigital, "100.00", nil)
	svc.Transition(ctx, r.ID, TransitionRequest{
		Target: StatusInTransit, ActorID: "usr_seller", ActorRole: RoleSeller,
		ProofRef: "proof",
	})

	if _, err := svc.ReleaseWhole(ctx, r.ID, "usr_buyer", RoleBuyer); err != nil {
		t.Fatalf("Early release of digital item failed: %v", err)
	}
	if ledger.creditCount() != 1 {
		t.Errorf("Expected 1 credit, got %d", ledger.creditCount())
	}

	// Physical: no shortcut before delivery confirmation
	svc2, ledger2 := newTestService(t)
	r2 := createFunded(t, svc2, ItemPhysical, "100.00", nil)
	svc2.Transition(ctx, r2.ID, TransitionRequest{
		Target: StatusInTransit, ActorID: "usr_seller", ActorRole: RoleSeller,
		ProofRef: "track_1",
	})

	if _, err := svc2.ReleaseWhole(ctx, r2.ID, "usr_buyer", RoleBuyer); err == nil {
		t.Fatal("Expected early release of physical item to be rejected")
	}
	if ledger2.creditCount() != 0 {
		t.Errorf("Expected no credit, got %d", ledger2.creditCount())
	}
}

func TestReleaseWhole_FrozenByDispute(t *testing.T) {
	svc, ledger := newTestService(t)
	freeze := &mockFreeze{frozen: true, reason: "dispute open"}
	svc.WithFreezeChecker(freeze)
	ctx := context.Background()

	r := createFunded(t, svc, ItemDigital, "100.00", nil)
	deliverDigital(t, svc, r)

	_, err := svc.ReleaseWhole(ctx, r.ID, "usr_buyer", RoleBuyer)
	if !errors.Is(err, ErrFrozen) {
		t.Fatalf("Expected ErrFrozen, got %v", err)
	}
	if ledger.creditCount() != 0 {
		t.Errorf("Frozen release must not credit, got %d credits", ledger.creditCount())
	}

	// Dispute resolved: release proceeds
	freeze.frozen = false
	if _, err := svc.ReleaseWhole(ctx, r.ID, "usr_buyer", RoleBuyer); err != nil {
		t.Fatalf("Release after unfreeze failed: %v", err)
	}
}

func TestReleaseWhole_PayoutFailureIsRetryable(t *testing.T) {
	svc, ledger := newTestService(t)
	payer := &mockPayer{outcome: PayoutFailure}
	svc.WithPayer(payer)
	ctx := context.Background()

	r := createFunded(t, svc, ItemDigital, "100.00", nil)
	deliverDigital(t, svc, r)

	_, err := svc.ReleaseWhole(ctx, r.ID, "usr_buyer", RoleBuyer)
	if !errors.Is(err, ErrPayoutFailed) {
		t.Fatalf("Expected ErrPayoutFailed, got %v", err)
	}
	if ledger.creditCount() != 0 {
		t.Error("Failed payout must not credit")
	}

	// The guard record was aborted, so a retry gets a fresh attempt
	payer.outcome = PayoutSent
	outcome, err := svc.ReleaseWhole(ctx, r.ID, "usr_buyer", RoleBuyer)
	if err != nil {
		t.Fatalf("Retry after failure failed: %v", err)
	}
	if outcome.PayoutRef != "tr_test" {
		t.Errorf("Expected payout ref tr_test, got %s", outcome.PayoutRef)
	}
	if ledger.creditCount() != 1 {
		t.Errorf("Expected 1 credit after retry, got %d", ledger.creditCount())
	}
}

func TestReleaseWhole_IndeterminateBlocksRetry(t *testing.T) {
	svc, ledger := newTestService(t)
	payer := &mockPayer{outcome: PayoutIndeterminate}
	svc.WithPayer(payer)
	ctx := context.Background()

	r := createFunded(t, svc, ItemDigital, "100.00", nil)
	deliverDigital(t, svc, r)

	_, err := svc.ReleaseWhole(ctx, r.ID, "usr_buyer", RoleBuyer)
	if !errors.Is(err, ErrPayoutIndeterminate) {
		t.Fatalf("Expected ErrPayoutIndeterminate, got %v", err)
	}
	if ledger.creditCount() != 0 {
		t.Error("Indeterminate payout must not credit definitively")
	}

	// Record stays in creating status: a blind retry must not trigger a
	// second external payout.
	payer.outcome = PayoutSent
	_, err = svc.ReleaseWhole(ctx, r.ID, "usr_buyer", RoleBuyer)
	if !errors.Is(err, ErrReleaseInProgress) {
		t.Fatalf("Expected ErrReleaseInProgress, got %v", err)
	}
	if payer.callCount() != 1 {
		t.Errorf("Expected no second payout attempt, got %d calls", payer.callCount())
	}

	rec, err := svc.store.GetRelease(ctx, r.ID, UnitWhole)
	if err != nil {
		t.Fatalf("GetRelease failed: %v", err)
	}
	if rec.Status != ReleaseCreating {
		t.Errorf("Expected creating status pending reconciliation, got %s", rec.Status)
	}
}

func fourMilestones() []MilestoneInput {
	return []MilestoneInput{
		{Title: "Spec", Amount: "25.00"},
		{Title: "Design", Amount: "25.00"},
		{Title: "Build", Amount: "25.00"},
		{Title: "Launch", Amount: "25.00"},
	}
}

func twoMilestones() []MilestoneInput {
	return []MilestoneInput{
		{Title: "Draft", Amount: "50.00"},
		{Title: "Final", Amount: "50.00"},
	}
}

func TestReleaseWhole_RejectsMilestoneRift(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	r := createFunded(t, svc, ItemService, "100.00", twoMilestones())

	if _, err := svc.ReleaseMilestone(ctx, r.ID, 0, "usr_buyer", RoleBuyer); err != nil {
		t.Fatalf("ReleaseMilestone failed: %v", err)
	}
	if _, err := svc.Transition(ctx, r.ID, TransitionRequest{
		Target: StatusProofSubmitted, ActorID: "usr_seller", ActorRole: RoleSeller,
		ProofRef: "final_report",
	}); err != nil {
		t.Fatalf("Transition to proof_submitted failed: %v", err)
	}

	// Whole-rift settlement on top of the milestone credit would pay the
	// seller twice; it must be refused outright.
	if _, err := svc.ReleaseWhole(ctx, r.ID, "usr_buyer", RoleBuyer); !errors.Is(err, ErrMilestonesOnly) {
		t.Fatalf("Expected ErrMilestonesOnly, got %v", err)
	}

	if ledger.creditCount() != 1 {
		t.Fatalf("Expected 1 credit, got %d", ledger.creditCount())
	}
	if ledger.credits[0].Amount != "47.50" {
		t.Errorf("Expected milestone net 47.50, got %s", ledger.credits[0].Amount)
	}

	updated, _ := svc.Get(ctx, r.ID)
	if updated.Status == StatusReleased {
		t.Error("Rift must not be released with a milestone outstanding")
	}

	// The remaining milestone still settles normally
	outcome, err := svc.ReleaseMilestone(ctx, r.ID, 1, "usr_buyer", RoleBuyer)
	if err != nil {
		t.Fatalf("ReleaseMilestone(1) failed: %v", err)
	}
	if !outcome.ParentCompleted {
		t.Error("Expected last milestone to complete the parent")
	}
	if ledger.creditCount() != 2 {
		t.Errorf("Expected 2 credits, got %d", ledger.creditCount())
	}
}

func TestReleaseMilestone_LastOneCompletesParent(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	r := createFunded(t, svc, ItemService, "100.00", fourMilestones())

	for i := 0; i < 3; i++ {
		outcome, err := svc.ReleaseMilestone(ctx, r.ID, i, "usr_buyer", RoleBuyer)
		if err != nil {
			t.Fatalf("ReleaseMilestone(%d) failed: %v", i, err)
		}
		if outcome.ParentCompleted {
			t.Errorf("Milestone %d must not complete the parent", i)
		}
		mid, _ := svc.Get(ctx, r.ID)
		if mid.Status != StatusFunded {
			t.Errorf("After milestone %d: expected funded, got %s", i, mid.Status)
		}
	}

	outcome, err := svc.ReleaseMilestone(ctx, r.ID, 3, "usr_buyer", RoleBuyer)
	if err != nil {
		t.Fatalf("ReleaseMilestone(3) failed: %v", err)
	}
	if !outcome.ParentCompleted {
		t.Error("Last milestone must complete the parent in the same operation")
	}

	final, _ := svc.Get(ctx, r.ID)
	if final.Status != StatusReleased {
		t.Errorf("Expected released, got %s", final.Status)
	}
	if final.ReleasedAt == nil {
		t.Error("Expected releasedAt stamped")
	}

	// Four credits of the per-milestone seller net: 25.00 - 5% = 23.75
	if ledger.creditCount() != 4 {
		t.Fatalf("Expected 4 credits, got %d", ledger.creditCount())
	}
	for _, c := range ledger.credits {
		if c.Amount != "23.75" {
			t.Errorf("Expected per-milestone net 23.75, got %s", c.Amount)
		}
	}
}

func TestReleaseMilestone_Idempotent(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	r := createFunded(t, svc, ItemService, "100.00", fourMilestones())

	first, err := svc.ReleaseMilestone(ctx, r.ID, 1, "usr_buyer", RoleBuyer)
	if err != nil {
		t.Fatalf("ReleaseMilestone failed: %v", err)
	}
	second, err := svc.ReleaseMilestone(ctx, r.ID, 1, "usr_buyer", RoleBuyer)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if second.PayoutRef != first.PayoutRef {
		t.Errorf("Retry returned different ref")
	}
	if ledger.creditCount() != 1 {
		t.Errorf("Expected exactly 1 credit, got %d", ledger.creditCount())
	}
}

func TestReleaseMilestone_ConcurrentDistinctMilestones(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	r := createFunded(t, svc, ItemService, "100.00", fourMilestones())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.ReleaseMilestone(ctx, r.ID, i, "usr_buyer", RoleBuyer); err != nil {
				t.Errorf("ReleaseMilestone(%d) failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if ledger.creditCount() != 4 {
		t.Errorf("Expected 4 credits, got %d", ledger.creditCount())
	}
	final, _ := svc.Get(ctx, r.ID)
	if final.Status != StatusReleased {
		t.Errorf("Expected parent released after all milestones, got %s", final.Status)
	}
}

func TestReleaseMilestone_RequiresEligibleState(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	r, _ := svc.Create(ctx, CreateRequest{
		BuyerID: "usr_buyer", SellerID: "usr_seller",
		ItemType: ItemService, Subtotal: "100.00",
		Milestones: fourMilestones(),
	})

	// Not yet funded
	_, err := svc.ReleaseMilestone(ctx, r.ID, 0, "usr_buyer", RoleBuyer)
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("Expected ErrInvalidStatus for draft rift, got %v", err)
	}

	svc2, _ := newTestService(t)
	r2 := createFunded(t, svc2, ItemDigital, "100.00", nil)
	_, err = svc2.ReleaseMilestone(ctx, r2.ID, 0, "usr_buyer", RoleBuyer)
	if err != ErrNoMilestones {
		t.Errorf("Expected ErrNoMilestones, got %v", err)
	}
}

func TestSubmitMilestoneProof_SetsReviewDeadline(t *testing.T) {
	svc, _ := newTestService(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return base })
	ctx := context.Background()

	r := createFunded(t, svc, ItemService, "100.00", fourMilestones())

	updated, err := svc.SubmitMilestoneProof(ctx, r.ID, 2, "usr_seller", "proof_pdf")
	if err != nil {
		t.Fatalf("SubmitMilestoneProof failed: %v", err)
	}

	ms := updated.Milestones[2]
	want := base.Add(3 * 24 * time.Hour)
	if ms.AutoReleaseAt == nil || !ms.AutoReleaseAt.Equal(want) {
		t.Errorf("Expected review deadline %v, got %v", want, ms.AutoReleaseAt)
	}
	if ms.ProofSubmittedAt == nil {
		t.Error("Expected proofSubmittedAt stamped")
	}

	// Other milestones untouched
	if updated.Milestones[0].AutoReleaseAt != nil {
		t.Error("Unrelated milestone got a deadline")
	}

	// Buyer cannot submit seller proof
	if _, err := svc.SubmitMilestoneProof(ctx, r.ID, 0, "usr_buyer", "p"); err != ErrUnauthorized {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
}
