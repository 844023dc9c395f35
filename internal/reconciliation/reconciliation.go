// Package reconciliation audits the ledger and settles stuck money
// movements. It replays wallet histories against stored balances, flags
// release records stuck in creating, and settles payouts left in
// processing by a provider timeout.
package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riftworks/riftpay/internal/ledger"
	"github.com/riftworks/riftpay/internal/rift"
)

// WalletReconciler replays every wallet's entry history against its
// stored balance.
type WalletReconciler interface {
	ReconcileAll(ctx context.Context) ([]*ledger.ReconciliationResult, error)
}

// ReleaseAuditor lists release records stuck in creating status.
type ReleaseAuditor interface {
	ListStaleReleases(ctx context.Context, before time.Time, limit int) ([]*rift.ReleaseRecord, error)
}

// PayoutSettler resolves payouts left in processing after a provider
// timeout, confirming or reversing them.
type PayoutSettler interface {
	Reconcile(ctx context.Context, now time.Time) (int, error)
}

// Report holds the outcome of a full reconciliation run.
type Report struct {
	RanAt            time.Time                      `json:"ranAt"`
	WalletsChecked   int                            `json:"walletsChecked"`
	WalletMismatches []*ledger.ReconciliationResult `json:"walletMismatches,omitempty"`
	StaleReleases    []*rift.ReleaseRecord          `json:"staleReleases,omitempty"`
	SettledPayouts   int                            `json:"settledPayouts"`
}

// Clean reports whether the run found nothing wrong.
func (r *Report) Clean() bool {
	return len(r.WalletMismatches) == 0 && len(r.StaleReleases) == 0
}

// Runner executes reconciliation checks across the money-moving
// subsystems.
type Runner struct {
	wallets    WalletReconciler
	releases   ReleaseAuditor
	payouts    PayoutSettler
	staleAfter time.Duration
	logger     *slog.Logger
}

// NewRunner creates a reconciliation runner. Releases and payouts may be
// nil when the corresponding check is not wired.
func NewRunner(wallets WalletReconciler, releases ReleaseAuditor, payouts PayoutSettler, logger *slog.Logger) *Runner {
	return &Runner{
		wallets:    wallets,
		releases:   releases,
		payouts:    payouts,
		staleAfter: 15 * time.Minute,
		logger:     logger,
	}
}

// SetStaleAfter sets how long a release record may sit in creating
// before it is flagged.
func (r *Runner) SetStaleAfter(d time.Duration) {
	if d > 0 {
		r.staleAfter = d
	}
}

// RunAll executes every wired check and reports findings. Mismatches and
// stale releases are flagged for operator attention, not auto-corrected:
// a wallet whose history disagrees with its balance means a mutation
// bypassed the ledger, and that needs a human.
func (r *Runner) RunAll(ctx context.Context) (*Report, error) {
	start := time.Now()
	defer func() { reconcileDuration.Observe(time.Since(start).Seconds()) }()

	report := &Report{RanAt: start.UTC()}

	results, err := r.wallets.ReconcileAll(ctx)
	if err != nil {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("wallet replay failed: %w", err)
	}
	report.WalletsChecked = len(results)
	for _, res := range results {
		if !res.Match {
			report.WalletMismatches = append(report.WalletMismatches, res)
			r.logger.Error("wallet balance mismatch",
				"userId", res.UserID,
				"replayAvailable", res.ReplayAvailable,
				"actualAvailable", res.ActualAvailable,
				"replayPending", res.ReplayPending,
				"actualPending", res.ActualPending)
		}
	}
	reconcileWalletMismatches.Set(float64(len(report.WalletMismatches)))

	if r.releases != nil {
		stale, err := r.releases.ListStaleReleases(ctx, start.Add(-r.staleAfter), 100)
		if err != nil {
			reconcileErrors.Inc()
			return nil, fmt.Errorf("stale release scan failed: %w", err)
		}
		report.StaleReleases = stale
		for _, rec := range stale {
			r.logger.Warn("release stuck in creating",
				"riftId", rec.RiftID, "unitKey", rec.UnitKey, "since", rec.CreatedAt)
		}
		reconcileStaleReleases.Set(float64(len(stale)))
	}

	if r.payouts != nil {
		settled, err := r.payouts.Reconcile(ctx, start)
		if err != nil {
			reconcileErrors.Inc()
			return nil, fmt.Errorf("payout settlement failed: %w", err)
		}
		report.SettledPayouts = settled
		if settled > 0 {
			r.logger.Info("settled stuck payouts", "count", settled)
		}
	}

	return report, nil
}
