package reconciliation

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/riftworks/riftpay/internal/ledger"
	"github.com/riftworks/riftpay/internal/rift"
)

type fakeWallets struct {
	results []*ledger.ReconciliationResult
	err     error
}

func (f *fakeWallets) ReconcileAll(_ context.Context) ([]*ledger.ReconciliationResult, error) {
	return f.results, f.err
}

type fakeReleases struct {
	stale     []*rift.ReleaseRecord
	gotBefore time.Time
}

func (f *fakeReleases) ListStaleReleases(_ context.Context, before time.Time, _ int) ([]*rift.ReleaseRecord, error) {
	f.gotBefore = before
	return f.stale, nil
}

type fakePayouts struct {
	settled int
	calls   int
}

func (f *fakePayouts) Reconcile(_ context.Context, _ time.Time) (int, error) {
	f.calls++
	return f.settled, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunAll_CleanRun(t *testing.T) {
	wallets := &fakeWallets{results: []*ledger.ReconciliationResult{
		{UserID: "usr_a", Match: true},
		{UserID: "usr_b", Match: true},
	}}

	runner := NewRunner(wallets, &fakeReleases{}, &fakePayouts{}, quietLogger())
	report, err := runner.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}

	if !report.Clean() {
		t.Error("expected clean report")
	}
	if report.WalletsChecked != 2 {
		t.Errorf("expected 2 wallets checked, got %d", report.WalletsChecked)
	}
}

func TestRunAll_FlagsWalletMismatch(t *testing.T) {
	wallets := &fakeWallets{results: []*ledger.ReconciliationResult{
		{UserID: "usr_a", Match: true},
		{UserID: "usr_b", Match: false, ReplayAvailable: "50.00", ActualAvailable: "60.00"},
	}}

	runner := NewRunner(wallets, nil, nil, quietLogger())
	report, err := runner.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}

	if report.Clean() {
		t.Error("expected mismatch to dirty the report")
	}
	if len(report.WalletMismatches) != 1 || report.WalletMismatches[0].UserID != "usr_b" {
		t.Errorf("expected usr_b mismatch, got %+v", report.WalletMismatches)
	}
}

func TestRunAll_FlagsStaleReleases(t *testing.T) {
	releases := &fakeReleases{stale: []*rift.ReleaseRecord{
		{RiftID: "rift_1", UnitKey: "rift", Status: rift.ReleaseCreating},
	}}

	runner := NewRunner(&fakeWallets{}, releases, nil, quietLogger())
	runner.SetStaleAfter(10 * time.Minute)

	report, err := runner.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}

	if len(report.StaleReleases) != 1 {
		t.Fatalf("expected 1 stale release, got %d", len(report.StaleReleases))
	}
	// Cutoff should sit roughly staleAfter in the past
	age := time.Since(releases.gotBefore)
	if age < 9*time.Minute || age > 11*time.Minute {
		t.Errorf("expected ~10m cutoff, got %v", age)
	}
}

func TestRunAll_SettlesPayouts(t *testing.T) {
	payouts := &fakePayouts{settled: 3}

	runner := NewRunner(&fakeWallets{}, nil, payouts, quietLogger())
	report, err := runner.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}

	if payouts.calls != 1 {
		t.Errorf("expected 1 payout reconcile call, got %d", payouts.calls)
	}
	if report.SettledPayouts != 3 {
		t.Errorf("expected 3 settled payouts, got %d", report.SettledPayouts)
	}
}

func TestTimer_StartStop(t *testing.T) {
	runner := NewRunner(&fakeWallets{}, nil, nil, quietLogger())
	timer := NewTimer(runner, quietLogger()).WithInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go timer.Start(ctx)

	deadline := time.Now().Add(time.Second)
	for !timer.Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !timer.Running() {
		t.Fatal("timer did not start")
	}

	timer.Stop()
	deadline = time.Now().Add(time.Second)
	for timer.Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if timer.Running() {
		t.Fatal("timer did not stop")
	}
}
