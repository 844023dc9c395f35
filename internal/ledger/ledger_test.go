package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/riftworks/riftpay/internal/pagination"
)

func TestLedger_Credit(t *testing.T) {
	ledger := New(NewMemoryStore(), "USD")
	ctx := context.Background()

	err := ledger.Credit(ctx, "usr_seller1", "95.00", "escrow_release", "rift_abc")
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	bal, err := ledger.GetBalance(ctx, "usr_seller1")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}

	if bal.Available != "95.00" {
		t.Errorf("Expected available 95.00, got %s", bal.Available)
	}
	if bal.TotalIn != "95.00" {
		t.Errorf("Expected totalIn 95.00, got %s", bal.TotalIn)
	}
	if bal.Currency != "USD" {
		t.Errorf("Expected currency USD, got %s", bal.Currency)
	}
}

func TestLedger_CreditInvalidAmount(t *testing.T) {
	ledger := New(NewMemoryStore(), "USD")
	ctx := context.Background()

	for _, amount := range []string{"", "-5.00", "abc", "0"} {
		if err := ledger.Credit(ctx, "usr_a", amount, "escrow_release", "rift_x"); err != ErrInvalidAmount {
			t.Errorf("Credit(%q): expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestLedger_DebitInsufficientBalance(t *testing.T) {
	ledger := New(NewMemoryStore(), "USD")
	ctx := context.Background()

	if err := ledger.Credit(ctx, "usr_a", "5.00", "escrow_release", "rift_1"); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	err := ledger.Debit(ctx, "usr_a", "10.00", "chargeback", "rift_1")
	if err != ErrInsufficientBalance {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}

	// Failed debit must not leave a partial balance change or an entry
	bal, _ := ledger.GetBalance(ctx, "usr_a")
	if bal.Available != "5.00" {
		t.Errorf("Expected available 5.00 after failed debit, got %s", bal.Available)
	}
	entries, _ := ledger.GetHistory(ctx, "usr_a", 10)
	if len(entries) != 1 {
		t.Errorf("Expected 1 entry after failed debit, got %d", len(entries))
	}
}

func TestLedger_DebitUnknownWallet(t *testing.T) {
	ledger := New(NewMemoryStore(), "USD")

	err := ledger.Debit(context.Background(), "usr_ghost", "1.00", "chargeback", "rift_1")
	if err != ErrWalletNotFound {
		t.Errorf("Expected ErrWalletNotFound, got %v", err)
	}
}

func TestLedger_HoldLifecycleConfirm(t *testing.T) {
	ledger := New(NewMemoryStore(), "USD")
	ctx := context.Background()

	ledger.Credit(ctx, "usr_a", "100.00", "escrow_release", "rift_1")

	if err := ledger.Hold(ctx, "usr_a", "40.00", "po_1"); err != nil {
		t.Fatalf("Hold failed: %v", err)
	}

	bal, _ := ledger.GetBalance(ctx, "usr_a")
	if bal.Available != "60.00" || bal.Pending != "40.00" {
		t.Errorf("After hold: available=%s pending=%s", bal.Available, bal.Pending)
	}

	if err := ledger.ConfirmHold(ctx, "usr_a", "40.00", "po_1"); err != nil {
		t.Fatalf("ConfirmHold failed: %v", err)
	}

	bal, _ = ledger.GetBalance(ctx, "usr_a")
	if bal.Available != "60.00" || bal.Pending != "0.00" {
		t.Errorf("After confirm: available=%s pending=%s", bal.Available, bal.Pending)
	}
	if bal.TotalOut != "40.00" {
		t.Errorf("Expected totalOut 40.00, got %s", bal.TotalOut)
	}
}

func TestLedger_HoldLifecycleRelease(t *testing.T) {
	ledger := New(NewMemoryStore(), "USD")
	ctx := context.Background()

	ledger.Credit(ctx, "usr_a", "100.00", "escrow_release", "rift_1")
	ledger.Hold(ctx, "usr_a", "40.00", "po_1")

	if err := ledger.ReleaseHold(ctx, "usr_a", "40.00", "po_1"); err != nil {
		t.Fatalf("ReleaseHold failed: %v", err)
	}

	bal, _ := ledger.GetBalance(ctx, "usr_a")
	if bal.Available != "100.00" || bal.Pending != "0.00" {
		t.Errorf("After release: available=%s pending=%s", bal.Available, bal.Pending)
	}
}

func TestLedger_HoldInsufficientBalance(t *testing.T) {
	ledger := New(NewMemoryStore(), "USD")
	ctx := context.Background()

	ledger.Credit(ctx, "usr_a", "10.00", "escrow_release", "rift_1")

	if err := ledger.Hold(ctx, "usr_a", "10.01", "po_1"); err != ErrInsufficientBalance {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}
}

func TestLedger_CompensateIdempotent(t *testing.T) {
	ledger := New(NewMemoryStore(), "USD")
	ctx := context.Background()

	ledger.Credit(ctx, "usr_a", "50.00", "escrow_release", "rift_1")
	ledger.Hold(ctx, "usr_a", "50.00", "po_1")
	ledger.ConfirmHold(ctx, "usr_a", "50.00", "po_1")

	if err := ledger.Compensate(ctx, "usr_a", "50.00", "po_1"); err != nil {
		t.Fatalf("Compensate failed: %v", err)
	}

	// Retried compensation for the same payout must not double-credit
	if err := ledger.Compensate(ctx, "usr_a", "50.00", "po_1"); err != ErrDuplicateCompensation {
		t.Errorf("Expected ErrDuplicateCompensation, got %v", err)
	}

	bal, _ := ledger.GetBalance(ctx, "usr_a")
	if bal.Available != "50.00" {
		t.Errorf("Expected available 50.00, got %s", bal.Available)
	}
}

func TestLedger_CanWithdraw(t *testing.T) {
	ledger := New(NewMemoryStore(), "USD")
	ctx := context.Background()

	ledger.Credit(ctx, "usr_a", "10.00", "escrow_release", "rift_1")

	ok, err := ledger.CanWithdraw(ctx, "usr_a", "10.00")
	if err != nil {
		t.Fatalf("CanWithdraw failed: %v", err)
	}
	if !ok {
		t.Error("Expected CanWithdraw true for exact balance")
	}

	ok, _ = ledger.CanWithdraw(ctx, "usr_a", "10.01")
	if ok {
		t.Error("Expected CanWithdraw false above balance")
	}
}

func TestLedger_GetHistory(t *testing.T) {
	ledger := New(NewMemoryStore(), "USD")
	ctx := context.Background()

	ledger.Credit(ctx, "usr_a", "10.00", "escrow_release", "rift_1")
	ledger.Credit(ctx, "usr_a", "20.00", "escrow_release", "rift_2")
	ledger.Hold(ctx, "usr_a", "5.00", "po_1")
	ledger.Credit(ctx, "usr_b", "99.00", "escrow_release", "rift_3")

	entries, err := ledger.GetHistory(ctx, "usr_a", 10)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	// Newest first
	if entries[0].Type != EntryHold {
		t.Errorf("Expected newest entry to be hold, got %s", entries[0].Type)
	}
}

// Two withdrawals racing for the same balance: at most one may win, and
// the balance can never go negative.
func TestLedger_ConcurrentHoldsNoOverdraft(t *testing.T) {
	ledger := New(NewMemoryStore(), "USD")
	ctx := context.Background()

	ledger.Credit(ctx, "usr_a", "100.00", "escrow_release", "rift_1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = ledger.Hold(ctx, "usr_a", "60.00", "po_race")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else if err != ErrInsufficientBalance {
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("Expected exactly 1 successful hold, got %d", successes)
	}

	bal, _ := ledger.GetBalance(ctx, "usr_a")
	if bal.Available != "40.00" || bal.Pending != "60.00" {
		t.Errorf("After race: available=%s pending=%s", bal.Available, bal.Pending)
	}
}

func TestLedger_HistoryCursorPagination(t *testing.T) {
	ledger := New(NewMemoryStore(), "USD")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := ledger.Credit(ctx, "usr_a", "1.00", "escrow_release", "rift_"+string(rune('a'+i))); err != nil {
			t.Fatalf("Credit failed: %v", err)
		}
	}

	// First page: newest two entries.
	page1, err := ledger.GetHistory(ctx, "usr_a", 2)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(page1) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(page1))
	}

	last := page1[len(page1)-1]
	cursor := pagination.Encode(last.CreatedAt, last.ID)

	// Second page resumes strictly after the cursor.
	page2, err := ledger.GetHistory(ctx, "usr_a", 10, WithCursor(cursor))
	if err != nil {
		t.Fatalf("GetHistory with cursor failed: %v", err)
	}
	if len(page2) != 3 {
		t.Fatalf("Expected 3 remaining entries, got %d", len(page2))
	}

	seen := map[string]bool{}
	for _, e := range append(page1, page2...) {
		if seen[e.ID] {
			t.Errorf("Entry %s returned twice across pages", e.ID)
		}
		seen[e.ID] = true
	}
}
