package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/riftworks/riftpay/internal/idgen"
)

// PostgresStore implements Store with PostgreSQL. CHECK constraints on the
// wallet row enforce the non-negative balance invariant at the database
// level; balance updates and entry inserts commit together or not at all.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	bal := &Balance{UserID: userID}

	err := p.db.QueryRowContext(ctx, `
		SELECT available, pending, currency, total_in, total_out, updated_at
		FROM wallet_balances WHERE user_id = $1
	`, userID).Scan(&bal.Available, &bal.Pending, &bal.Currency, &bal.TotalIn, &bal.TotalOut, &bal.UpdatedAt)

	if err == sql.ErrNoRows {
		return &Balance{
			UserID:    userID,
			Available: "0.00",
			Pending:   "0.00",
			TotalIn:   "0.00",
			TotalOut:  "0.00",
			UpdatedAt: time.Now(),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return bal, nil
}

// Credit adds funds to a user's balance, creating the wallet row in the
// same transaction when it does not exist yet.
func (p *PostgresStore) Credit(ctx context.Context, userID, amount, reason, reference string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_balances (user_id, available, total_in, updated_at)
		VALUES ($1, $2::NUMERIC(20,2), $2::NUMERIC(20,2), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			available  = wallet_balances.available + $2::NUMERIC(20,2),
			total_in   = wallet_balances.total_in  + $2::NUMERIC(20,2),
			updated_at = NOW()
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	if err := insertEntry(ctx, tx, userID, EntryCredit, amount, reason, reference); err != nil {
		return err
	}

	return tx.Commit()
}

// Debit removes funds from a user's balance. The CHECK constraint on
// available >= 0 rejects overdrafts inside the transaction, so no partial
// debit and no entry survive a failed attempt.
func (p *PostgresStore) Debit(ctx context.Context, userID, amount, reason, reference string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE wallet_balances SET
			available  = available - $2::NUMERIC(20,2),
			total_out  = total_out + $2::NUMERIC(20,2),
			updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		if isCheckViolation(err) {
			return ErrInsufficientBalance
		}
		return fmt.Errorf("failed to update balance: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrWalletNotFound
	}

	if err := insertEntry(ctx, tx, userID, EntryDebit, amount, reason, reference); err != nil {
		return err
	}

	return tx.Commit()
}

// Hold moves funds from available to pending for an in-flight payout.
func (p *PostgresStore) Hold(ctx context.Context, userID, amount, reference string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE wallet_balances SET
			available  = available - $2::NUMERIC(20,2),
			pending    = pending   + $2::NUMERIC(20,2),
			updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		if isCheckViolation(err) {
			return ErrInsufficientBalance
		}
		return fmt.Errorf("failed to place hold: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrWalletNotFound
	}

	if err := insertEntry(ctx, tx, userID, EntryHold, amount, "withdrawal_hold", reference); err != nil {
		return err
	}

	return tx.Commit()
}

// ConfirmHold finalizes a held amount after the external payout succeeded.
func (p *PostgresStore) ConfirmHold(ctx context.Context, userID, amount, reference string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE wallet_balances SET
			pending    = pending   - $2::NUMERIC(20,2),
			total_out  = total_out + $2::NUMERIC(20,2),
			updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		if isCheckViolation(err) {
			return ErrInsufficientBalance
		}
		return fmt.Errorf("failed to confirm hold: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrWalletNotFound
	}

	if err := insertEntry(ctx, tx, userID, EntryWithdrawal, amount, "payout_confirmed", reference); err != nil {
		return err
	}

	return tx.Commit()
}

// ReleaseHold returns held funds to available after a payout failed.
func (p *PostgresStore) ReleaseHold(ctx context.Context, userID, amount, reference string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE wallet_balances SET
			available  = available + $2::NUMERIC(20,2),
			pending    = pending   - $2::NUMERIC(20,2),
			updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		if isCheckViolation(err) {
			return ErrInsufficientBalance
		}
		return fmt.Errorf("failed to release hold: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrWalletNotFound
	}

	if err := insertEntry(ctx, tx, userID, EntryRelease, amount, "hold_released", reference); err != nil {
		return err
	}

	return tx.Commit()
}

// Compensate credits back a failed payout. A partial unique index on
// (user_id, reference) for compensation entries makes retries detectable
// as conflicts instead of double credits.
func (p *PostgresStore) Compensate(ctx context.Context, userID, amount, reference string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Insert the entry first: the unique index claims the reference
	// atomically, so the balance update below runs at most once.
	if err := insertEntry(ctx, tx, userID, EntryCompensation, amount, "payout_failed", reference); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCompensation
		}
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE wallet_balances SET
			available  = available + $2::NUMERIC(20,2),
			updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrWalletNotFound
	}

	return tx.Commit()
}

func (p *PostgresStore) GetHistory(ctx context.Context, userID string, limit int, opts ...ListOption) ([]*Entry, error) {
	o := applyListOpts(opts)

	query := `
		SELECT id, user_id, type, amount, reason, reference, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	args := []interface{}{userID, limit}

	if o.cursor != nil {
		query = `
			SELECT id, user_id, type, amount, reason, reference, created_at
			FROM ledger_entries
			WHERE user_id = $1 AND (created_at, id) < ($3, $4)
			ORDER BY created_at DESC, id DESC
			LIMIT $2`
		args = append(args, o.cursor.CreatedAt, o.cursor.ID)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (p *PostgresStore) GetEntries(ctx context.Context, userID string) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, type, amount, reason, reference, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (p *PostgresStore) SumAllBalances(ctx context.Context) (string, string, error) {
	var available, pending string
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(available), 0), COALESCE(SUM(pending), 0)
		FROM wallet_balances
	`).Scan(&available, &pending)
	if err != nil {
		return "", "", err
	}
	return available, pending, nil
}

func (p *PostgresStore) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT user_id FROM wallet_balances ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func insertEntry(ctx context.Context, tx *sql.Tx, userID, entryType, amount, reason, reference string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, user_id, type, amount, reason, reference, created_at)
		VALUES ($1, $2, $3, $4::NUMERIC(20,2), $5, $6, NOW())
	`, idgen.WithPrefix("le_"), userID, entryType, amount, reason, reference)
	if err != nil && !isUniqueViolation(err) {
		return fmt.Errorf("failed to record entry: %w", err)
	}
	return err
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var reason, reference sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &reason, &reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Reason = reason.String
		e.Reference = reference.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

func isCheckViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23514"
	}
	return false
}
