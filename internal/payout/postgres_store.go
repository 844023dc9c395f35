package payout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore is a PostgreSQL-backed payout store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a payout store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const payoutColumns = `id, user_id, amount, currency, status, reference, transfer_id, failure_reason, created_at, updated_at, completed_at`

func (s *PostgresStore) Create(ctx context.Context, p *Payout) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payouts (id, user_id, amount, currency, status, reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.UserID, p.Amount, p.Currency, p.Status, p.Reference, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payout: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Payout, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id)
	return scanPayout(row)
}

func (s *PostgresStore) GetByReference(ctx context.Context, reference string) (*Payout, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+payoutColumns+` FROM payouts WHERE reference = $1`, reference)
	return scanPayout(row)
}

func (s *PostgresStore) Update(ctx context.Context, p *Payout) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE payouts
		SET status = $2, transfer_id = $3, failure_reason = $4, updated_at = $5, completed_at = $6
		WHERE id = $1
	`, p.ID, p.Status, nullIfEmpty(p.TransferID), nullIfEmpty(p.FailureReason), p.UpdatedAt, p.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update payout: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Payout, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+payoutColumns+` FROM payouts WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()
	return collectPayouts(rows)
}

func (s *PostgresStore) ListStuckProcessing(ctx context.Context, before time.Time, limit int) ([]*Payout, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+payoutColumns+` FROM payouts
		 WHERE status = 'processing' AND updated_at < $1
		 ORDER BY updated_at ASC LIMIT $2`,
		before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck payouts: %w", err)
	}
	defer rows.Close()
	return collectPayouts(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayout(row rowScanner) (*Payout, error) {
	var p Payout
	var transferID, failureReason sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Status, &p.Reference,
		&transferID, &failureReason, &p.CreatedAt, &p.UpdatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payout: %w", err)
	}

	p.TransferID = transferID.String
	p.FailureReason = failureReason.String
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		p.CompletedAt = &t
	}
	return &p, nil
}

func collectPayouts(rows *sql.Rows) ([]*Payout, error) {
	var out []*Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
