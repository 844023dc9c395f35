package dispute

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore is a PostgreSQL-backed dispute store. A partial unique
// index on rift_id where status != 'resolved' enforces the one active
// dispute per rift rule at the database level.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a dispute store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

const disputeColumns = `id, rift_id, buyer_id, reason, status, outcome, resolved_by, resolved_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, d *Dispute) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO disputes (id, rift_id, buyer_id, reason, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.ID, d.RiftID, d.BuyerID, d.Reason, d.Status, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDisputeOpen
		}
		return fmt.Errorf("failed to create dispute: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Dispute, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)
	return scanDispute(row)
}

func (s *PostgresStore) GetActiveByRift(ctx context.Context, riftID string) (*Dispute, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE rift_id = $1 AND status != 'resolved'`, riftID)
	return scanDispute(row)
}

func (s *PostgresStore) Update(ctx context.Context, d *Dispute) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE disputes
		SET status = $2, outcome = $3, resolved_by = $4, resolved_at = $5, updated_at = $6
		WHERE id = $1
	`, d.ID, d.Status, nullIfEmpty(string(d.Outcome)), nullIfEmpty(d.ResolvedBy), d.ResolvedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update dispute: %w", err)
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

func (s *PostgresStore) ListByRift(ctx context.Context, riftID string) ([]*Dispute, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE rift_id = $1 ORDER BY created_at DESC`, riftID)
	if err != nil {
		return nil, fmt.Errorf("failed to list disputes: %w", err)
	}
	defer rows.Close()

	var out []*Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDispute(row rowScanner) (*Dispute, error) {
	var d Dispute
	var outcome, resolvedBy sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(&d.ID, &d.RiftID, &d.BuyerID, &d.Reason, &d.Status,
		&outcome, &resolvedBy, &resolvedAt, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan dispute: %w", err)
	}

	d.Outcome = Outcome(outcome.String)
	d.ResolvedBy = resolvedBy.String
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		d.ResolvedAt = &t
	}
	return &d, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
