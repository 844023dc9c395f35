package rift

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore implements Store with PostgreSQL. The version column
// carries the optimistic concurrency check; the unique constraint on
// (rift_id, unit_key) carries the release guard.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed rift store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const riftColumns = `id, number, buyer_id, seller_id, item_type, subtotal, buyer_fee,
	seller_fee, seller_net, buyer_total, currency, status, version, proof_ref,
	auto_release_scheduled, funded_at, delivery_verified_at, grace_period_ends_at,
	auto_release_at, released_at, allows_partial_release, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, r *Rift) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO rifts (id, buyer_id, seller_id, item_type, subtotal, buyer_fee,
			seller_fee, seller_net, buyer_total, currency, status, version,
			allows_partial_release, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING number
	`, r.ID, r.BuyerID, r.SellerID, r.ItemType, r.Subtotal, r.BuyerFee,
		r.SellerFee, r.SellerNet, r.BuyerTotal, r.Currency, r.Status, r.Version,
		r.AllowsPartialRelease, r.CreatedAt, r.UpdatedAt).Scan(&r.Number)
	if err != nil {
		return fmt.Errorf("failed to insert rift: %w", err)
	}

	for _, ms := range r.Milestones {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rift_milestones (rift_id, idx, title, amount, due_at, released)
			VALUES ($1, $2, $3, $4, $5, false)
		`, r.ID, ms.Index, ms.Title, ms.Amount, ms.DueAt)
		if err != nil {
			return fmt.Errorf("failed to insert milestone %d: %w", ms.Index, err)
		}
	}

	return tx.Commit()
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Rift, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+riftColumns+` FROM rifts WHERE id = $1`, id)
	r, err := scanRift(row)
	if err == sql.ErrNoRows {
		return nil, ErrRiftNotFound
	}
	if err != nil {
		return nil, err
	}

	if r.AllowsPartialRelease {
		r.Milestones, err = p.loadMilestones(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Update writes the rift conditioned on the version it was read at, then
// upserts milestone state in the same transaction.
func (p *PostgresStore) Update(ctx context.Context, r *Rift) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE rifts SET
			status = $3, version = version + 1, proof_ref = $4,
			auto_release_scheduled = $5, funded_at = $6, delivery_verified_at = $7,
			grace_period_ends_at = $8, auto_release_at = $9, released_at = $10,
			updated_at = $11
		WHERE id = $1 AND version = $2
	`, r.ID, r.Version, r.Status, nullStr(r.ProofRef), r.AutoReleaseScheduled,
		r.FundedAt, r.DeliveryVerifiedAt, r.GracePeriodEndsAt, r.AutoReleaseAt,
		r.ReleasedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update rift: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rifts WHERE id = $1)`, r.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrRiftNotFound
		}
		return ErrVersionConflict
	}

	for _, ms := range r.Milestones {
		_, err = tx.ExecContext(ctx, `
			UPDATE rift_milestones SET
				proof_ref = $3, proof_submitted_at = $4, auto_release_at = $5,
				released = $6, released_at = $7
			WHERE rift_id = $1 AND idx = $2
		`, r.ID, ms.Index, nullStr(ms.ProofRef), ms.ProofSubmittedAt,
			ms.AutoReleaseAt, ms.Released, ms.ReleasedAt)
		if err != nil {
			return fmt.Errorf("failed to update milestone %d: %w", ms.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	r.Version++
	return nil
}

func (p *PostgresStore) ListByParty(ctx context.Context, userID string, limit int) ([]*Rift, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+riftColumns+` FROM rifts
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return p.scanRifts(ctx, rows)
}

func (p *PostgresStore) ListDueForRelease(ctx context.Context, now time.Time, limit int) ([]*Rift, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+riftColumns+` FROM rifts
		WHERE auto_release_scheduled = true
		  AND auto_release_at IS NOT NULL AND auto_release_at <= $1
		  AND status NOT IN ('released', 'refunded', 'cancelled')
		ORDER BY auto_release_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return p.scanRifts(ctx, rows)
}

func (p *PostgresStore) ListDueMilestones(ctx context.Context, now time.Time, limit int) ([]*Rift, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT `+prefixColumns("r.")+` FROM rifts r
		JOIN rift_milestones m ON m.rift_id = r.id
		WHERE m.released = false
		  AND m.auto_release_at IS NOT NULL AND m.auto_release_at <= $1
		  AND r.status NOT IN ('released', 'refunded', 'cancelled', 'disputed')
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return p.scanRifts(ctx, rows)
}

// BeginRelease inserts the guard placeholder, relying on the primary key
// on (rift_id, unit_key): a conflicting insert affects zero rows and the
// existing record is returned instead.
func (p *PostgresStore) BeginRelease(ctx context.Context, rec *ReleaseRecord) (*ReleaseRecord, bool, error) {
	result, err := p.db.ExecContext(ctx, `
		INSERT INTO release_records (rift_id, unit_key, status, amount, seller_net, created_at)
		VALUES ($1, $2, $3, $4::NUMERIC(20,2), $5::NUMERIC(20,2), $6)
		ON CONFLICT (rift_id, unit_key) DO NOTHING
	`, rec.RiftID, rec.UnitKey, rec.Status, rec.Amount, rec.SellerNet, rec.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin release: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 1 {
		cp := *rec
		return &cp, true, nil
	}

	existing, err := p.GetRelease(ctx, rec.RiftID, rec.UnitKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (p *PostgresStore) CompleteRelease(ctx context.Context, riftID, unitKey, payoutRef string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE release_records SET status = $3, payout_ref = $4, released_at = NOW()
		WHERE rift_id = $1 AND unit_key = $2
	`, riftID, unitKey, ReleaseDone, nullStr(payoutRef))
	if err != nil {
		return fmt.Errorf("failed to complete release: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrReleaseNotFound
	}
	return nil
}

func (p *PostgresStore) AbortRelease(ctx context.Context, riftID, unitKey string) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM release_records
		WHERE rift_id = $1 AND unit_key = $2 AND status = $3
	`, riftID, unitKey, ReleaseCreating)
	return err
}

func (p *PostgresStore) GetRelease(ctx context.Context, riftID, unitKey string) (*ReleaseRecord, error) {
	rec := &ReleaseRecord{}
	var payoutRef sql.NullString
	var releasedAt sql.NullTime

	err := p.db.QueryRowContext(ctx, `
		SELECT rift_id, unit_key, status, amount, seller_net, payout_ref, created_at, released_at
		FROM release_records WHERE rift_id = $1 AND unit_key = $2
	`, riftID, unitKey).Scan(&rec.RiftID, &rec.UnitKey, &rec.Status, &rec.Amount,
		&rec.SellerNet, &payoutRef, &rec.CreatedAt, &releasedAt)
	if err == sql.ErrNoRows {
		return nil, ErrReleaseNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.PayoutRef = payoutRef.String
	if releasedAt.Valid {
		rec.ReleasedAt = &releasedAt.Time
	}
	return rec, nil
}

func (p *PostgresStore) ListStaleReleases(ctx context.Context, before time.Time, limit int) ([]*ReleaseRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT rift_id, unit_key, status, amount, seller_net, payout_ref, created_at, released_at
		FROM release_records
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3
	`, ReleaseCreating, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ReleaseRecord
	for rows.Next() {
		rec := &ReleaseRecord{}
		var payoutRef sql.NullString
		var releasedAt sql.NullTime
		if err := rows.Scan(&rec.RiftID, &rec.UnitKey, &rec.Status, &rec.Amount,
			&rec.SellerNet, &payoutRef, &rec.CreatedAt, &releasedAt); err != nil {
			return nil, err
		}
		rec.PayoutRef = payoutRef.String
		if releasedAt.Valid {
			rec.ReleasedAt = &releasedAt.Time
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (p *PostgresStore) loadMilestones(ctx context.Context, riftID string) ([]*Milestone, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT idx, title, amount, due_at, proof_ref, proof_submitted_at,
			auto_release_at, released, released_at
		FROM rift_milestones WHERE rift_id = $1 ORDER BY idx ASC
	`, riftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var milestones []*Milestone
	for rows.Next() {
		ms := &Milestone{}
		var dueAt, proofAt, autoAt, releasedAt sql.NullTime
		var proofRef sql.NullString
		if err := rows.Scan(&ms.Index, &ms.Title, &ms.Amount, &dueAt, &proofRef,
			&proofAt, &autoAt, &ms.Released, &releasedAt); err != nil {
			return nil, err
		}
		ms.ProofRef = proofRef.String
		if dueAt.Valid {
			ms.DueAt = &dueAt.Time
		}
		if proofAt.Valid {
			ms.ProofSubmittedAt = &proofAt.Time
		}
		if autoAt.Valid {
			ms.AutoReleaseAt = &autoAt.Time
		}
		if releasedAt.Valid {
			ms.ReleasedAt = &releasedAt.Time
		}
		milestones = append(milestones, ms)
	}
	return milestones, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRift(row rowScanner) (*Rift, error) {
	r := &Rift{}
	var proofRef sql.NullString
	var fundedAt, deliveryAt, graceAt, autoAt, releasedAt sql.NullTime

	err := row.Scan(&r.ID, &r.Number, &r.BuyerID, &r.SellerID, &r.ItemType,
		&r.Subtotal, &r.BuyerFee, &r.SellerFee, &r.SellerNet, &r.BuyerTotal,
		&r.Currency, &r.Status, &r.Version, &proofRef, &r.AutoReleaseScheduled,
		&fundedAt, &deliveryAt, &graceAt, &autoAt, &releasedAt,
		&r.AllowsPartialRelease, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	r.ProofRef = proofRef.String
	if fundedAt.Valid {
		r.FundedAt = &fundedAt.Time
	}
	if deliveryAt.Valid {
		r.DeliveryVerifiedAt = &deliveryAt.Time
	}
	if graceAt.Valid {
		r.GracePeriodEndsAt = &graceAt.Time
	}
	if autoAt.Valid {
		r.AutoReleaseAt = &autoAt.Time
	}
	if releasedAt.Valid {
		r.ReleasedAt = &releasedAt.Time
	}
	return r, nil
}

func (p *PostgresStore) scanRifts(ctx context.Context, rows *sql.Rows) ([]*Rift, error) {
	var rifts []*Rift
	for rows.Next() {
		r, err := scanRift(rows)
		if err != nil {
			return nil, err
		}
		rifts = append(rifts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, r := range rifts {
		if r.AllowsPartialRelease {
			var err error
			r.Milestones, err = p.loadMilestones(ctx, r.ID)
			if err != nil {
				return nil, err
			}
		}
	}
	return rifts, nil
}

func prefixColumns(prefix string) string {
	return prefix + `id, ` + prefix + `number, ` + prefix + `buyer_id, ` + prefix + `seller_id, ` +
		prefix + `item_type, ` + prefix + `subtotal, ` + prefix + `buyer_fee, ` + prefix + `seller_fee, ` +
		prefix + `seller_net, ` + prefix + `buyer_total, ` + prefix + `currency, ` + prefix + `status, ` +
		prefix + `version, ` + prefix + `proof_ref, ` + prefix + `auto_release_scheduled, ` +
		prefix + `funded_at, ` + prefix + `delivery_verified_at, ` + prefix + `grace_period_ends_at, ` +
		prefix + `auto_release_at, ` + prefix + `released_at, ` + prefix + `allows_partial_release, ` +
		prefix + `created_at, ` + prefix + `updated_at`
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
