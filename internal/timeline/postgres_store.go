package timeline

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore is a PostgreSQL-backed event store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates an event store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, e *Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO timeline_events (id, rift_id, actor, action, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.RiftID, e.Actor, e.Action, nullIfEmpty(e.Detail), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByRift(ctx context.Context, riftID string, limit int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rift_id, actor, action, COALESCE(detail, ''), created_at
		FROM timeline_events
		WHERE rift_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, riftID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.RiftID, &e.Actor, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
