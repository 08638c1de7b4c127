package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Domenick1991/flightbooking/internal/domain"
)

type PGOutboxRepository struct {
	db DBTX
}

func NewOutboxRepository(db DBTX) OutboxRepository {
	return &PGOutboxRepository{db: db}
}

const outboxColumns = `id, event_id, topic, aggregate_key, payload, status, attempts, max_retries, last_error, created_at, dispatched_at`

func (r *PGOutboxRepository) Insert(ctx context.Context, event *domain.OutboxEvent) error {
	if event.Status == "" {
		event.Status = domain.OutboxStatusPending
	}
	if event.MaxRetries == 0 {
		event.MaxRetries = domain.DefaultOutboxMaxRetries
	}
	return r.db.QueryRow(ctx, `INSERT INTO outbox_events (event_id, topic, aggregate_key, payload, status, attempts, max_retries, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		event.EventID, event.Topic, event.Key, event.Payload, event.Status, event.Attempts, event.MaxRetries, event.CreatedAt).
		Scan(&event.ID)
}

func (r *PGOutboxRepository) ClaimPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	rows, err := r.db.Query(ctx, `SELECT `+outboxColumns+` FROM outbox_events
		WHERE status=$1 ORDER BY id LIMIT $2 FOR UPDATE SKIP LOCKED`, domain.OutboxStatusPending, limit)
	if err != nil {
		return nil, err
	}
	return scanOutbox(rows)
}

func (r *PGOutboxRepository) Update(ctx context.Context, event domain.OutboxEvent) error {
	res, err := r.db.Exec(ctx, `UPDATE outbox_events SET status=$1, attempts=$2, max_retries=$3, last_error=$4, dispatched_at=$5 WHERE id=$6`,
		event.Status, event.Attempts, event.MaxRetries, event.LastError, event.DispatchedAt, event.ID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("outbox event %d: %w", event.ID, domain.ErrNotFound)
	}
	return nil
}

// ListByStatus returns every matching event when limit is not positive.
func (r *PGOutboxRepository) ListByStatus(ctx context.Context, status domain.OutboxStatus, limit int) ([]domain.OutboxEvent, error) {
	rows, err := r.db.Query(ctx, `SELECT `+outboxColumns+` FROM outbox_events WHERE status=$1 ORDER BY id LIMIT NULLIF($2, 0)`, status, max(limit, 0))
	if err != nil {
		return nil, err
	}
	return scanOutbox(rows)
}

func (r *PGOutboxRepository) GetByEventID(ctx context.Context, eventID string) (*domain.OutboxEvent, error) {
	rows, err := r.db.Query(ctx, `SELECT `+outboxColumns+` FROM outbox_events WHERE event_id=$1`, eventID)
	if err != nil {
		return nil, err
	}
	events, err := scanOutbox(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("outbox event %s: %w", eventID, domain.ErrNotFound)
	}
	return &events[0], nil
}

func (r *PGOutboxRepository) DeleteOlderThan(ctx context.Context, status domain.OutboxStatus, cutoff time.Time) (int, error) {
	res, err := r.db.Exec(ctx, `DELETE FROM outbox_events WHERE status=$1 AND COALESCE(dispatched_at, created_at) < $2`, status, cutoff)
	if err != nil {
		return 0, err
	}
	return int(res.RowsAffected()), nil
}

func scanOutbox(rows pgx.Rows) ([]domain.OutboxEvent, error) {
	defer rows.Close()

	events := make([]domain.OutboxEvent, 0)
	for rows.Next() {
		var e domain.OutboxEvent
		if err := rows.Scan(&e.ID, &e.EventID, &e.Topic, &e.Key, &e.Payload, &e.Status, &e.Attempts, &e.MaxRetries, &e.LastError, &e.CreatedAt, &e.DispatchedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

var _ OutboxRepository = (*PGOutboxRepository)(nil)
