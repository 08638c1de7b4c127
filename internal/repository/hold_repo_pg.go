package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Domenick1991/flightbooking/internal/domain"
)

type PGHoldRepository struct {
	db DBTX
}

func NewHoldRepository(db DBTX) HoldRepository {
	return &PGHoldRepository{db: db}
}

const holdColumns = `id, flight_id, seat_id, seat_no, session_id, expires_at, created_at, version`

func (r *PGHoldRepository) Insert(ctx context.Context, holds []domain.Hold) ([]domain.Hold, error) {
	out := make([]domain.Hold, 0, len(holds))
	for _, h := range holds {
		if err := r.db.QueryRow(ctx, `INSERT INTO holds (flight_id, seat_id, seat_no, session_id, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, version`, h.FlightID, h.SeatID, h.SeatNo, h.SessionID, h.ExpiresAt, h.CreatedAt).
			Scan(&h.ID, &h.Version); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// ActiveBySession locks the rows so a concurrent sweep skips them.
func (r *PGHoldRepository) ActiveBySession(ctx context.Context, sessionID string, now time.Time) ([]domain.Hold, error) {
	return r.query(ctx, `SELECT `+holdColumns+` FROM holds WHERE session_id=$1 AND expires_at > $2 ORDER BY id FOR UPDATE`, sessionID, now)
}

func (r *PGHoldRepository) ActiveByFlight(ctx context.Context, flightID int64, now time.Time) ([]domain.Hold, error) {
	return r.query(ctx, `SELECT `+holdColumns+` FROM holds WHERE flight_id=$1 AND expires_at > $2 ORDER BY id`, flightID, now)
}

func (r *PGHoldRepository) BySession(ctx context.Context, sessionID string) ([]domain.Hold, error) {
	return r.query(ctx, `SELECT `+holdColumns+` FROM holds WHERE session_id=$1 ORDER BY id FOR UPDATE`, sessionID)
}

func (r *PGHoldRepository) Expired(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	return r.query(ctx, `SELECT `+holdColumns+` FROM holds WHERE expires_at <= $1 ORDER BY id LIMIT $2 FOR UPDATE SKIP LOCKED`, now, limit)
}

func (r *PGHoldRepository) Delete(ctx context.Context, holds []domain.Hold) error {
	for _, h := range holds {
		res, err := r.db.Exec(ctx, `DELETE FROM holds WHERE id=$1 AND version=$2`, h.ID, h.Version)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return fmt.Errorf("hold %d at version %d: %w", h.ID, h.Version, domain.ErrConflict)
		}
	}
	return nil
}

func (r *PGHoldRepository) query(ctx context.Context, sql string, args ...any) ([]domain.Hold, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return scanHolds(rows)
}

func scanHolds(rows pgx.Rows) ([]domain.Hold, error) {
	defer rows.Close()

	holds := make([]domain.Hold, 0)
	for rows.Next() {
		var h domain.Hold
		if err := rows.Scan(&h.ID, &h.FlightID, &h.SeatID, &h.SeatNo, &h.SessionID, &h.ExpiresAt, &h.CreatedAt, &h.Version); err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	return holds, rows.Err()
}

var _ HoldRepository = (*PGHoldRepository)(nil)
