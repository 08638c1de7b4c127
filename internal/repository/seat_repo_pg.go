package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Domenick1991/flightbooking/internal/domain"
)

// claimRounds bounds how often ClaimAvailable tops up after dropping rows that
// turned out to be taken once locked.
const claimRounds = 3

type PGSeatRepository struct {
	db DBTX
}

func NewSeatRepository(db DBTX) SeatRepository {
	return &PGSeatRepository{db: db}
}

const seatColumns = `s.id, s.flight_id, s.seat_no, s.cabin_class, s.is_available, s.version`

const claimableSeat = `s.is_available
	AND NOT EXISTS (SELECT 1 FROM holds h WHERE h.seat_id = s.id AND h.expires_at > $2)
	AND NOT EXISTS (SELECT 1 FROM ticket_seats ts WHERE ts.seat_id = s.id)`

func (r *PGSeatRepository) ListByFlight(ctx context.Context, flightID int64) ([]domain.Seat, error) {
	rows, err := r.db.Query(ctx, `SELECT `+seatColumns+` FROM seats s WHERE s.flight_id=$1 ORDER BY s.seat_no, s.id`, flightID)
	if err != nil {
		return nil, err
	}
	return scanSeats(rows)
}

func (r *PGSeatRepository) GetByIDs(ctx context.Context, ids []int64) ([]domain.Seat, error) {
	rows, err := r.db.Query(ctx, `SELECT `+seatColumns+` FROM seats s WHERE s.id = ANY($1) ORDER BY s.seat_no, s.id`, ids)
	if err != nil {
		return nil, err
	}
	seats, err := scanSeats(rows)
	if err != nil {
		return nil, err
	}
	if len(seats) != len(ids) {
		return nil, fmt.Errorf("seats %v: %w", ids, domain.ErrNotFound)
	}
	return seats, nil
}

// ClaimAvailable locks candidates with SKIP LOCKED, then re-checks them in a
// new statement: under READ COMMITTED the first statement's NOT EXISTS checks
// can miss a hold committed while the row was being locked.
func (r *PGSeatRepository) ClaimAvailable(ctx context.Context, flightID int64, limit int, now time.Time) ([]domain.Seat, error) {
	if limit <= 0 {
		return nil, nil
	}

	claimed := make([]domain.Seat, 0, limit)
	exclude := []int64{}
	for round := 0; round < claimRounds && len(claimed) < limit; round++ {
		rows, err := r.db.Query(ctx, `
			SELECT `+seatColumns+`
			FROM seats s
			WHERE s.flight_id = $1 AND `+claimableSeat+`
				AND NOT (s.id = ANY($4))
			ORDER BY s.seat_no, s.id
			LIMIT $3
			FOR UPDATE OF s SKIP LOCKED`, flightID, now, limit-len(claimed), exclude)
		if err != nil {
			return nil, err
		}
		locked, err := scanSeats(rows)
		if err != nil {
			return nil, err
		}
		if len(locked) == 0 {
			break
		}

		ids := make([]int64, len(locked))
		for i, s := range locked {
			ids[i] = s.ID
		}
		rows, err = r.db.Query(ctx, `
			SELECT `+seatColumns+`
			FROM seats s
			WHERE s.id = ANY($1) AND `+claimableSeat+`
			ORDER BY s.seat_no, s.id`, ids, now)
		if err != nil {
			return nil, err
		}
		fresh, err := scanSeats(rows)
		if err != nil {
			return nil, err
		}

		claimed = append(claimed, fresh...)
		exclude = append(exclude, ids...)
	}
	return claimed, nil
}

func (r *PGSeatRepository) MarkUnavailable(ctx context.Context, ref domain.SeatRef) error {
	res, err := r.db.Exec(ctx, `UPDATE seats SET is_available = false, version = version + 1 WHERE id=$1 AND version=$2`, ref.SeatID, ref.Version)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("seat %d at version %d: %w", ref.SeatID, ref.Version, domain.ErrConflict)
	}
	return nil
}

func scanSeats(rows pgx.Rows) ([]domain.Seat, error) {
	defer rows.Close()

	seats := make([]domain.Seat, 0)
	for rows.Next() {
		var s domain.Seat
		if err := rows.Scan(&s.ID, &s.FlightID, &s.SeatNo, &s.CabinClass, &s.IsAvailable, &s.Version); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

var _ SeatRepository = (*PGSeatRepository)(nil)
