package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
)

type PGFlightRepository struct {
	db DBTX
}

func NewFlightRepository(db DBTX) FlightRepository {
	return &PGFlightRepository{db: db}
}

const flightColumns = `id, flight_no, from_airport, to_airport, departure_time, arrival_time, price_cents, created_at, updated_at`

func (r *PGFlightRepository) List(ctx context.Context) ([]domain.Flight, error) {
	rows, err := r.db.Query(ctx, `SELECT `+flightColumns+` FROM flights ORDER BY departure_time, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flights := make([]domain.Flight, 0)
	for rows.Next() {
		var f domain.Flight
		if err := rows.Scan(&f.ID, &f.FlightNo, &f.FromAirport, &f.ToAirport, &f.DepartureTime, &f.ArrivalTime, &f.PriceCents, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		flights = append(flights, f)
	}
	return flights, rows.Err()
}

func (r *PGFlightRepository) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	row := r.db.QueryRow(ctx, `SELECT `+flightColumns+` FROM flights WHERE id=$1`, id)
	var f domain.Flight
	if err := row.Scan(&f.ID, &f.FlightNo, &f.FromAirport, &f.ToAirport, &f.DepartureTime, &f.ArrivalTime, &f.PriceCents, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, notFound(err, fmt.Sprintf("flight %d", id))
	}
	return &f, nil
}

func (r *PGFlightRepository) Availability(ctx context.Context, flightID int64, now time.Time) (*domain.Availability, error) {
	if _, err := r.GetByID(ctx, flightID); err != nil {
		return nil, err
	}

	a := domain.Availability{FlightID: flightID}
	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE s.is_available AND ts.id IS NULL AND h.id IS NULL),
			COUNT(*) FILTER (WHERE s.is_available AND ts.id IS NULL AND h.id IS NOT NULL),
			COUNT(*) FILTER (WHERE NOT s.is_available OR ts.id IS NOT NULL)
		FROM seats s
		LEFT JOIN ticket_seats ts ON ts.seat_id = s.id
		LEFT JOIN LATERAL (
			SELECT id FROM holds WHERE seat_id = s.id AND expires_at > $2 LIMIT 1
		) h ON true
		WHERE s.flight_id = $1`, flightID, now).
		Scan(&a.Total, &a.Available, &a.Held, &a.Booked)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

var _ FlightRepository = (*PGFlightRepository)(nil)
