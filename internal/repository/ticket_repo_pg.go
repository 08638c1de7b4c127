package repository

import (
	"context"
	"fmt"

	"github.com/Domenick1991/flightbooking/internal/domain"
)

type PGTicketRepository struct {
	db DBTX
}

func NewTicketRepository(db DBTX) TicketRepository {
	return &PGTicketRepository{db: db}
}

const ticketColumns = `id, flight_id, legs, payment_ref, session_id, total_amount, status, cancel_reason, version, created_at, updated_at`

func (r *PGTicketRepository) Insert(ctx context.Context, ticket *domain.Ticket) error {
	return r.db.QueryRow(ctx, `INSERT INTO tickets (flight_id, legs, payment_ref, session_id, total_amount, status, cancel_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id, version, updated_at`,
		ticket.FlightID, ticket.Legs, ticket.PaymentRef, ticket.SessionID, ticket.TotalAmount, ticket.Status, ticket.CancelReason, ticket.CreatedAt).
		Scan(&ticket.ID, &ticket.Version, &ticket.UpdatedAt)
}

func (r *PGTicketRepository) GetByPaymentRef(ctx context.Context, paymentRef string) (*domain.Ticket, error) {
	return r.get(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE payment_ref=$1`, paymentRef)
}

func (r *PGTicketRepository) LockByPaymentRef(ctx context.Context, paymentRef string) (*domain.Ticket, error) {
	return r.get(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE payment_ref=$1 FOR UPDATE`, paymentRef)
}

func (r *PGTicketRepository) get(ctx context.Context, sql, paymentRef string) (*domain.Ticket, error) {
	var t domain.Ticket
	err := r.db.QueryRow(ctx, sql, paymentRef).Scan(&t.ID, &t.FlightID, &t.Legs, &t.PaymentRef, &t.SessionID, &t.TotalAmount, &t.Status, &t.CancelReason, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "ticket for payment "+paymentRef)
	}
	return &t, nil
}

func (r *PGTicketRepository) UpdateStatus(ctx context.Context, ticket *domain.Ticket) error {
	res, err := r.db.Exec(ctx, `UPDATE tickets SET status=$1, cancel_reason=$2, updated_at=$3, version = version + 1
		WHERE id=$4 AND version=$5`, ticket.Status, ticket.CancelReason, ticket.UpdatedAt, ticket.ID, ticket.Version)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("ticket %d at version %d: %w", ticket.ID, ticket.Version, domain.ErrConflict)
	}
	ticket.Version++
	return nil
}

func (r *PGTicketRepository) InsertSeats(ctx context.Context, seats []domain.TicketSeat) ([]domain.TicketSeat, error) {
	out := make([]domain.TicketSeat, 0, len(seats))
	for _, ts := range seats {
		if err := r.db.QueryRow(ctx, `INSERT INTO ticket_seats (ticket_id, seat_id, flight_id, seat_no) VALUES ($1, $2, $3, $4) RETURNING id`,
			ts.TicketID, ts.SeatID, ts.FlightID, ts.SeatNo).Scan(&ts.ID); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, nil
}

func (r *PGTicketRepository) Seats(ctx context.Context, ticketID int64) ([]domain.TicketSeat, error) {
	rows, err := r.db.Query(ctx, `SELECT id, ticket_id, seat_id, flight_id, seat_no FROM ticket_seats WHERE ticket_id=$1 ORDER BY id`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seats := make([]domain.TicketSeat, 0)
	for rows.Next() {
		var ts domain.TicketSeat
		if err := rows.Scan(&ts.ID, &ts.TicketID, &ts.SeatID, &ts.FlightID, &ts.SeatNo); err != nil {
			return nil, err
		}
		seats = append(seats, ts)
	}
	return seats, rows.Err()
}

var _ TicketRepository = (*PGTicketRepository)(nil)
