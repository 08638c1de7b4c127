// Package tickets records booking tickets and their terminal outcome.
package tickets

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/repository"
)

type Ledger struct {
	store repository.Store
	now   func() time.Time
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

func NewLedger(store repository.Store, opts ...Option) *Ledger {
	l := &Ledger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TotalAmount is the price of seatCount seats on every flight, in minor units.
func TotalAmount(flights []domain.Flight, seatCount int) int64 {
	var total int64
	for _, f := range flights {
		total += f.PriceCents * int64(seatCount)
	}
	return total
}

// CreateProvisional inserts an IN_PROGRESS ticket for the whole itinerary.
// The first flight is recorded as the ticket's primary flight.
func (l *Ledger) CreateProvisional(ctx context.Context, tx repository.Tx, flights []domain.Flight, paymentRef, sessionID string, seatCount int) (*domain.Ticket, error) {
	if len(flights) == 0 {
		return nil, fmt.Errorf("ticket without flights: %w", domain.ErrInvalidRequest)
	}

	now := l.now().UTC()
	ticket := &domain.Ticket{
		FlightID:    flights[0].ID,
		Legs:        len(flights),
		PaymentRef:  paymentRef,
		SessionID:   sessionID,
		TotalAmount: TotalAmount(flights, seatCount),
		Status:      domain.TicketStatusInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.Tickets().Insert(ctx, ticket); err != nil {
		return nil, fmt.Errorf("insert ticket: %w", err)
	}
	return ticket, nil
}

// ConfirmWithSeats moves an IN_PROGRESS ticket to CONFIRMED and binds one
// ticket seat per hold. A ticket that is already CONFIRMED is returned with
// its existing seats.
func (l *Ledger) ConfirmWithSeats(ctx context.Context, tx repository.Tx, ticket *domain.Ticket, holds []domain.Hold) (*domain.Ticket, []domain.TicketSeat, error) {
	switch ticket.Status {
	case domain.TicketStatusConfirmed:
		seats, err := tx.Tickets().Seats(ctx, ticket.ID)
		if err != nil {
			return nil, nil, err
		}
		return ticket, seats, nil
	case domain.TicketStatusCancelled:
		return nil, nil, fmt.Errorf("confirm cancelled ticket %s: %w", ticket.Reference(), domain.ErrInvalidTransition)
	}

	next := *ticket
	next.Status = domain.TicketStatusConfirmed
	next.UpdatedAt = l.now().UTC()
	if err := tx.Tickets().UpdateStatus(ctx, &next); err != nil {
		return nil, nil, err
	}

	rows := make([]domain.TicketSeat, len(holds))
	for i, h := range holds {
		rows[i] = domain.TicketSeat{
			TicketID: next.ID,
			SeatID:   h.SeatID,
			FlightID: h.FlightID,
			SeatNo:   h.SeatNo,
		}
	}
	seats, err := tx.Tickets().InsertSeats(ctx, rows)
	if err != nil {
		return nil, nil, fmt.Errorf("insert ticket seats: %w", err)
	}
	return &next, seats, nil
}

// Cancel moves an IN_PROGRESS ticket to CANCELLED with reason. Cancelling a
// CANCELLED ticket returns it unchanged.
func (l *Ledger) Cancel(ctx context.Context, tx repository.Tx, ticket *domain.Ticket, reason domain.CancelReason) (*domain.Ticket, error) {
	switch ticket.Status {
	case domain.TicketStatusCancelled:
		return ticket, nil
	case domain.TicketStatusConfirmed:
		return nil, fmt.Errorf("cancel confirmed ticket %s: %w", ticket.Reference(), domain.ErrInvalidTransition)
	}

	next := *ticket
	next.Status = domain.TicketStatusCancelled
	next.CancelReason = reason
	next.UpdatedAt = l.now().UTC()
	if err := tx.Tickets().UpdateStatus(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

func (l *Ledger) FindByPaymentRef(ctx context.Context, paymentRef string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := l.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		ticket, err = tx.Tickets().GetByPaymentRef(ctx, paymentRef)
		return err
	})
	return ticket, err
}

// LockByPaymentRef reads the ticket in tx and keeps it locked until the unit
// ends.
func (l *Ledger) LockByPaymentRef(ctx context.Context, tx repository.Tx, paymentRef string) (*domain.Ticket, error) {
	return tx.Tickets().LockByPaymentRef(ctx, paymentRef)
}

func (l *Ledger) Seats(ctx context.Context, ticketID int64) ([]domain.TicketSeat, error) {
	var seats []domain.TicketSeat
	err := l.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		seats, err = tx.Tickets().Seats(ctx, ticketID)
		return err
	})
	return seats, err
}
