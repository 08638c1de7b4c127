package repository

import (
	"context"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
)

// Store runs fn as one atomic unit: every write made through tx becomes
// visible together on commit, or not at all. Returning an error from fn rolls
// the unit back.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes the repositories bound to a single atomic unit.
type Tx interface {
	Flights() FlightRepository
	Seats() SeatRepository
	Holds() HoldRepository
	Tickets() TicketRepository
	Outbox() OutboxRepository
}

type FlightRepository interface {
	List(ctx context.Context) ([]domain.Flight, error)
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
	Availability(ctx context.Context, flightID int64, now time.Time) (*domain.Availability, error)
}

type SeatRepository interface {
	ListByFlight(ctx context.Context, flightID int64) ([]domain.Seat, error)
	GetByIDs(ctx context.Context, ids []int64) ([]domain.Seat, error)
	// ClaimAvailable locks up to limit claimable seats of the flight, ordered
	// by seat number. Rows locked by another unit are skipped, never waited on.
	ClaimAvailable(ctx context.Context, flightID int64, limit int, now time.Time) ([]domain.Seat, error)
	// MarkUnavailable flips the seat to permanently unavailable. A version
	// mismatch fails with domain.ErrConflict.
	MarkUnavailable(ctx context.Context, seat domain.SeatRef) error
}

type HoldRepository interface {
	Insert(ctx context.Context, holds []domain.Hold) ([]domain.Hold, error)
	ActiveBySession(ctx context.Context, sessionID string, now time.Time) ([]domain.Hold, error)
	ActiveByFlight(ctx context.Context, flightID int64, now time.Time) ([]domain.Hold, error)
	// BySession returns every hold of the session, expired or not.
	BySession(ctx context.Context, sessionID string) ([]domain.Hold, error)
	// Expired returns holds with expires_at <= now that no other unit is
	// currently working on.
	Expired(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error)
	// Delete removes exactly the given holds at their versions or fails with
	// domain.ErrConflict.
	Delete(ctx context.Context, holds []domain.Hold) error
}

type TicketRepository interface {
	Insert(ctx context.Context, ticket *domain.Ticket) error
	GetByPaymentRef(ctx context.Context, paymentRef string) (*domain.Ticket, error)
	// LockByPaymentRef reads the ticket and holds its row lock until the unit
	// ends, serialising concurrent payment signals for one ticket.
	LockByPaymentRef(ctx context.Context, paymentRef string) (*domain.Ticket, error)
	// UpdateStatus writes status and cancel reason if the stored version still
	// matches ticket.Version, then bumps ticket.Version.
	UpdateStatus(ctx context.Context, ticket *domain.Ticket) error
	InsertSeats(ctx context.Context, seats []domain.TicketSeat) ([]domain.TicketSeat, error)
	Seats(ctx context.Context, ticketID int64) ([]domain.TicketSeat, error)
}

type OutboxRepository interface {
	Insert(ctx context.Context, event *domain.OutboxEvent) error
	// ClaimPending locks up to limit PENDING events ordered by id, skipping
	// rows locked by another dispatcher.
	ClaimPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	// Update persists status, attempts, last error and dispatch time.
	Update(ctx context.Context, event domain.OutboxEvent) error
	ListByStatus(ctx context.Context, status domain.OutboxStatus, limit int) ([]domain.OutboxEvent, error)
	GetByEventID(ctx context.Context, eventID string) (*domain.OutboxEvent, error)
	DeleteOlderThan(ctx context.Context, status domain.OutboxStatus, cutoff time.Time) (int, error)
}
