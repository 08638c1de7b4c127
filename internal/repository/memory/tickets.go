package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/Domenick1991/flightbooking/internal/domain"
)

type ticketRepo struct{ tx *memTx }

func (r ticketRepo) Insert(_ context.Context, ticket *domain.Ticket) error {
	ticket.ID = r.tx.store.nextID()
	ticket.Version = 1
	if ticket.UpdatedAt.IsZero() {
		ticket.UpdatedAt = ticket.CreatedAt
	}

	staged := *ticket
	r.tx.stage(func(s *Store, undo *[]func()) error {
		if _, dup := s.ticketByRef[staged.PaymentRef]; dup {
			return fmt.Errorf("payment reference %s: %w", staged.PaymentRef, domain.ErrConflict)
		}
		s.tickets[staged.ID] = staged
		s.ticketByRef[staged.PaymentRef] = staged.ID
		*undo = append(*undo, func() {
			delete(s.tickets, staged.ID)
			delete(s.ticketByRef, staged.PaymentRef)
		})
		return nil
	})
	return nil
}

func (r ticketRepo) GetByPaymentRef(_ context.Context, paymentRef string) (*domain.Ticket, error) {
	s := r.tx.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.ticketByRef[paymentRef]
	if !ok {
		return nil, fmt.Errorf("ticket for payment %s: %w", paymentRef, domain.ErrNotFound)
	}
	t := s.tickets[id]
	return &t, nil
}

func (r ticketRepo) LockByPaymentRef(ctx context.Context, paymentRef string) (*domain.Ticket, error) {
	if err := r.tx.lock(ctx, ticketKey(paymentRef)); err != nil {
		return nil, err
	}
	return r.GetByPaymentRef(ctx, paymentRef)
}

func (r ticketRepo) UpdateStatus(_ context.Context, ticket *domain.Ticket) error {
	expected := ticket.Version
	staged := *ticket
	staged.Version = expected + 1

	r.tx.stage(func(s *Store, undo *[]func()) error {
		cur, ok := s.tickets[staged.ID]
		if !ok || cur.Version != expected {
			return fmt.Errorf("ticket %d at version %d: %w", staged.ID, expected, domain.ErrConflict)
		}
		next := cur
		next.Status = staged.Status
		next.CancelReason = staged.CancelReason
		next.UpdatedAt = staged.UpdatedAt
		next.Version = staged.Version
		s.tickets[cur.ID] = next
		*undo = append(*undo, func() { s.tickets[cur.ID] = cur })
		return nil
	})

	ticket.Version = staged.Version
	return nil
}

func (r ticketRepo) InsertSeats(_ context.Context, seats []domain.TicketSeat) ([]domain.TicketSeat, error) {
	out := make([]domain.TicketSeat, len(seats))
	for i, ts := range seats {
		ts.ID = r.tx.store.nextID()
		out[i] = ts
	}

	staged := append([]domain.TicketSeat(nil), out...)
	r.tx.stage(func(s *Store, undo *[]func()) error {
		for _, ts := range staged {
			if _, taken := s.ticketSeats[ts.SeatID]; taken {
				return fmt.Errorf("seat %d already ticketed: %w", ts.SeatID, domain.ErrConflict)
			}
			s.ticketSeats[ts.SeatID] = ts
			seatID := ts.SeatID
			*undo = append(*undo, func() { delete(s.ticketSeats, seatID) })
		}
		return nil
	})
	return out, nil
}

func (r ticketRepo) Seats(_ context.Context, ticketID int64) ([]domain.TicketSeat, error) {
	s := r.tx.store
	s.mu.RLock()
	var seats []domain.TicketSeat
	for _, ts := range s.ticketSeats {
		if ts.TicketID == ticketID {
			seats = append(seats, ts)
		}
	}
	s.mu.RUnlock()

	sort.Slice(seats, func(i, j int) bool { return seats[i].ID < seats[j].ID })
	return seats, nil
}
