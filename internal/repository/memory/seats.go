package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
)

type seatRepo struct{ tx *memTx }

func (r seatRepo) ListByFlight(_ context.Context, flightID int64) ([]domain.Seat, error) {
	s := r.tx.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var seats []domain.Seat
	for _, seat := range s.seats {
		if seat.FlightID == flightID {
			seats = append(seats, seat)
		}
	}
	sortSeats(seats)
	return seats, nil
}

func (r seatRepo) GetByIDs(_ context.Context, ids []int64) ([]domain.Seat, error) {
	s := r.tx.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	seats := make([]domain.Seat, 0, len(ids))
	for _, id := range ids {
		seat, ok := s.seats[id]
		if !ok {
			return nil, fmt.Errorf("seat %d: %w", id, domain.ErrNotFound)
		}
		seats = append(seats, seat)
	}
	return seats, nil
}

func (r seatRepo) ClaimAvailable(_ context.Context, flightID int64, limit int, now time.Time) ([]domain.Seat, error) {
	if limit <= 0 {
		return nil, nil
	}
	s := r.tx.store

	s.mu.RLock()
	var candidates []domain.Seat
	for _, seat := range s.seats {
		if seat.FlightID == flightID && s.claimable(seat, now) {
			candidates = append(candidates, seat)
		}
	}
	s.mu.RUnlock()
	sortSeats(candidates)

	claimed := make([]domain.Seat, 0, limit)
	for _, c := range candidates {
		if len(claimed) == limit {
			break
		}
		key := seatKey(c.ID)
		if !s.locks.tryLock(key) {
			continue
		}
		r.tx.held = append(r.tx.held, key)

		// The candidate list may be stale by now; re-read under the lock.
		s.mu.RLock()
		fresh, ok := s.seats[c.ID]
		ok = ok && s.claimable(fresh, now)
		s.mu.RUnlock()
		if !ok {
			continue
		}
		claimed = append(claimed, fresh)
	}
	return claimed, nil
}

func (r seatRepo) MarkUnavailable(_ context.Context, ref domain.SeatRef) error {
	r.tx.stage(func(s *Store, undo *[]func()) error {
		seat, ok := s.seats[ref.SeatID]
		if !ok || seat.Version != ref.Version {
			return fmt.Errorf("seat %d at version %d: %w", ref.SeatID, ref.Version, domain.ErrConflict)
		}
		prev := seat
		seat.IsAvailable = false
		seat.Version++
		s.seats[seat.ID] = seat
		*undo = append(*undo, func() { s.seats[prev.ID] = prev })
		return nil
	})
	return nil
}

func sortSeats(seats []domain.Seat) {
	sort.Slice(seats, func(i, j int) bool {
		if seats[i].SeatNo == seats[j].SeatNo {
			return seats[i].ID < seats[j].ID
		}
		return seats[i].SeatNo < seats[j].SeatNo
	})
}
