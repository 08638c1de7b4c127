package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
)

type holdRepo struct{ tx *memTx }

func (r holdRepo) Insert(_ context.Context, holds []domain.Hold) ([]domain.Hold, error) {
	out := make([]domain.Hold, len(holds))
	for i, h := range holds {
		h.ID = r.tx.store.nextID()
		h.Version = 1
		out[i] = h
	}

	staged := append([]domain.Hold(nil), out...)
	r.tx.stage(func(s *Store, undo *[]func()) error {
		for _, h := range staged {
			seat, ok := s.seats[h.SeatID]
			if !ok || !seat.IsAvailable {
				return fmt.Errorf("hold on seat %d: %w", h.SeatID, domain.ErrConflict)
			}
			if _, booked := s.ticketSeats[h.SeatID]; booked {
				return fmt.Errorf("hold on booked seat %d: %w", h.SeatID, domain.ErrConflict)
			}
			for _, other := range s.holds {
				if other.SeatID == h.SeatID && other.ActiveAt(h.CreatedAt) {
					return fmt.Errorf("seat %d already held: %w", h.SeatID, domain.ErrConflict)
				}
			}
			s.holds[h.ID] = h
			id := h.ID
			*undo = append(*undo, func() { delete(s.holds, id) })
		}
		return nil
	})
	return out, nil
}

func (r holdRepo) ActiveBySession(_ context.Context, sessionID string, now time.Time) ([]domain.Hold, error) {
	return r.filter(func(h domain.Hold) bool {
		return h.SessionID == sessionID && h.ActiveAt(now)
	}, 0), nil
}

func (r holdRepo) ActiveByFlight(_ context.Context, flightID int64, now time.Time) ([]domain.Hold, error) {
	return r.filter(func(h domain.Hold) bool {
		return h.FlightID == flightID && h.ActiveAt(now)
	}, 0), nil
}

func (r holdRepo) BySession(_ context.Context, sessionID string) ([]domain.Hold, error) {
	return r.filter(func(h domain.Hold) bool {
		return h.SessionID == sessionID
	}, 0), nil
}

func (r holdRepo) Expired(_ context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	return r.filter(func(h domain.Hold) bool {
		return !h.ActiveAt(now)
	}, limit), nil
}

func (r holdRepo) Delete(_ context.Context, holds []domain.Hold) error {
	if len(holds) == 0 {
		return nil
	}
	staged := append([]domain.Hold(nil), holds...)
	r.tx.stage(func(s *Store, undo *[]func()) error {
		for _, h := range staged {
			cur, ok := s.holds[h.ID]
			if !ok || cur.Version != h.Version {
				return fmt.Errorf("hold %d at version %d: %w", h.ID, h.Version, domain.ErrConflict)
			}
			delete(s.holds, h.ID)
			*undo = append(*undo, func() { s.holds[cur.ID] = cur })
		}
		return nil
	})
	return nil
}

func (r holdRepo) filter(keep func(domain.Hold) bool, limit int) []domain.Hold {
	s := r.tx.store
	s.mu.RLock()
	var holds []domain.Hold
	for _, h := range s.holds {
		if keep(h) {
			holds = append(holds, h)
		}
	}
	s.mu.RUnlock()

	sortHolds(holds)
	if limit > 0 && len(holds) > limit {
		holds = holds[:limit]
	}
	return holds
}
