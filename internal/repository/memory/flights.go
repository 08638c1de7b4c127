package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
)

type flightRepo struct{ tx *memTx }

func (r flightRepo) List(_ context.Context) ([]domain.Flight, error) {
	s := r.tx.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	flights := make([]domain.Flight, 0, len(s.flights))
	for _, f := range s.flights {
		flights = append(flights, f)
	}
	sort.Slice(flights, func(i, j int) bool {
		if flights[i].DepartureTime.Equal(flights[j].DepartureTime) {
			return flights[i].ID < flights[j].ID
		}
		return flights[i].DepartureTime.Before(flights[j].DepartureTime)
	})
	return flights, nil
}

func (r flightRepo) GetByID(_ context.Context, id int64) (*domain.Flight, error) {
	s := r.tx.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flights[id]
	if !ok {
		return nil, fmt.Errorf("flight %d: %w", id, domain.ErrNotFound)
	}
	return &f, nil
}

func (r flightRepo) Availability(_ context.Context, flightID int64, now time.Time) (*domain.Availability, error) {
	s := r.tx.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.flights[flightID]; !ok {
		return nil, fmt.Errorf("flight %d: %w", flightID, domain.ErrNotFound)
	}

	held := make(map[int64]bool)
	for _, h := range s.holds {
		if h.FlightID == flightID && h.ActiveAt(now) {
			held[h.SeatID] = true
		}
	}

	a := &domain.Availability{FlightID: flightID}
	for _, seat := range s.seats {
		if seat.FlightID != flightID {
			continue
		}
		a.Total++
		_, booked := s.ticketSeats[seat.ID]
		switch {
		case booked || !seat.IsAvailable:
			a.Booked++
		case held[seat.ID]:
			a.Held++
		default:
			a.Available++
		}
	}
	return a, nil
}
