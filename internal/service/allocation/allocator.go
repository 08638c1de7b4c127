// Package allocation claims free seats on a flight inside a caller's unit.
package allocation

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/metrics"
	"github.com/Domenick1991/flightbooking/internal/repository"
)

type Allocator struct {
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Allocator)

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Allocator) {
		a.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Allocator) {
		a.now = now
	}
}

func NewAllocator(opts ...Option) *Allocator {
	a := &Allocator{now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate claims seatCount seats of the flight in tx, lowest seat numbers
// first. Seats another unit is working on are skipped. When fewer than
// seatCount seats can be claimed it returns *domain.InsufficientInventoryError
// and the caller must roll tx back.
func (a *Allocator) Allocate(ctx context.Context, tx repository.Tx, flightID int64, seatCount int) ([]domain.SeatRef, error) {
	if seatCount < 1 {
		return nil, fmt.Errorf("seat count %d: %w", seatCount, domain.ErrInvalidRequest)
	}
	if _, err := tx.Flights().GetByID(ctx, flightID); err != nil {
		return nil, err
	}

	started := time.Now()
	seats, err := tx.Seats().ClaimAvailable(ctx, flightID, seatCount, a.now())
	a.metrics.ObserveSeatClaim(time.Since(started))
	if err != nil {
		return nil, fmt.Errorf("claim seats on flight %d: %w", flightID, err)
	}

	if len(seats) < seatCount {
		return nil, &domain.InsufficientInventoryError{
			FlightID:  flightID,
			Requested: seatCount,
			Available: len(seats),
		}
	}

	refs := make([]domain.SeatRef, len(seats))
	for i, s := range seats {
		refs[i] = s.Ref()
	}
	return refs, nil
}
