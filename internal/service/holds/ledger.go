// Package holds manages time-bounded seat leases for a booking session.
package holds

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/repository"
	"github.com/Domenick1991/flightbooking/internal/service/outbox"
)

type Ledger struct {
	store  repository.Store
	outbox *outbox.Writer
	log    *zap.Logger
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Ledger)

func WithTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

func NewLedger(store repository.Store, writer *outbox.Writer, log *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		outbox: writer,
		log:    log.With(zap.String("service", "holds")),
		ttl:    domain.DefaultHoldTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateHolds leases the claimed seats to the session in tx. All holds of one
// call share the same expiry. A seats.held event is written in the same unit.
func (l *Ledger) CreateHolds(ctx context.Context, tx repository.Tx, flightID int64, seats []domain.SeatRef, sessionID string) ([]domain.Hold, error) {
	now := l.now().UTC()
	expires := now.Add(l.ttl)

	holds := make([]domain.Hold, len(seats))
	seatNos := make([]string, len(seats))
	for i, s := range seats {
		holds[i] = domain.Hold{
			FlightID:  flightID,
			SeatID:    s.SeatID,
			SeatNo:    s.SeatNo,
			SessionID: sessionID,
			ExpiresAt: expires,
			CreatedAt: now,
		}
		seatNos[i] = s.SeatNo
	}

	created, err := tx.Holds().Insert(ctx, holds)
	if err != nil {
		return nil, fmt.Errorf("insert holds: %w", err)
	}

	if _, err := l.outbox.Enqueue(ctx, tx, domain.TopicSeatsHeld, flightKey(flightID), domain.SeatsHeld{
		SessionID:   sessionID,
		FlightID:    flightID,
		SeatNumbers: seatNos,
		ExpiresAt:   expires,
	}); err != nil {
		return nil, err
	}
	return created, nil
}

func (l *Ledger) ActiveForSession(ctx context.Context, sessionID string) ([]domain.Hold, error) {
	var holds []domain.Hold
	err := l.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		holds, err = tx.Holds().ActiveBySession(ctx, sessionID, l.now())
		return err
	})
	return holds, err
}

func (l *Ledger) ActiveForFlight(ctx context.Context, flightID int64) ([]domain.Hold, error) {
	var holds []domain.Hold
	err := l.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		holds, err = tx.Holds().ActiveByFlight(ctx, flightID, l.now())
		return err
	})
	return holds, err
}

// Release deletes every hold of the session, expired or not. Releasing a
// session with no holds is a no-op.
func (l *Ledger) Release(ctx context.Context, sessionID string) (int, error) {
	return l.release(ctx, sessionID, 0, domain.ReleaseReasonCancelled)
}

// ReleaseLeg deletes the session's holds on one flight. It undoes a
// committed booking leg.
func (l *Ledger) ReleaseLeg(ctx context.Context, sessionID string, flightID int64) (int, error) {
	return l.release(ctx, sessionID, flightID, domain.ReleaseReasonCompensation)
}

func (l *Ledger) release(ctx context.Context, sessionID string, flightID int64, reason string) (int, error) {
	var released int
	err := repository.RetryOnConflict(ctx, l.store, func(ctx context.Context, tx repository.Tx) error {
		var err error
		released, err = l.releaseIn(ctx, tx, sessionID, flightID, reason)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("release holds of %s: %w", sessionID, err)
	}
	if released > 0 {
		l.log.Info("holds released",
			zap.String("session_id", sessionID),
			zap.Int64("flight_id", flightID),
			zap.Int("count", released),
			zap.String("reason", reason))
	}
	return released, nil
}

// ReleaseInTx deletes every hold of the session inside the caller's unit.
func (l *Ledger) ReleaseInTx(ctx context.Context, tx repository.Tx, sessionID, reason string) (int, error) {
	return l.releaseIn(ctx, tx, sessionID, 0, reason)
}

// releaseIn deletes the session's holds, restricted to flightID when it is
// not zero, and writes one seats.released event per flight.
func (l *Ledger) releaseIn(ctx context.Context, tx repository.Tx, sessionID string, flightID int64, reason string) (int, error) {
	all, err := tx.Holds().BySession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	holds := all[:0:0]
	for _, h := range all {
		if flightID == 0 || h.FlightID == flightID {
			holds = append(holds, h)
		}
	}
	if len(holds) == 0 {
		return 0, nil
	}

	if err := tx.Holds().Delete(ctx, holds); err != nil {
		return 0, err
	}
	if err := l.emitReleased(ctx, tx, sessionID, holds, reason); err != nil {
		return 0, err
	}
	return len(holds), nil
}

// Confirm converts the session's holds into permanent bookings in tx: every
// held seat becomes unavailable and the holds are deleted, both version
// checked. It returns the confirmed holds. If the session has no holds, or any
// of them has lapsed, nothing is confirmed and domain.ErrNoActiveHolds is
// returned.
func (l *Ledger) Confirm(ctx context.Context, tx repository.Tx, sessionID string) ([]domain.Hold, error) {
	active, err := tx.Holds().BySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNoActiveHolds)
	}
	now := l.now()
	for _, h := range active {
		if !h.ActiveAt(now) {
			return nil, fmt.Errorf("session %s: hold on seat %s lapsed: %w", sessionID, h.SeatNo, domain.ErrNoActiveHolds)
		}
	}

	ids := make([]int64, len(active))
	for i, h := range active {
		ids[i] = h.SeatID
	}
	seats, err := tx.Seats().GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, s := range seats {
		if !s.IsAvailable {
			return nil, fmt.Errorf("seat %s already sold: %w", s.SeatNo, domain.ErrConflict)
		}
		if err := tx.Seats().MarkUnavailable(ctx, s.Ref()); err != nil {
			return nil, err
		}
	}

	if err := tx.Holds().Delete(ctx, active); err != nil {
		return nil, err
	}
	return active, nil
}

func (l *Ledger) emitReleased(ctx context.Context, tx repository.Tx, sessionID string, holds []domain.Hold, reason string) error {
	for _, group := range byFlight(holds) {
		if _, err := l.outbox.Enqueue(ctx, tx, domain.TopicSeatsReleased, flightKey(group.flightID), domain.SeatsReleased{
			SessionID:   sessionID,
			FlightID:    group.flightID,
			SeatNumbers: group.seatNos,
			Reason:      reason,
		}); err != nil {
			return err
		}
	}
	return nil
}

// flightKey partitions seat events by flight so consumers see them in order.
func flightKey(flightID int64) string {
	return fmt.Sprintf("flight-%d", flightID)
}

type flightGroup struct {
	flightID int64
	seatNos  []string
}

// byFlight groups holds per flight, keeping first-seen flight order.
func byFlight(holds []domain.Hold) []flightGroup {
	var groups []flightGroup
	index := make(map[int64]int)
	for _, h := range holds {
		i, ok := index[h.FlightID]
		if !ok {
			i = len(groups)
			index[h.FlightID] = i
			groups = append(groups, flightGroup{flightID: h.FlightID})
		}
		groups[i].seatNos = append(groups[i].seatNos, h.SeatNo)
	}
	return groups
}
