// Package memory is an in-process implementation of the repository contract.
// Committed rows live behind one RWMutex. Writes made inside a unit are staged
// and applied at commit, each one re-validated against committed state, so a
// unit either lands whole or not at all. Row locks taken during the unit are
// released only after commit or rollback.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/repository"
)

type Store struct {
	mu sync.RWMutex

	flights     map[int64]domain.Flight
	seats       map[int64]domain.Seat
	holds       map[int64]domain.Hold
	tickets     map[int64]domain.Ticket
	ticketByRef map[string]int64
	// ticketSeats is keyed by seat id: a seat belongs to at most one ticket.
	ticketSeats map[int64]domain.TicketSeat
	outbox      map[int64]domain.OutboxEvent
	outboxByEID map[string]int64

	seq   atomic.Int64
	locks *lockTable
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		flights:     make(map[int64]domain.Flight),
		seats:       make(map[int64]domain.Seat),
		holds:       make(map[int64]domain.Hold),
		tickets:     make(map[int64]domain.Ticket),
		ticketByRef: make(map[string]int64),
		ticketSeats: make(map[int64]domain.TicketSeat),
		outbox:      make(map[int64]domain.OutboxEvent),
		outboxByEID: make(map[string]int64),
		locks:       newLockTable(),
	}
}

func (s *Store) nextID() int64 {
	return s.seq.Add(1)
}

// AddFlight stores a flight together with one available seat per seat number
// and returns the flight with its assigned id.
func (s *Store) AddFlight(f domain.Flight, seatNos []string) domain.Flight {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.ID = s.nextID()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	f.UpdatedAt = f.CreatedAt
	s.flights[f.ID] = f

	for _, no := range seatNos {
		id := s.nextID()
		s.seats[id] = domain.Seat{
			ID:          id,
			FlightID:    f.ID,
			SeatNo:      no,
			CabinClass:  "ECONOMY",
			IsAvailable: true,
			Version:     1,
		}
	}
	return f
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{store: s}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

// op validates one staged write against committed state and applies it,
// pushing the inverse onto undo.
type op func(s *Store, undo *[]func()) error

type memTx struct {
	store *Store
	ops   []op
	held  []string
}

func (tx *memTx) stage(o op) {
	tx.ops = append(tx.ops, o)
}

func (tx *memTx) commit() error {
	if len(tx.ops) == 0 {
		return nil
	}

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var undo []func()
	for _, o := range tx.ops {
		if err := o(s, &undo); err != nil {
			for i := len(undo) - 1; i >= 0; i-- {
				undo[i]()
			}
			return err
		}
	}
	return nil
}

func (tx *memTx) release() {
	for i := len(tx.held) - 1; i >= 0; i-- {
		tx.store.locks.unlock(tx.held[i])
	}
	tx.held = nil
}

func (tx *memTx) tryLock(key string) bool {
	for _, k := range tx.held {
		if k == key {
			return true
		}
	}
	if !tx.store.locks.tryLock(key) {
		return false
	}
	tx.held = append(tx.held, key)
	return true
}

func (tx *memTx) lock(ctx context.Context, key string) error {
	for _, k := range tx.held {
		if k == key {
			return nil
		}
	}
	if err := tx.store.locks.lock(ctx, key); err != nil {
		return err
	}
	tx.held = append(tx.held, key)
	return nil
}

func (tx *memTx) Flights() repository.FlightRepository { return flightRepo{tx} }
func (tx *memTx) Seats() repository.SeatRepository     { return seatRepo{tx} }
func (tx *memTx) Holds() repository.HoldRepository     { return holdRepo{tx} }
func (tx *memTx) Tickets() repository.TicketRepository { return ticketRepo{tx} }
func (tx *memTx) Outbox() repository.OutboxRepository  { return outboxRepo{tx} }

func seatKey(id int64) string     { return fmt.Sprintf("seat:%d", id) }
func ticketKey(ref string) string { return "ticket:" + ref }
func outboxKey(id int64) string   { return fmt.Sprintf("outbox:%d", id) }

// claimable reports whether the seat can be handed out at now. Callers hold
// s.mu.
func (s *Store) claimable(seat domain.Seat, now time.Time) bool {
	if !seat.IsAvailable {
		return false
	}
	if _, booked := s.ticketSeats[seat.ID]; booked {
		return false
	}
	for _, h := range s.holds {
		if h.SeatID == seat.ID && h.ActiveAt(now) {
			return false
		}
	}
	return true
}

func sortHolds(holds []domain.Hold) {
	sort.Slice(holds, func(i, j int) bool { return holds[i].ID < holds[j].ID })
}

// Flights returns a flight repository reading committed state outside any
// unit.
func (s *Store) Flights() repository.FlightRepository {
	return flightRepo{&memTx{store: s}}
}
