package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
)

type outboxRepo struct{ tx *memTx }

func (r outboxRepo) Insert(_ context.Context, event *domain.OutboxEvent) error {
	event.ID = r.tx.store.nextID()
	if event.Status == "" {
		event.Status = domain.OutboxStatusPending
	}
	if event.MaxRetries == 0 {
		event.MaxRetries = domain.DefaultOutboxMaxRetries
	}

	staged := *event
	r.tx.stage(func(s *Store, undo *[]func()) error {
		if _, dup := s.outboxByEID[staged.EventID]; dup {
			return fmt.Errorf("outbox event %s: %w", staged.EventID, domain.ErrConflict)
		}
		s.outbox[staged.ID] = staged
		s.outboxByEID[staged.EventID] = staged.ID
		*undo = append(*undo, func() {
			delete(s.outbox, staged.ID)
			delete(s.outboxByEID, staged.EventID)
		})
		return nil
	})
	return nil
}

func (r outboxRepo) ClaimPending(_ context.Context, limit int) ([]domain.OutboxEvent, error) {
	candidates := r.filter(func(e domain.OutboxEvent) bool {
		return e.Status == domain.OutboxStatusPending
	}, 0)

	s := r.tx.store
	var claimed []domain.OutboxEvent
	for _, c := range candidates {
		if limit > 0 && len(claimed) == limit {
			break
		}
		if !r.tx.tryLock(outboxKey(c.ID)) {
			continue
		}
		s.mu.RLock()
		fresh, ok := s.outbox[c.ID]
		s.mu.RUnlock()
		if !ok || fresh.Status != domain.OutboxStatusPending {
			continue
		}
		claimed = append(claimed, fresh)
	}
	return claimed, nil
}

func (r outboxRepo) Update(_ context.Context, event domain.OutboxEvent) error {
	r.tx.stage(func(s *Store, undo *[]func()) error {
		cur, ok := s.outbox[event.ID]
		if !ok {
			return fmt.Errorf("outbox event %d: %w", event.ID, domain.ErrNotFound)
		}
		next := cur
		next.Status = event.Status
		next.Attempts = event.Attempts
		next.MaxRetries = event.MaxRetries
		next.LastError = event.LastError
		next.DispatchedAt = event.DispatchedAt
		s.outbox[cur.ID] = next
		*undo = append(*undo, func() { s.outbox[cur.ID] = cur })
		return nil
	})
	return nil
}

func (r outboxRepo) ListByStatus(_ context.Context, status domain.OutboxStatus, limit int) ([]domain.OutboxEvent, error) {
	return r.filter(func(e domain.OutboxEvent) bool {
		return e.Status == status
	}, limit), nil
}

func (r outboxRepo) GetByEventID(_ context.Context, eventID string) (*domain.OutboxEvent, error) {
	s := r.tx.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.outboxByEID[eventID]
	if !ok {
		return nil, fmt.Errorf("outbox event %s: %w", eventID, domain.ErrNotFound)
	}
	e := s.outbox[id]
	return &e, nil
}

// DeleteOlderThan removes DISPATCHED events dispatched before cutoff, or
// events of any other status created before cutoff. Victims are re-checked at
// commit, so an event moved to another status by a unit that committed first
// is kept.
func (r outboxRepo) DeleteOlderThan(_ context.Context, status domain.OutboxStatus, cutoff time.Time) (int, error) {
	expired := func(e domain.OutboxEvent) bool {
		if e.Status != status {
			return false
		}
		if status == domain.OutboxStatusDispatched && e.DispatchedAt != nil {
			return e.DispatchedAt.Before(cutoff)
		}
		return e.CreatedAt.Before(cutoff)
	}

	victims := r.filter(expired, 0)
	if len(victims) == 0 {
		return 0, nil
	}

	r.tx.stage(func(s *Store, undo *[]func()) error {
		for _, v := range victims {
			cur, ok := s.outbox[v.ID]
			if !ok || !expired(cur) {
				continue
			}
			delete(s.outbox, cur.ID)
			delete(s.outboxByEID, cur.EventID)
			*undo = append(*undo, func() {
				s.outbox[cur.ID] = cur
				s.outboxByEID[cur.EventID] = cur.ID
			})
		}
		return nil
	})
	return len(victims), nil
}

func (r outboxRepo) filter(keep func(domain.OutboxEvent) bool, limit int) []domain.OutboxEvent {
	s := r.tx.store
	s.mu.RLock()
	var events []domain.OutboxEvent
	for _, e := range s.outbox {
		if keep(e) {
			events = append(events, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events
}
