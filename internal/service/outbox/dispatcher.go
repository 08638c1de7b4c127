package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/metrics"
	"github.com/Domenick1991/flightbooking/internal/repository"
)

// Publisher delivers one outbox event to the broker.
type Publisher interface {
	Publish(ctx context.Context, event domain.OutboxEvent) error
}

type Dispatcher struct {
	store     repository.Store
	publisher Publisher
	log       *zap.Logger
	metrics   *metrics.Metrics
	batchSize int
	interval  time.Duration
	now       func() time.Time
}

type DispatcherOption func(*Dispatcher)

func WithBatchSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

func WithInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

func NewDispatcher(store repository.Store, publisher Publisher, log *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		publisher: publisher,
		log:       log.With(zap.String("service", "outbox-dispatcher")),
		batchSize: 100,
		interval:  500 * time.Millisecond,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DispatchBatch claims up to one batch of PENDING events, publishes them in
// id order and records each outcome. failed counts delivery attempts that did
// not succeed, whether or not the event has retries left.
func (d *Dispatcher) DispatchBatch(ctx context.Context) (dispatched, failed int, err error) {
	var deadLettered int
	var lastErr error

	err = d.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		dispatched, failed, deadLettered, lastErr = 0, 0, 0, nil

		events, err := tx.Outbox().ClaimPending(ctx, d.batchSize)
		if err != nil {
			return fmt.Errorf("claim pending events: %w", err)
		}

		for _, event := range events {
			if pubErr := d.publisher.Publish(ctx, event); pubErr != nil {
				event.RecordFailure(pubErr)
				failed++
				lastErr = pubErr
				if event.Status == domain.OutboxStatusFailed {
					deadLettered++
					d.log.Error("outbox event exhausted retries",
						zap.String("event_id", event.EventID),
						zap.String("topic", event.Topic),
						zap.Int("attempts", event.Attempts),
						zap.Error(pubErr))
				}
			} else {
				event.MarkDispatched(d.now().UTC())
				dispatched++
			}

			if err := tx.Outbox().Update(ctx, event); err != nil {
				return fmt.Errorf("update event %s: %w", event.EventID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	d.metrics.OutboxEvent("dispatched", dispatched)
	d.metrics.OutboxEvent("retry", failed-deadLettered)
	d.metrics.OutboxEvent("failed", deadLettered)

	if failed > 0 {
		return dispatched, failed, fmt.Errorf("%d of %d events not delivered: %w: %w", failed, dispatched+failed, domain.ErrDeliveryFailure, lastErr)
	}
	return dispatched, failed, nil
}

// Run dispatches on every tick until ctx is done. A full batch is followed
// immediately by another one.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for ctx.Err() == nil {
		dispatched, failed, err := d.DispatchBatch(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrDeliveryFailure) {
				d.log.Warn("outbox delivery failed", zap.Int("dispatched", dispatched), zap.Int("failed", failed), zap.Error(err))
			} else if ctx.Err() == nil {
				d.log.Error("outbox dispatch failed", zap.Error(err))
			}
			return
		}
		if dispatched > 0 {
			d.log.Debug("outbox batch dispatched", zap.Int("dispatched", dispatched))
		}
		if dispatched < d.batchSize {
			return
		}
	}
}

// Purge deletes DISPATCHED and FAILED events older than retention.
func (d *Dispatcher) Purge(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := d.now().UTC().Add(-retention)
	var total int
	err := d.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		total = 0
		for _, status := range []domain.OutboxStatus{domain.OutboxStatusDispatched, domain.OutboxStatusFailed} {
			n, err := tx.Outbox().DeleteOlderThan(ctx, status, cutoff)
			if err != nil {
				return fmt.Errorf("purge %s events: %w", status, err)
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if total > 0 {
		d.log.Info("outbox purged", zap.Int("deleted", total), zap.Time("cutoff", cutoff))
	}
	return total, nil
}

// RunPurge purges on every interval tick until ctx is done.
func (d *Dispatcher) RunPurge(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := d.Purge(ctx, retention); err != nil && ctx.Err() == nil {
				d.log.Error("outbox purge failed", zap.Error(err))
			}
		}
	}
}

func (d *Dispatcher) Failed(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	var events []domain.OutboxEvent
	err := d.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		events, err = tx.Outbox().ListByStatus(ctx, domain.OutboxStatusFailed, limit)
		return err
	})
	return events, err
}

// Requeue moves a FAILED event back to PENDING with a fresh retry budget.
func (d *Dispatcher) Requeue(ctx context.Context, eventID string) (*domain.OutboxEvent, error) {
	var event *domain.OutboxEvent
	err := d.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		event, err = tx.Outbox().GetByEventID(ctx, eventID)
		if err != nil {
			return err
		}
		if event.Status != domain.OutboxStatusFailed {
			return fmt.Errorf("event %s is %s: %w", eventID, event.Status, domain.ErrInvalidTransition)
		}
		event.Status = domain.OutboxStatusPending
		event.Attempts = 0
		event.LastError = ""
		return tx.Outbox().Update(ctx, *event)
	})
	if err != nil {
		return nil, err
	}
	d.log.Info("outbox event requeued", zap.String("event_id", eventID))
	return event, nil
}
