// Package outbox stores integration events inside the unit that produced them
// and later relays them to the broker.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/repository"
)

type Writer struct {
	maxRetries int
	now        func() time.Time
}

type WriterOption func(*Writer)

func WithMaxRetries(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.maxRetries = n
		}
	}
}

func WithWriterClock(now func() time.Time) WriterOption {
	return func(w *Writer) {
		w.now = now
	}
}

func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{maxRetries: domain.DefaultOutboxMaxRetries, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enqueue writes a PENDING event in tx. It becomes visible only if the unit
// commits.
func (w *Writer) Enqueue(ctx context.Context, tx repository.Tx, topic, key string, data any) (*domain.OutboxEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", topic, err)
	}

	now := w.now().UTC()
	env := domain.Envelope{
		EventID:    uuid.NewString(),
		Topic:      topic,
		OccurredAt: now,
		Data:       raw,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", topic, err)
	}

	event := &domain.OutboxEvent{
		EventID:    env.EventID,
		Topic:      topic,
		Key:        key,
		Payload:    payload,
		Status:     domain.OutboxStatusPending,
		MaxRetries: w.maxRetries,
		CreatedAt:  now,
	}
	if err := tx.Outbox().Insert(ctx, event); err != nil {
		return nil, fmt.Errorf("insert %s event: %w", topic, err)
	}
	return event, nil
}
