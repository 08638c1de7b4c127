// Package replica maintains a downstream copy of per-flight seat counts from
// the events relayed by the outbox dispatcher.
package replica

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Domenick1991/flightbooking/internal/cache"
	"github.com/Domenick1991/flightbooking/internal/domain"
	ikafka "github.com/Domenick1991/flightbooking/internal/kafka"
)

// Topics the replica subscribes to.
var Topics = []string{
	domain.TopicSeatsHeld,
	domain.TopicSeatsReleased,
	domain.TopicTicketConfirmed,
	domain.TopicPaymentRefundRequired,
}

// Sink is the replica storage. *cache.RedisCache implements it.
type Sink interface {
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
	UnmarkProcessed(ctx context.Context, eventID string) error
	AdjustSeats(ctx context.Context, flightID int64, field string, delta int64) error
	PushRefund(ctx context.Context, payload []byte) error
}

type Projector struct {
	sink Sink
	log  *zap.Logger
}

func NewProjector(sink Sink, log *zap.Logger) *Projector {
	return &Projector{sink: sink, log: log.With(zap.String("service", "seat-replica"))}
}

// Handle applies one message at most once per event id. A failed apply
// forgets the id again so the uncommitted message is retried.
func (p *Projector) Handle(ctx context.Context, msg kafka.Message) error {
	var env domain.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		p.log.Error("dropping undecodable message",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}
	if env.EventID == "" {
		env.EventID = ikafka.Header(msg, ikafka.HeaderEventID)
	}
	if env.Topic == "" {
		env.Topic = ikafka.Header(msg, ikafka.HeaderEventTopic)
	}

	first, err := p.sink.MarkProcessed(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("dedupe %s: %w", env.EventID, err)
	}
	if !first {
		p.log.Debug("duplicate event skipped", zap.String("event_id", env.EventID))
		return nil
	}

	if err := p.apply(ctx, env); err != nil {
		if uerr := p.sink.UnmarkProcessed(ctx, env.EventID); uerr != nil {
			p.log.Error("unmark processed failed", zap.String("event_id", env.EventID), zap.Error(uerr))
		}
		return fmt.Errorf("apply %s %s: %w", env.Topic, env.EventID, err)
	}
	return nil
}

func (p *Projector) apply(ctx context.Context, env domain.Envelope) error {
	switch env.Topic {
	case domain.TopicSeatsHeld:
		var e domain.SeatsHeld
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return err
		}
		return p.sink.AdjustSeats(ctx, e.FlightID, cache.FieldHeld, int64(len(e.SeatNumbers)))

	case domain.TopicSeatsReleased:
		var e domain.SeatsReleased
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return err
		}
		return p.sink.AdjustSeats(ctx, e.FlightID, cache.FieldHeld, -int64(len(e.SeatNumbers)))

	case domain.TopicTicketConfirmed:
		var e domain.TicketConfirmed
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return err
		}
		perFlight := map[int64]int64{}
		var order []int64
		for _, s := range e.Seats {
			if _, ok := perFlight[s.FlightID]; !ok {
				order = append(order, s.FlightID)
			}
			perFlight[s.FlightID]++
		}
		for _, flightID := range order {
			n := perFlight[flightID]
			if err := p.sink.AdjustSeats(ctx, flightID, cache.FieldHeld, -n); err != nil {
				return err
			}
			if err := p.sink.AdjustSeats(ctx, flightID, cache.FieldBooked, n); err != nil {
				return err
			}
		}
		return nil

	case domain.TopicPaymentRefundRequired:
		if err := p.sink.PushRefund(ctx, env.Data); err != nil {
			return err
		}
		p.log.Info("refund queued", zap.String("event_id", env.EventID))
		return nil

	default:
		p.log.Debug("ignoring topic", zap.String("topic", env.Topic))
		return nil
	}
}

// Run consumes until ctx is done.
func (p *Projector) Run(ctx context.Context, consumer *ikafka.Consumer) error {
	return consumer.Consume(ctx, p.Handle)
}

var _ Sink = (*cache.RedisCache)(nil)
