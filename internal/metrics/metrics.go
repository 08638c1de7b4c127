package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors recorded by the booking core. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	bookingRequests *prometheus.CounterVec
	paymentSignals  *prometheus.CounterVec
	seatClaim       prometheus.Histogram
	holdsReaped     prometheus.Counter
	outboxEvents    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		bookingRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_requests_total",
				Help: "Booking requests by result",
			},
			[]string{"result"},
		),
		paymentSignals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_signals_total",
				Help: "Payment signals by outcome and result",
			},
			[]string{"outcome", "result"},
		),
		seatClaim: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "seat_claim_duration_seconds",
				Help:    "Time spent claiming seats for one leg",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),
		holdsReaped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "holds_reaped_total",
				Help: "Expired holds deleted by the reaper",
			},
		),
		outboxEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outbox_events_total",
				Help: "Outbox delivery outcomes",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) BookingRequest(result string) {
	if m == nil {
		return
	}
	m.bookingRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) PaymentSignal(outcome, result string) {
	if m == nil {
		return
	}
	m.paymentSignals.WithLabelValues(outcome, result).Inc()
}

func (m *Metrics) ObserveSeatClaim(d time.Duration) {
	if m == nil {
		return
	}
	m.seatClaim.Observe(d.Seconds())
}

func (m *Metrics) HoldsReaped(n int) {
	if m == nil {
		return
	}
	m.holdsReaped.Add(float64(n))
}

func (m *Metrics) OutboxEvent(result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.outboxEvents.WithLabelValues(result).Add(float64(n))
}
