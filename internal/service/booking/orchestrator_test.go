package booking

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/metrics"
	"github.com/Domenick1991/flightbooking/internal/repository"
	"github.com/Domenick1991/flightbooking/internal/repository/memory"
	"github.com/Domenick1991/flightbooking/internal/service/allocation"
	"github.com/Domenick1991/flightbooking/internal/service/flights"
	"github.com/Domenick1991/flightbooking/internal/service/holds"
	"github.com/Domenick1991/flightbooking/internal/service/outbox"
	"github.com/Domenick1991/flightbooking/internal/service/tickets"
)

const holdTTL = 15 * time.Minute

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type env struct {
	store  *memory.Store
	clock  *fakeClock
	holds  *holds.Ledger
	reaper *holds.Reaper
	orch   *Orchestrator
	reg    *prometheus.Registry
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	st := memory.New()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	log := zap.NewNop()

	writer := outbox.NewWriter(outbox.WithWriterClock(clock.Now))
	holdLedger := holds.NewLedger(st, writer, log, holds.WithClock(clock.Now), holds.WithTTL(holdTTL))
	orch := NewOrchestrator(
		st,
		flights.NewFlightService(st.Flights(), nil),
		allocation.NewAllocator(allocation.WithClock(clock.Now), allocation.WithMetrics(m)),
		holdLedger,
		tickets.NewLedger(st, tickets.WithClock(clock.Now)),
		writer,
		WithLogger(log),
		WithMetrics(m),
		WithClock(clock.Now),
	)
	return &env{
		store:  st,
		clock:  clock,
		holds:  holdLedger,
		reaper: holds.NewReaper(holdLedger, m, time.Minute),
		orch:   orch,
		reg:    reg,
	}
}

func (e *env) flight(no string, priceCents int64, seats int) domain.Flight {
	nos := make([]string, seats)
	for i := range nos {
		nos[i] = fmt.Sprintf("%02dA", i+1)
	}
	return e.store.AddFlight(domain.Flight{FlightNo: no, FromAirport: "SVO", ToAirport: "LED", PriceCents: priceCents}, nos)
}

func (e *env) availability(t *testing.T, flightID int64) domain.Availability {
	t.Helper()
	a, err := e.store.Flights().Availability(context.Background(), flightID, e.clock.Now())
	require.NoError(t, err)
	return *a
}

func (e *env) topics(t *testing.T) map[string]int {
	t.Helper()
	counts := map[string]int{}
	require.NoError(t, e.store.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		events, err := tx.Outbox().ListByStatus(ctx, domain.OutboxStatusPending, 0)
		for _, ev := range events {
			counts[ev.Topic]++
		}
		return err
	}))
	return counts
}

func (e *env) ticketSeats(t *testing.T, ticketID int64) []domain.TicketSeat {
	t.Helper()
	var seats []domain.TicketSeat
	require.NoError(t, e.store.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		seats, err = tx.Tickets().Seats(ctx, ticketID)
		return err
	}))
	return seats
}

func success(ref string) PaymentSignal { return PaymentSignal{PaymentRef: ref, Outcome: OutcomeSuccess} }
func failure(ref string) PaymentSignal { return PaymentSignal{PaymentRef: ref, Outcome: OutcomeFailure} }

func TestRequestBooking_TwoLegs(t *testing.T) {
	e := newEnv(t)
	f1 := e.flight("SU1", 12000, 5)
	f2 := e.flight("SU2", 8050, 5)

	res, err := e.orch.RequestBooking(context.Background(), Request{FlightIDs: []int64{f1.ID, f2.ID}, SeatCount: 2})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^sess_\d+_[0-9a-f]{8}$`), res.SessionID)
	assert.Regexp(t, regexp.MustCompile(`^pay_[0-9a-f]{16}$`), res.PaymentRef)
	assert.Equal(t, StateTicketProvisioned, res.State)
	assert.Equal(t, int64(40100), res.TotalAmount)
	assert.Equal(t, e.clock.Now().Add(holdTTL), res.ExpiresAt)
	assert.Equal(t, []string{"01A", "02A", "01A", "02A"}, res.SeatNumbers)
	require.Len(t, res.Legs, 2)
	assert.Equal(t, f2.ID, res.Legs[1].FlightID)

	assert.Equal(t, 2, e.availability(t, f1.ID).Held)
	assert.Equal(t, 2, e.availability(t, f2.ID).Held)
	assert.Equal(t, map[string]int{domain.TopicSeatsHeld: 2, domain.TopicTicketProvisioned: 1}, e.topics(t))

	view, err := e.orch.GetBooking(context.Background(), res.PaymentRef)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, view.Ticket.Status)
	assert.Len(t, view.SeatNumbers, 4)
	require.NotNil(t, view.HoldsExpireAt)
	assert.Equal(t, res.ExpiresAt, *view.HoldsExpireAt)

	expected := `
# HELP booking_requests_total Booking requests by result
# TYPE booking_requests_total counter
booking_requests_total{result="provisioned"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(e.reg, strings.NewReader(expected), "booking_requests_total"))
}

func TestRequestBooking_Validation(t *testing.T) {
	e := newEnv(t)
	f := e.flight("SU1", 100, 5)

	tests := []struct {
		name string
		req  Request
	}{
		{"no flights", Request{SeatCount: 1}},
		{"zero seats", Request{FlightIDs: []int64{f.ID}}},
		{"too many seats", Request{FlightIDs: []int64{f.ID}, SeatCount: 10}},
		{"too many legs", Request{FlightIDs: []int64{1, 2, 3, 4}, SeatCount: 1}},
		{"duplicate legs", Request{FlightIDs: []int64{f.ID, f.ID}, SeatCount: 1}},
		{"bad id", Request{FlightIDs: []int64{0}, SeatCount: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.orch.RequestBooking(context.Background(), tt.req)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}
	assert.Equal(t, 5, e.availability(t, f.ID).Available)
}

func TestRequestBooking_UnknownFlightHoldsNothing(t *testing.T) {
	e := newEnv(t)
	f := e.flight("SU1", 100, 5)

	_, err := e.orch.RequestBooking(context.Background(), Request{FlightIDs: []int64{f.ID, 999}, SeatCount: 1})
	require.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, 5, e.availability(t, f.ID).Available)
	assert.Empty(t, e.topics(t))
}

// Three seats, two sessions asking for two each at the same time.
func TestScenarioA_ConcurrentSessionsOneFails(t *testing.T) {
	e := newEnv(t)
	f := e.flight("SU1", 100, 3)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.orch.RequestBooking(context.Background(), Request{FlightIDs: []int64{f.ID}, SeatCount: 2})
		}(i)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
			var alloc *domain.AllocationError
			require.True(t, errors.As(err, &alloc))
			assert.Zero(t, alloc.PartialHolds)
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, domain.Availability{FlightID: f.ID, Total: 3, Available: 1, Held: 2}, e.availability(t, f.ID))
}

// The second leg cannot be served, so the first one is compensated.
func TestScenarioB_CompensationReleasesEarlierLegs(t *testing.T) {
	e := newEnv(t)
	f1 := e.flight("SU1", 100, 5)
	f2 := e.flight("SU2", 100, 1)

	_, err := e.orch.RequestBooking(context.Background(), Request{FlightIDs: []int64{f1.ID, f2.ID}, SeatCount: 2})
	require.Error(t, err)

	var alloc *domain.AllocationError
	require.True(t, errors.As(err, &alloc))
	assert.Equal(t, f2.ID, alloc.FlightID)
	assert.Equal(t, 2, alloc.PartialHolds)
	assert.Equal(t, "insufficient inventory", alloc.Reason)
	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)

	var inv *domain.InsufficientInventoryError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, 1, inv.Available)

	assert.Equal(t, 5, e.availability(t, f1.ID).Available)
	assert.Equal(t, 1, e.availability(t, f2.ID).Available)

	active, err := e.holds.ActiveForSession(context.Background(), alloc.SessionID)
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.Equal(t, map[string]int{domain.TopicSeatsHeld: 1, domain.TopicSeatsReleased: 1}, e.topics(t))
}

// The lease runs out before the payment arrives.
func TestScenarioC_PaymentAfterLeaseRequestsRefund(t *testing.T) {
	for _, reaped := range []bool{true, false} {
		t.Run(fmt.Sprintf("reaped=%v", reaped), func(t *testing.T) {
			e := newEnv(t)
			f := e.flight("SU1", 100, 1)
			ctx := context.Background()

			res, err := e.orch.RequestBooking(ctx, Request{FlightIDs: []int64{f.ID}, SeatCount: 1})
			require.NoError(t, err)

			e.clock.Advance(holdTTL + time.Second)
			if reaped {
				n, err := e.reaper.SweepExpired(ctx)
				require.NoError(t, err)
				assert.Equal(t, 1, n)
			}

			_, err = e.orch.ReportPayment(ctx, success(res.PaymentRef))
			require.ErrorIs(t, err, domain.ErrNoActiveHolds)
			var noHolds *domain.NoActiveHoldsError
			require.True(t, errors.As(err, &noHolds))
			assert.Equal(t, res.TicketID, noHolds.TicketID)

			assert.Equal(t, 1, e.availability(t, f.ID).Available)

			view, err := e.orch.GetBooking(ctx, res.PaymentRef)
			require.NoError(t, err)
			assert.Equal(t, domain.TicketStatusCancelled, view.Ticket.Status)
			assert.Equal(t, domain.CancelReasonHoldsExpired, view.Ticket.CancelReason)
			assert.Empty(t, e.ticketSeats(t, res.TicketID))

			_, err = e.orch.ReportPayment(ctx, success(res.PaymentRef))
			assert.ErrorIs(t, err, domain.ErrNoActiveHolds)
			assert.Equal(t, 1, e.topics(t)[domain.TopicPaymentRefundRequired])
			assert.Zero(t, e.topics(t)[domain.TopicTicketConfirmed])
		})
	}
}

// The lease lapses and the reaper sweeps while the payment signal is being
// handled. Either the confirm lands first or the ticket is settled as a
// refund; never both, never neither.
func TestReaperRacesPaymentSuccess(t *testing.T) {
	for i := 0; i < 50; i++ {
		e := newEnv(t)
		f := e.flight("SU1", 100, 1)
		ctx := context.Background()

		res, err := e.orch.RequestBooking(ctx, Request{FlightIDs: []int64{f.ID}, SeatCount: 1})
		require.NoError(t, err)

		var (
			wg       sync.WaitGroup
			payErr   error
			paid     *PaymentResult
			sweepErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			e.clock.Advance(holdTTL + time.Second)
			_, sweepErr = e.reaper.SweepExpired(ctx)
		}()
		go func() {
			defer wg.Done()
			paid, payErr = e.orch.ReportPayment(ctx, success(res.PaymentRef))
		}()
		wg.Wait()
		require.NoError(t, sweepErr)

		view, err := e.orch.GetBooking(ctx, res.PaymentRef)
		require.NoError(t, err)
		topics := e.topics(t)

		if payErr == nil {
			assert.Equal(t, domain.TicketStatusConfirmed, paid.Status)
			assert.Equal(t, domain.TicketStatusConfirmed, view.Ticket.Status)
			assert.Equal(t, 1, e.availability(t, f.ID).Booked)
			assert.Equal(t, 1, topics[domain.TopicTicketConfirmed])
			assert.Zero(t, topics[domain.TopicPaymentRefundRequired])
			continue
		}

		require.ErrorIs(t, payErr, domain.ErrNoActiveHolds)
		assert.Equal(t, domain.TicketStatusCancelled, view.Ticket.Status)
		assert.Equal(t, domain.CancelReasonHoldsExpired, view.Ticket.CancelReason)
		assert.Equal(t, domain.Availability{FlightID: f.ID, Total: 1, Available: 1}, e.availability(t, f.ID))
		assert.Equal(t, 1, topics[domain.TopicPaymentRefundRequired])
		assert.Equal(t, 1, topics[domain.TopicSeatsReleased])
		assert.Zero(t, topics[domain.TopicTicketConfirmed])
		assert.Empty(t, e.ticketSeats(t, res.TicketID))
	}
}

func TestReaperRacesPaymentFailure(t *testing.T) {
	for i := 0; i < 50; i++ {
		e := newEnv(t)
		f := e.flight("SU1", 100, 1)
		ctx := context.Background()

		res, err := e.orch.RequestBooking(ctx, Request{FlightIDs: []int64{f.ID}, SeatCount: 1})
		require.NoError(t, err)

		var (
			wg       sync.WaitGroup
			payErr   error
			sweepErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			e.clock.Advance(holdTTL + time.Second)
			_, sweepErr = e.reaper.SweepExpired(ctx)
		}()
		go func() {
			defer wg.Done()
			_, payErr = e.orch.ReportPayment(ctx, failure(res.PaymentRef))
		}()
		wg.Wait()
		require.NoError(t, sweepErr)
		require.NoError(t, payErr)

		view, err := e.orch.GetBooking(ctx, res.PaymentRef)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusCancelled, view.Ticket.Status)
		assert.Equal(t, domain.CancelReasonPaymentFailed, view.Ticket.CancelReason)
		assert.Equal(t, domain.Availability{FlightID: f.ID, Total: 1, Available: 1}, e.availability(t, f.ID))

		topics := e.topics(t)
		assert.Equal(t, 1, topics[domain.TopicSeatsReleased])
		assert.Equal(t, 1, topics[domain.TopicTicketCancelled])
		assert.Zero(t, topics[domain.TopicPaymentRefundRequired])
	}
}

func TestReportPayment_SuccessIsIdempotent(t *testing.T) {
	e := newEnv(t)
	f := e.flight("SU1", 100, 3)
	ctx := context.Background()

	res, err := e.orch.RequestBooking(ctx, Request{FlightIDs: []int64{f.ID}, SeatCount: 2})
	require.NoError(t, err)

	first, err := e.orch.ReportPayment(ctx, success(res.PaymentRef))
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusConfirmed, first.Status)
	assert.Equal(t, fmt.Sprintf("TKT-%d", res.TicketID), first.Reference)
	assert.Equal(t, []string{"01A", "02A"}, first.SeatNumbers)
	assert.Equal(t, "SU1", first.FlightNumber)
	assert.Equal(t, int64(200), first.TotalAmount)

	second, err := e.orch.ReportPayment(ctx, success(res.PaymentRef))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Len(t, e.ticketSeats(t, res.TicketID), 2)
	assert.Equal(t, 1, e.topics(t)[domain.TopicTicketConfirmed])
	assert.Equal(t, domain.Availability{FlightID: f.ID, Total: 3, Available: 1, Booked: 2}, e.availability(t, f.ID))

	// Expiry after confirmation changes nothing.
	e.clock.Advance(holdTTL * 2)
	n, err := e.reaper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, e.availability(t, f.ID).Booked)
}

func TestReportPayment_MultiLegFlightNumber(t *testing.T) {
	e := newEnv(t)
	f1 := e.flight("SU1", 100, 2)
	f2 := e.flight("SU2", 100, 2)
	ctx := context.Background()

	paid, err := e.orch.RequestBooking(ctx, Request{FlightIDs: []int64{f1.ID, f2.ID}, SeatCount: 1})
	require.NoError(t, err)
	confirmed, err := e.orch.ReportPayment(ctx, success(paid.PaymentRef))
	require.NoError(t, err)
	assert.Equal(t, domain.MultiLegFlightNo, confirmed.FlightNumber)
	assert.Equal(t, []string{"01A", "01A"}, confirmed.SeatNumbers)

	failed, err := e.orch.RequestBooking(ctx, Request{FlightIDs: []int64{f1.ID, f2.ID}, SeatCount: 1})
	require.NoError(t, err)
	cancelled, err := e.orch.ReportPayment(ctx, failure(failed.PaymentRef))
	require.NoError(t, err)
	assert.Equal(t, domain.MultiLegFlightNo, cancelled.FlightNumber)
}

func TestReportPayment_ConcurrentSuccessConfirmsOnce(t *testing.T) {
	e := newEnv(t)
	f := e.flight("SU1", 100, 2)
	ctx := context.Background()

	res, err := e.orch.RequestBooking(ctx, Request{FlightIDs: []int64{f.ID}, SeatCount: 2})
	require.NoError(t, err)

	const n = 8
	results := make([]*PaymentResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := e.orch.ReportPayment(ctx, success(res.PaymentRef))
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
	assert.Len(t, e.ticketSeats(t, res.TicketID), 2)
	assert.Equal(t, 1, e.topics(t)[domain.TopicTicketConfirmed])
}

func TestReportPayment_Failure(t *testing.T) {
	e := newEnv(t)
	f := e.flight("SU1", 100, 2)
	ctx := context.Background()

	res, err := e.orch.RequestBooking(ctx, Request{FlightIDs: []int64{f.ID}, SeatCount: 2})
	require.NoError(t, err)

	first, err := e.orch.ReportPayment(ctx, failure(res.PaymentRef))
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCancelled, first.Status)
	assert.Equal(t, domain.CancelReasonPaymentFailed, first.CancelReason)
	assert.Equal(t, "SU1", first.FlightNumber)
	assert.Equal(t, 2, e.availability(t, f.ID).Available)

	second, err := e.orch.ReportPayment(ctx, failure(res.PaymentRef))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = e.orch.ReportPayment(ctx, success(res.PaymentRef))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	assert.Equal(t, 1, e.topics(t)[domain.TopicTicketCancelled])
	assert.Equal(t, 1, e.topics(t)[domain.TopicSeatsReleased])
	assert.Empty(t, e.ticketSeats(t, res.TicketID))

	expected := `
# HELP payment_signals_total Payment signals by outcome and result
# TYPE payment_signals_total counter
payment_signals_total{outcome="FAILURE",result="ok"} 2
payment_signals_total{outcome="SUCCESS",result="invalid_transition"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(e.reg, strings.NewReader(expected), "payment_signals_total"))
}

func TestReportPayment_FailureAfterConfirm(t *testing.T) {
	e := newEnv(t)
	f := e.flight("SU1", 100, 1)
	ctx := context.Background()

	res, err := e.orch.RequestBooking(ctx, Request{FlightIDs: []int64{f.ID}, SeatCount: 1})
	require.NoError(t, err)
	_, err = e.orch.ReportPayment(ctx, success(res.PaymentRef))
	require.NoError(t, err)

	_, err = e.orch.ReportPayment(ctx, failure(res.PaymentRef))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	view, err := e.orch.GetBooking(ctx, res.PaymentRef)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusConfirmed, view.Ticket.Status)
	assert.Equal(t, []string{"01A"}, view.SeatNumbers)
	assert.Nil(t, view.HoldsExpireAt)
}

func TestReportPayment_BadSignals(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.orch.ReportPayment(ctx, success("pay_unknown"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.orch.ReportPayment(ctx, PaymentSignal{PaymentRef: "pay_1", Outcome: "MAYBE"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = e.orch.ReportPayment(ctx, PaymentSignal{Outcome: OutcomeSuccess})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = e.orch.GetBooking(ctx, "pay_unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRequestBooking_ConcurrentNeverOverbooks(t *testing.T) {
	const (
		seats      = 12
		goroutines = 10
		perRequest = 3
	)
	e := newEnv(t)
	f1 := e.flight("SU1", 100, seats)
	f2 := e.flight("SU2", 100, seats)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		oks   []*Result
		other []error
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			legs := []int64{f1.ID, f2.ID}
			if i%2 == 1 {
				legs = []int64{f2.ID, f1.ID}
			}
			res, err := e.orch.RequestBooking(context.Background(), Request{FlightIDs: legs, SeatCount: perRequest})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				oks = append(oks, res)
			} else if !errors.Is(err, domain.ErrInsufficientInventory) {
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.LessOrEqual(t, len(oks)*perRequest, seats)
	for _, fl := range []domain.Flight{f1, f2} {
		a := e.availability(t, fl.ID)
		assert.Equal(t, len(oks)*perRequest, a.Held)
		assert.Equal(t, seats, a.Held+a.Available)
	}
}
