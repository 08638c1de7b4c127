package tickets

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/repository"
	"github.com/Domenick1991/flightbooking/internal/repository/memory"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newLedger() (*memory.Store, *Ledger) {
	st := memory.New()
	return st, NewLedger(st, WithClock(func() time.Time { return now }))
}

func provision(t *testing.T, st *memory.Store, l *Ledger, flights []domain.Flight) *domain.Ticket {
	t.Helper()
	var ticket *domain.Ticket
	require.NoError(t, st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		ticket, err = l.CreateProvisional(ctx, tx, flights, "pay_0123456789abcdef", "sess_1", 2)
		return err
	}))
	return ticket
}

func TestTotalAmount(t *testing.T) {
	flights := []domain.Flight{{PriceCents: 12000}, {PriceCents: 8050}}
	assert.Equal(t, int64(40100), TotalAmount(flights, 2))
	assert.Zero(t, TotalAmount(nil, 3))
}

func TestCreateProvisional(t *testing.T) {
	st, l := newLedger()
	f1 := st.AddFlight(domain.Flight{FlightNo: "SU1", PriceCents: 10000}, nil)
	f2 := st.AddFlight(domain.Flight{FlightNo: "SU2", PriceCents: 5000}, nil)

	ticket := provision(t, st, l, []domain.Flight{f1, f2})
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
	assert.Equal(t, f1.ID, ticket.FlightID)
	assert.Equal(t, 2, ticket.Legs)
	assert.True(t, ticket.MultiLeg())
	assert.Equal(t, int64(30000), ticket.TotalAmount)

	got, err := l.FindByPaymentRef(context.Background(), "pay_0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, got.ID)

	err = st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		_, err := l.CreateProvisional(ctx, tx, nil, "pay_x", "sess_x", 1)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestConfirmWithSeats_Idempotent(t *testing.T) {
	st, l := newLedger()
	f := st.AddFlight(domain.Flight{FlightNo: "SU1", PriceCents: 100}, []string{"1A", "1B"})
	ticket := provision(t, st, l, []domain.Flight{f})
	ctx := context.Background()

	var seats []domain.Seat
	require.NoError(t, st.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		seats, err = tx.Seats().ListByFlight(ctx, f.ID)
		return err
	}))
	holds := []domain.Hold{
		{FlightID: f.ID, SeatID: seats[0].ID, SeatNo: seats[0].SeatNo},
		{FlightID: f.ID, SeatID: seats[1].ID, SeatNo: seats[1].SeatNo},
	}

	confirm := func() (*domain.Ticket, []domain.TicketSeat) {
		var (
			out []domain.TicketSeat
			tk  *domain.Ticket
		)
		require.NoError(t, st.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			locked, err := l.LockByPaymentRef(ctx, tx, ticket.PaymentRef)
			if err != nil {
				return err
			}
			tk, out, err = l.ConfirmWithSeats(ctx, tx, locked, holds)
			return err
		}))
		return tk, out
	}

	first, firstSeats := confirm()
	assert.Equal(t, domain.TicketStatusConfirmed, first.Status)
	require.Len(t, firstSeats, 2)

	second, secondSeats := confirm()
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, firstSeats, secondSeats)

	stored, err := l.Seats(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestCancel_Transitions(t *testing.T) {
	st, l := newLedger()
	f := st.AddFlight(domain.Flight{FlightNo: "SU1", PriceCents: 100}, nil)
	ticket := provision(t, st, l, []domain.Flight{f})
	ctx := context.Background()

	cancel := func() (*domain.Ticket, error) {
		var out *domain.Ticket
		err := st.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			locked, err := l.LockByPaymentRef(ctx, tx, ticket.PaymentRef)
			if err != nil {
				return err
			}
			out, err = l.Cancel(ctx, tx, locked, domain.CancelReasonPaymentFailed)
			return err
		})
		return out, err
	}

	cancelled, err := cancel()
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCancelled, cancelled.Status)
	assert.Equal(t, domain.CancelReasonPaymentFailed, cancelled.CancelReason)

	again, err := cancel()
	require.NoError(t, err)
	assert.Equal(t, cancelled.Version, again.Version)

	err = st.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		locked, err := l.LockByPaymentRef(ctx, tx, ticket.PaymentRef)
		if err != nil {
			return err
		}
		_, _, err = l.ConfirmWithSeats(ctx, tx, locked, nil)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancel_ConfirmedTicketRejected(t *testing.T) {
	st, l := newLedger()
	f := st.AddFlight(domain.Flight{FlightNo: "SU1", PriceCents: 100}, nil)
	provision(t, st, l, []domain.Flight{f})

	err := st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		locked, err := l.LockByPaymentRef(ctx, tx, "pay_0123456789abcdef")
		if err != nil {
			return err
		}
		confirmed, _, err := l.ConfirmWithSeats(ctx, tx, locked, nil)
		if err != nil {
			return err
		}
		_, err = l.Cancel(ctx, tx, confirmed, domain.CancelReasonPaymentFailed)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}
