package allocation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/metrics"
	"github.com/Domenick1991/flightbooking/internal/repository"
	"github.com/Domenick1991/flightbooking/internal/repository/memory"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

// allocateAndHold claims seats and pins them with holds in one unit, the way
// a booking leg does.
func allocateAndHold(ctx context.Context, st *memory.Store, a *Allocator, flightID int64, n int, session string) ([]domain.SeatRef, error) {
	var refs []domain.SeatRef
	err := st.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		refs, err = a.Allocate(ctx, tx, flightID, n)
		if err != nil {
			return err
		}
		holds := make([]domain.Hold, len(refs))
		for i, r := range refs {
			holds[i] = domain.Hold{FlightID: flightID, SeatID: r.SeatID, SeatNo: r.SeatNo, SessionID: session, CreatedAt: now, ExpiresAt: now.Add(domain.DefaultHoldTTL)}
		}
		_, err = tx.Holds().Insert(ctx, holds)
		return err
	})
	return refs, err
}

func TestAllocate_LowestSeatNumbersFirst(t *testing.T) {
	st := memory.New()
	f := st.AddFlight(domain.Flight{FlightNo: "SU1"}, []string{"2A", "1B", "1A"})
	a := NewAllocator(WithClock(clock))

	refs, err := allocateAndHold(context.Background(), st, a, f.ID, 2, "s1")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "1A", refs[0].SeatNo)
	assert.Equal(t, "1B", refs[1].SeatNo)
}

func TestAllocate_Validation(t *testing.T) {
	st := memory.New()
	f := st.AddFlight(domain.Flight{FlightNo: "SU1"}, []string{"1A"})
	a := NewAllocator(WithClock(clock))
	ctx := context.Background()

	err := st.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := a.Allocate(ctx, tx, f.ID, 0)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	err = st.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := a.Allocate(ctx, tx, 999, 1)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAllocate_InsufficientInventoryClaimsNothing(t *testing.T) {
	st := memory.New()
	f := st.AddFlight(domain.Flight{FlightNo: "SU1"}, []string{"1A", "1B"})
	a := NewAllocator(WithClock(clock))
	ctx := context.Background()

	_, err := allocateAndHold(ctx, st, a, f.ID, 3, "s1")
	require.ErrorIs(t, err, domain.ErrInsufficientInventory)

	var inv *domain.InsufficientInventoryError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, 3, inv.Requested)
	assert.Equal(t, 2, inv.Available)

	refs, err := allocateAndHold(ctx, st, a, f.ID, 2, "s2")
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func TestAllocate_ConcurrentNeverOverbooks(t *testing.T) {
	const (
		seats      = 10
		goroutines = 8
		perRequest = 3
	)

	st := memory.New()
	nos := make([]string, seats)
	for i := range nos {
		nos[i] = string(rune('A'+i)) + "1"
	}
	f := st.AddFlight(domain.Flight{FlightNo: "SU1"}, nos)
	a := NewAllocator(WithClock(clock))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted = map[int64]string{}
		success int
	)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			session := string(rune('a' + g))
			refs, err := allocateAndHold(context.Background(), st, a, f.ID, perRequest, session)
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			success++
			for _, r := range refs {
				if owner, dup := granted[r.SeatID]; dup {
					t.Errorf("seat %s granted to %s and %s", r.SeatNo, owner, session)
				}
				granted[r.SeatID] = session
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, success*perRequest, seats)
	assert.Len(t, granted, success*perRequest)

	require.NoError(t, st.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		avail, err := tx.Flights().Availability(ctx, f.ID, now)
		require.NoError(t, err)
		assert.Equal(t, success*perRequest, avail.Held)
		assert.Equal(t, seats, avail.Held+avail.Available)
		return nil
	}))
}

func TestAllocate_RecordsClaimDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	st := memory.New()
	f := st.AddFlight(domain.Flight{FlightNo: "SU1"}, []string{"1A"})
	a := NewAllocator(WithClock(clock), WithMetrics(metrics.New(reg)))

	_, err := allocateAndHold(context.Background(), st, a, f.ID, 1, "s1")
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "seat_claim_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
