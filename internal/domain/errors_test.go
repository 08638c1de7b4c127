package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsufficientInventoryError_Unwrap(t *testing.T) {
	err := fmt.Errorf("leg 2: %w", &InsufficientInventoryError{FlightID: 7, Requested: 2, Available: 1})

	assert.True(t, errors.Is(err, ErrInsufficientInventory))
	assert.Contains(t, err.Error(), "requested 2, available 1")

	var target *InsufficientInventoryError
	assert.True(t, errors.As(err, &target))
	assert.Equal(t, int64(7), target.FlightID)
}

func TestNoActiveHoldsError_Unwrap(t *testing.T) {
	err := &NoActiveHoldsError{PaymentRef: "pay_1", SessionID: "sess_1", TicketID: 3}

	assert.True(t, errors.Is(err, ErrNoActiveHolds))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestOutboxEvent_RecordFailure(t *testing.T) {
	ev := &OutboxEvent{Status: OutboxStatusPending, MaxRetries: 3}

	ev.RecordFailure(errors.New("broker down"))
	ev.RecordFailure(errors.New("broker down"))
	assert.Equal(t, OutboxStatusPending, ev.Status)
	assert.Equal(t, 2, ev.Attempts)

	ev.RecordFailure(errors.New("broker down"))
	assert.Equal(t, OutboxStatusFailed, ev.Status)
	assert.Equal(t, "broker down", ev.LastError)
}

func TestTicket_Reference(t *testing.T) {
	assert.Equal(t, "TKT-42", Ticket{ID: 42}.Reference())
	assert.False(t, Ticket{Status: TicketStatusInProgress}.Terminal())
	assert.True(t, Ticket{Status: TicketStatusCancelled}.Terminal())
}

func TestAllocationError_Unwrap(t *testing.T) {
	cause := &InsufficientInventoryError{FlightID: 2, Requested: 2, Available: 1}
	err := &AllocationError{Reason: "insufficient inventory", SessionID: "sess_1", FlightID: 2, PartialHolds: 2, Err: cause}

	assert.True(t, errors.Is(err, ErrInsufficientInventory))
	assert.Contains(t, err.Error(), "sess_1")
}
