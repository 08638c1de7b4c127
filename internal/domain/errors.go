package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrNoActiveHolds         = errors.New("no active holds")
	ErrDeliveryFailure       = errors.New("delivery failure")
	ErrConflict              = errors.New("concurrent modification")
	ErrInvalidTransition     = errors.New("invalid state transition")
)

type InsufficientInventoryError struct {
	FlightID  int64
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient seats on flight %d: requested %d, available %d", e.FlightID, e.Requested, e.Available)
}

func (e *InsufficientInventoryError) Unwrap() error {
	return ErrInsufficientInventory
}

// NoActiveHoldsError is returned when a successful payment arrives after the
// session's holds are gone. The ticket is cancelled and a refund is requested.
type NoActiveHoldsError struct {
	PaymentRef string
	SessionID  string
	TicketID   int64
}

func (e *NoActiveHoldsError) Error() string {
	return fmt.Sprintf("no active holds for session %s (payment %s): refund requested", e.SessionID, e.PaymentRef)
}

func (e *NoActiveHoldsError) Unwrap() error {
	return ErrNoActiveHolds
}

// AllocationError reports a booking attempt whose seat allocation failed.
// Compensation has already run when it is returned.
type AllocationError struct {
	Reason       string
	SessionID    string
	FlightID     int64
	PartialHolds int
	Err          error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocation failed for session %s on flight %d (%s): %v", e.SessionID, e.FlightID, e.Reason, e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}
