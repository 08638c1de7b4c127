package domain

import (
	"fmt"
	"time"
)

type TicketStatus string

const (
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusConfirmed  TicketStatus = "CONFIRMED"
	TicketStatusCancelled  TicketStatus = "CANCELLED"
)

type CancelReason string

const (
	CancelReasonNone          CancelReason = ""
	CancelReasonPaymentFailed CancelReason = "PAYMENT_FAILED"
	CancelReasonHoldsExpired  CancelReason = "HOLDS_EXPIRED"
)

type Ticket struct {
	ID           int64
	FlightID     int64
	// Legs is the number of flights on the itinerary; FlightID is the first.
	Legs         int
	PaymentRef   string
	SessionID    string
	TotalAmount  int64
	Status       TicketStatus
	CancelReason CancelReason
	Version      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (t Ticket) Terminal() bool {
	return t.Status == TicketStatusConfirmed || t.Status == TicketStatusCancelled
}

// MultiLegFlightNo stands in for the flight number of a multi-leg ticket.
const MultiLegFlightNo = "MULTI"

func (t Ticket) MultiLeg() bool {
	return t.Legs > 1
}

func (t Ticket) Reference() string {
	return fmt.Sprintf("TKT-%d", t.ID)
}

type TicketSeat struct {
	ID       int64
	TicketID int64
	SeatID   int64
	FlightID int64
	SeatNo   string
}
