package domain

import (
	"encoding/json"
	"time"
)

// Envelope is the JSON document stored in an outbox row and published as the
// message value.
type Envelope struct {
	EventID    string          `json:"event_id"`
	Topic      string          `json:"topic"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// Outbox payloads. Each is carried as Envelope.Data.

type SeatsHeld struct {
	SessionID   string    `json:"session_id"`
	FlightID    int64     `json:"flight_id"`
	SeatNumbers []string  `json:"seat_numbers"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Release reasons carried by SeatsReleased.
const (
	ReleaseReasonExpired       = "expired"
	ReleaseReasonCompensation  = "compensation"
	ReleaseReasonPaymentFailed = "payment_failed"
	ReleaseReasonCancelled     = "cancelled"
)

type SeatsReleased struct {
	SessionID   string   `json:"session_id,omitempty"`
	FlightID    int64    `json:"flight_id"`
	SeatNumbers []string `json:"seat_numbers"`
	Reason      string   `json:"reason"`
}

type TicketProvisioned struct {
	TicketID    int64   `json:"ticket_id"`
	PaymentRef  string  `json:"payment_ref"`
	SessionID   string  `json:"session_id"`
	FlightIDs   []int64 `json:"flight_ids"`
	TotalAmount int64   `json:"total_amount"`
}

type BookedSeat struct {
	FlightID int64  `json:"flight_id"`
	SeatNo   string `json:"seat_no"`
}

type TicketConfirmed struct {
	TicketID    int64        `json:"ticket_id"`
	Reference   string       `json:"reference"`
	PaymentRef  string       `json:"payment_ref"`
	SessionID   string       `json:"session_id"`
	Seats       []BookedSeat `json:"seats"`
	TotalAmount int64        `json:"total_amount"`
}

type TicketCancelled struct {
	TicketID   int64        `json:"ticket_id"`
	PaymentRef string       `json:"payment_ref"`
	SessionID  string       `json:"session_id"`
	Reason     CancelReason `json:"reason"`
}

type RefundRequested struct {
	TicketID   int64        `json:"ticket_id"`
	PaymentRef string       `json:"payment_ref"`
	SessionID  string       `json:"session_id"`
	Amount     int64        `json:"amount"`
	Reason     CancelReason `json:"reason"`
}
