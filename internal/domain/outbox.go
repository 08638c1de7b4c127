package domain

import "time"

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusDispatched OutboxStatus = "DISPATCHED"
	OutboxStatusFailed     OutboxStatus = "FAILED"
)

// DefaultOutboxMaxRetries bounds delivery attempts before an event becomes FAILED.
const DefaultOutboxMaxRetries = 3

// Topics written by the core.
const (
	TopicSeatsHeld             = "seats.held"
	TopicSeatsReleased         = "seats.released"
	TopicTicketProvisioned     = "ticket.provisioned"
	TopicTicketConfirmed       = "ticket.confirmed"
	TopicTicketCancelled       = "ticket.cancelled"
	TopicPaymentRefundRequired = "payment.refund_requested"
)

type OutboxEvent struct {
	ID           int64
	EventID      string
	Topic        string
	Key          string
	Payload      []byte
	Status       OutboxStatus
	Attempts     int
	MaxRetries   int
	LastError    string
	CreatedAt    time.Time
	DispatchedAt *time.Time
}

// RecordFailure counts a failed delivery and moves the event to FAILED once
// the retry budget is spent.
func (e *OutboxEvent) RecordFailure(cause error) {
	e.Attempts++
	if cause != nil {
		e.LastError = cause.Error()
	}
	if e.Attempts >= e.MaxRetries {
		e.Status = OutboxStatusFailed
	}
}

func (e *OutboxEvent) MarkDispatched(at time.Time) {
	e.Status = OutboxStatusDispatched
	e.DispatchedAt = &at
}
