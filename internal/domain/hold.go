package domain

import "time"

// DefaultHoldTTL is the lease granted to every hold of a booking attempt.
const DefaultHoldTTL = 15 * time.Minute

type Hold struct {
	ID        int64
	FlightID  int64
	SeatID    int64
	SeatNo    string
	SessionID string
	ExpiresAt time.Time
	CreatedAt time.Time
	Version   int
}

func (h Hold) ActiveAt(now time.Time) bool {
	return h.ExpiresAt.After(now)
}
