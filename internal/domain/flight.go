package domain

import "time"

type Flight struct {
	ID            int64
	FlightNo      string
	FromAirport   string
	ToAirport     string
	DepartureTime time.Time
	ArrivalTime   time.Time
	PriceCents    int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Availability is a point-in-time count of a flight's seats by state.
type Availability struct {
	FlightID  int64
	Total     int
	Available int
	Held      int
	Booked    int
}
