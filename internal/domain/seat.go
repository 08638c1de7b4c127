package domain

type Seat struct {
	ID          int64
	FlightID    int64
	SeatNo      string
	CabinClass  string
	IsAvailable bool
	Version     int
}

// SeatRef identifies a seat claimed by the allocator.
type SeatRef struct {
	SeatID   int64
	FlightID int64
	SeatNo   string
	Version  int
}

func (s Seat) Ref() SeatRef {
	return SeatRef{SeatID: s.ID, FlightID: s.FlightID, SeatNo: s.SeatNo, Version: s.Version}
}
