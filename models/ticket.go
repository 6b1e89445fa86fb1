package models

import "strconv"

type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatSold      SeatStatus = "sold"
	SeatActivated SeatStatus = "activated"
	SeatCanceled  SeatStatus = "canceled"
)

// Seat is an individually purchasable ticket slot of a seat-based tier.
type Seat struct {
	ID         int64      `json:"id"`
	TierID     int64      `json:"tier_id,omitempty"`
	RowLabel   string     `json:"row_label"`
	SeatNumber int        `json:"seat_number"`
	Status     SeatStatus `json:"status"`
}

func (s Seat) Selectable() bool {
	return s.Status == SeatAvailable
}

func (s Seat) Label() string {
	return s.RowLabel + strconv.Itoa(s.SeatNumber)
}
