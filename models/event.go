package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Venue struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

type Event struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	StartTime   time.Time   `json:"start_datetime"`
	EndTime     time.Time   `json:"end_datetime"`
	Venue       *Venue      `json:"venue,omitempty"`
	Genre       *Genre      `json:"genre,omitempty"`
	PriceTiers  []PriceTier `json:"price_tiers"`
}

// Tier returns the price tier with the given id.
func (e *Event) Tier(id int64) (PriceTier, bool) {
	for _, t := range e.PriceTiers {
		if t.ID == id {
			return t, true
		}
	}
	return PriceTier{}, false
}

// PriceTier is a named price category of an event. Capacity is the
// configured size; the live remaining count comes from TierAvailability.
type PriceTier struct {
	ID       int64           `json:"id"`
	EventID  int64           `json:"event_id,omitempty"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Capacity int             `json:"capacity"`
}

// TierAvailability is the remote-authoritative inventory of one tier.
type TierAvailability struct {
	Available int  `json:"available"`
	HasSeats  bool `json:"has_seats"`
}

// Degraded is the value a tier falls back to when its fetch fails.
var Degraded = TierAvailability{Available: 0, HasSeats: false}
