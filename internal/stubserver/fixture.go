package stubserver

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"ticket-client/models"

	"github.com/shopspring/decimal"
)

// Fixture seeds the stub with users, events and seat maps.
type Fixture struct {
	Users  []models.User  `json:"users"`
	Events []models.Event `json:"events"`
	Seats  []models.Seat  `json:"seats"`
}

func LoadFixture(path string) (*Fixture, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("stubserver: read fixture: %w", err)
	}
	var f Fixture
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("stubserver: parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// DefaultFixture is one user with 3000 in the wallet and one event with a
// general admission tier and a reserved seating tier.
func DefaultFixture() *Fixture {
	start := time.Date(2026, 12, 31, 20, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)

	f := &Fixture{
		Users: []models.User{
			{ID: 1, Email: "user@example.com", FullName: "Demo User", Role: "user", WalletBalance: decimal.NewFromInt(3000)},
		},
		Events: []models.Event{
			{
				ID:          1,
				Title:       "New Year Concert",
				Description: "Countdown show",
				StartTime:   start,
				EndTime:     end,
				Venue:       &models.Venue{ID: 1, Name: "City Hall", Address: "1 Main St"},
				Genre:       &models.Genre{ID: 1, Name: "Music"},
				PriceTiers: []models.PriceTier{
					{ID: 1, EventID: 1, Name: "General", Price: decimal.NewFromInt(100), Capacity: 50},
					{ID: 2, EventID: 1, Name: "Reserved", Price: decimal.NewFromInt(250), Capacity: 6},
				},
			},
		},
	}
	for i := 1; i <= 6; i++ {
		row := "A"
		if i > 3 {
			row = "B"
		}
		f.Seats = append(f.Seats, models.Seat{
			ID:         int64(100 + i),
			TierID:     2,
			RowLabel:   row,
			SeatNumber: (i-1)%3 + 1,
			Status:     models.SeatAvailable,
		})
	}
	return f
}
