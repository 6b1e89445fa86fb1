package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"ticket-client/models"
)

type SeatAPI interface {
	ListTierSeats(ctx context.Context, eventID, tierID int64) ([]models.Seat, error)
}

// SeatService holds the seat map of one tier and the user's selection on it.
// Only seats in status available can be selected; the selection is cleared
// whenever a different tier is loaded.
type SeatService struct {
	api SeatAPI

	mu         sync.Mutex
	generation uint64
	eventID    int64
	tierID     int64
	seats      []models.Seat
	byID       map[int64]models.Seat
	selected   map[int64]struct{}
}

func NewSeatService(api SeatAPI) *SeatService {
	return &SeatService{
		api:      api,
		byID:     make(map[int64]models.Seat),
		selected: make(map[int64]struct{}),
	}
}

// Load fetches the seats of a tier. Loading another tier clears the current
// seats and selection first. Reloading the same tier keeps the selection
// minus any seat that is no longer available. A result that arrives after a
// newer Load or Reset is discarded.
func (s *SeatService) Load(ctx context.Context, eventID, tierID int64) error {
	s.mu.Lock()
	if s.eventID != eventID || s.tierID != tierID {
		s.clearLocked()
		s.eventID = eventID
		s.tierID = tierID
	}
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	seats, err := s.api.ListTierSeats(ctx, eventID, tierID)
	if err != nil {
		slog.Error("failed to load seats", "event_id", eventID, "tier_id", tierID, "error", err)
		return fmt.Errorf("seats: load: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		slog.Debug("discarding stale seat map", "event_id", eventID, "tier_id", tierID)
		return nil
	}

	s.seats = seats
	s.byID = make(map[int64]models.Seat, len(seats))
	for _, seat := range seats {
		s.byID[seat.ID] = seat
	}
	for id := range s.selected {
		if seat, ok := s.byID[id]; !ok || !seat.Selectable() {
			delete(s.selected, id)
		}
	}
	return nil
}

// Reset forgets the tier, its seats and the selection.
func (s *SeatService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.eventID, s.tierID = 0, 0
	s.generation++
}

// Toggle flips the selection state of a seat and reports whether it is
// selected afterwards. Unknown or non-available seats are left alone.
func (s *SeatService) Toggle(seatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	seat, ok := s.byID[seatID]
	if !ok || !seat.Selectable() {
		_, selected := s.selected[seatID]
		return selected
	}

	if _, selected := s.selected[seatID]; selected {
		delete(s.selected, seatID)
		return false
	}
	s.selected[seatID] = struct{}{}
	return true
}

func (s *SeatService) IsSelected(seatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.selected[seatID]
	return ok
}

// Selected returns the selected seat ids in ascending order.
func (s *SeatService) Selected() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *SeatService) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.selected)
}

// Seats returns a copy of the loaded seat map.
func (s *SeatService) Seats() []models.Seat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.seats)
}

// Tier returns the event and tier the seat map belongs to.
func (s *SeatService) Tier() (eventID, tierID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventID, s.tierID
}

// MarkSold flips purchased seats to sold and drops them from the selection.
func (s *SeatService) MarkSold(seatIDs []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range seatIDs {
		delete(s.selected, id)
		seat, ok := s.byID[id]
		if !ok {
			continue
		}
		seat.Status = models.SeatSold
		s.byID[id] = seat
		for i := range s.seats {
			if s.seats[i].ID == id {
				s.seats[i].Status = models.SeatSold
			}
		}
	}
}

func (s *SeatService) clearLocked() {
	s.seats = nil
	s.byID = make(map[int64]models.Seat)
	clear(s.selected)
}
