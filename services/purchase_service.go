package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"ticket-client/internal/apiclient"
	"ticket-client/internal/status"
	"ticket-client/models"
	"ticket-client/monitoring"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PurchaseState int

const (
	PurchaseIdle PurchaseState = iota
	PurchaseSelecting
	PurchaseSubmitting
	PurchaseSucceeded
	PurchaseFailed
)

func (s PurchaseState) String() string {
	switch s {
	case PurchaseIdle:
		return "idle"
	case PurchaseSelecting:
		return "selecting"
	case PurchaseSubmitting:
		return "submitting"
	case PurchaseSucceeded:
		return "succeeded"
	case PurchaseFailed:
		return "failed"
	}
	return "unknown"
}

type PurchaseAPI interface {
	CreateOrder(ctx context.Context, req apiclient.OrderRequest) (*apiclient.OrderResponse, error)
}

// PurchaseView is a point-in-time copy of the purchase dialog.
type PurchaseView struct {
	State             PurchaseState
	Event             *models.Event
	TierID            int64
	Quantity          int
	Availability      map[int64]models.TierAvailability
	AvailabilityReady bool
	SelectedSeats     []int64
	Total             decimal.Decimal
	Err               error
	LastOrder         *models.Order
}

// PurchaseService drives the purchase dialog of one event at a time:
// Idle -> Selecting -> Submitting -> Succeeded | Failed. Every Open and
// Close starts a new generation; results of requests issued under an older
// generation are dropped.
type PurchaseService struct {
	api          PurchaseAPI
	session      SessionView
	availability *AvailabilityService
	seats        *SeatService
	orders       *OrderStore
	wallet       *WalletBalance
	monitor      *monitoring.Monitor
	confirmDelay time.Duration

	mu             sync.Mutex
	generation     uint64
	state          PurchaseState
	event          *models.Event
	tierID         int64
	quantity       int
	inventory      map[int64]models.TierAvailability
	inventoryReady bool
	idempotencyKey string
	submitting     bool
	lastErr        error
	lastOrder      *models.Order
	closeTimer     *time.Timer
}

func NewPurchaseService(
	api PurchaseAPI,
	session SessionView,
	availability *AvailabilityService,
	seats *SeatService,
	orders *OrderStore,
	wallet *WalletBalance,
	monitor *monitoring.Monitor,
	confirmDelay time.Duration,
) *PurchaseService {
	return &PurchaseService{
		api:          api,
		session:      session,
		availability: availability,
		seats:        seats,
		orders:       orders,
		wallet:       wallet,
		monitor:      monitor,
		confirmDelay: confirmDelay,
		inventory:    make(map[int64]models.TierAvailability),
	}
}

// Open starts a purchase dialog for event with its first tier selected and
// a quantity of one, then fetches availability for every tier.
func (s *PurchaseService) Open(ctx context.Context, event models.Event) error {
	s.mu.Lock()
	s.resetLocked()
	s.generation++
	ev := event
	ev.PriceTiers = append([]models.PriceTier(nil), event.PriceTiers...)
	s.event = &ev
	if len(ev.PriceTiers) > 0 {
		s.tierID = ev.PriceTiers[0].ID
	}
	s.quantity = 1
	s.state = PurchaseSelecting
	s.idempotencyKey = uuid.NewString()
	s.lastOrder = nil
	s.mu.Unlock()

	s.seats.Reset()
	return s.RefreshAvailability(ctx)
}

// Close discards the dialog and any result still in flight.
func (s *PurchaseService) Close() {
	s.mu.Lock()
	s.resetLocked()
	s.generation++
	s.mu.Unlock()

	s.seats.Reset()
}

// RefreshAvailability refetches every tier of the open event and, for a
// seat-based selected tier, its seat map.
func (s *PurchaseService) RefreshAvailability(ctx context.Context) error {
	s.mu.Lock()
	if s.event == nil {
		s.mu.Unlock()
		return status.ErrFormClosed
	}
	gen := s.generation
	eventID := s.event.ID
	tiers := append([]models.PriceTier(nil), s.event.PriceTiers...)
	s.mu.Unlock()

	result := s.availability.Fetch(ctx, eventID, tiers)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		slog.Debug("discarding stale availability", "event_id", eventID)
		return nil
	}
	s.inventory = result
	s.inventoryReady = true
	tierID := s.tierID
	hasSeats := result[tierID].HasSeats
	s.mu.Unlock()

	if tierID != 0 && hasSeats {
		return s.seats.Load(ctx, eventID, tierID)
	}
	return nil
}

// RefreshOpenEvent refetches availability when eventID is the open event.
func (s *PurchaseService) RefreshOpenEvent(ctx context.Context, eventID int64) error {
	s.mu.Lock()
	open := s.event != nil && s.event.ID == eventID && s.state != PurchaseSubmitting
	s.mu.Unlock()

	if !open {
		return nil
	}
	return s.RefreshAvailability(ctx)
}

// SelectTier switches the dialog to another tier. Quantity goes back to one,
// the seat selection is cleared and the tier's availability is refetched.
func (s *PurchaseService) SelectTier(ctx context.Context, tierID int64) error {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.event.Tier(tierID); !ok {
		s.mu.Unlock()
		return status.Invalid(status.ErrTierNotSelected, "tier %d is not offered for event %d", tierID, s.event.ID)
	}
	s.tierID = tierID
	s.quantity = 1
	s.inputChangedLocked()
	gen := s.generation
	eventID := s.event.ID
	s.mu.Unlock()

	s.seats.Reset()
	availability := s.availability.FetchTier(ctx, eventID, tierID)

	s.mu.Lock()
	if gen != s.generation || s.tierID != tierID {
		s.mu.Unlock()
		slog.Debug("discarding stale tier availability", "event_id", eventID, "tier_id", tierID)
		return nil
	}
	s.inventory[tierID] = availability
	s.mu.Unlock()

	if availability.HasSeats {
		return s.seats.Load(ctx, eventID, tierID)
	}
	return nil
}

// SetQuantity records q for a non-seat tier. The range check happens on
// Submit against the availability known at that time.
func (s *PurchaseService) SetQuantity(q int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	s.quantity = q
	s.inputChangedLocked()
	return nil
}

// ToggleSeat flips one seat of the selected tier and reports whether it is
// selected afterwards.
func (s *PurchaseService) ToggleSeat(seatID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return false, err
	}
	was := s.seats.IsSelected(seatID)
	selected := s.seats.Toggle(seatID)
	if selected != was {
		s.inputChangedLocked()
	}
	return selected, nil
}

// Total is the display price of the current selection. The server's
// total_amount is authoritative.
func (s *PurchaseService) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalLocked()
}

func (s *PurchaseService) State() PurchaseState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *PurchaseService) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *PurchaseService) View() PurchaseView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := PurchaseView{
		State:             s.state,
		TierID:            s.tierID,
		Quantity:          s.quantity,
		Availability:      maps.Clone(s.inventory),
		AvailabilityReady: s.inventoryReady,
		SelectedSeats:     s.seats.Selected(),
		Total:             s.totalLocked(),
		Err:               s.lastErr,
	}
	if s.event != nil {
		ev := *s.event
		v.Event = &ev
	}
	if s.lastOrder != nil {
		o := s.lastOrder.Clone()
		v.LastOrder = &o
	}
	return v
}

// Submit validates the selection and places the order. Validation runs in
// a fixed order: authentication, tier, then seat selection or quantity.
// Only one submission can be in flight, even across Close and Open. A
// failure leaves every store as it was and keeps the selection for a retry.
func (s *PurchaseService) Submit(ctx context.Context) (*models.Order, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return nil, status.ErrSubmitInProgress
	}
	if s.event == nil || s.state == PurchaseSucceeded {
		s.mu.Unlock()
		return nil, status.ErrFormClosed
	}

	req, purchased, seatIDs, err := s.buildRequestLocked()
	if err != nil {
		s.state = PurchaseFailed
		s.lastErr = err
		s.mu.Unlock()
		slog.Info("purchase rejected before submit", "error", err)
		s.monitor.TrackPurchase("invalid")
		return nil, err
	}

	s.state = PurchaseSubmitting
	s.submitting = true
	s.lastErr = nil
	gen := s.generation
	eventID := s.event.ID
	tierID := s.tierID
	s.mu.Unlock()

	resp, err := s.api.CreateOrder(ctx, req)

	s.mu.Lock()
	s.submitting = false
	if gen != s.generation {
		s.mu.Unlock()
		slog.Debug("discarding purchase result for a closed dialog", "event_id", eventID, "error", err)
		s.monitor.TrackPurchase("discarded")
		if err != nil {
			return nil, fmt.Errorf("purchase: %w", err)
		}
		order := resp.Order.Clone()
		return &order, nil
	}

	if err != nil {
		s.state = PurchaseFailed
		s.lastErr = err
		s.mu.Unlock()
		slog.Error("purchase failed", "event_id", eventID, "tier_id", tierID, "error", err)
		s.monitor.TrackPurchase("failed")
		return nil, fmt.Errorf("purchase: %w", err)
	}

	s.state = PurchaseSucceeded
	order := resp.Order.Clone()
	s.lastOrder = &order
	s.idempotencyKey = uuid.NewString()
	if cached, ok := s.inventory[tierID]; ok {
		cached.Available = max(0, cached.Available-purchased)
		s.inventory[tierID] = cached
	}
	if s.closeTimer != nil {
		s.closeTimer.Stop()
	}
	s.closeTimer = time.AfterFunc(s.confirmDelay, func() { s.finish(gen) })
	s.mu.Unlock()

	s.wallet.ReplaceFrom(resp.WalletBalance)
	s.orders.Upsert(order)
	if len(seatIDs) > 0 {
		s.seats.MarkSold(seatIDs)
	}
	slog.Info("purchase succeeded", "order_id", order.ID, "event_id", eventID, "tier_id", tierID)
	s.monitor.TrackPurchase("succeeded")

	return &order, nil
}

// PurchaseFailureMessage renders a purchase error for display.
func PurchaseFailureMessage(err error) string {
	var rejected *status.ServerRejectedError
	if errors.As(err, &rejected) {
		return status.UserMessage(err, fmt.Sprintf("purchase failed (HTTP %d)", rejected.StatusCode))
	}
	return status.UserMessage(err, "purchase failed")
}

func (s *PurchaseService) buildRequestLocked() (apiclient.OrderRequest, int, []int64, error) {
	if _, ok := s.session.AccessToken(); !ok {
		return apiclient.OrderRequest{}, 0, nil, status.ErrNotAuthenticated
	}
	if _, ok := s.event.Tier(s.tierID); !ok {
		return apiclient.OrderRequest{}, 0, nil, status.ErrTierNotSelected
	}

	req := apiclient.OrderRequest{IdempotencyKey: s.idempotencyKey}
	availability := s.inventory[s.tierID]

	if availability.HasSeats {
		seatIDs := s.seats.Selected()
		if len(seatIDs) == 0 {
			return apiclient.OrderRequest{}, 0, nil, status.ErrNoSeatsSelected
		}
		for _, id := range seatIDs {
			req.Items = append(req.Items, apiclient.OrderItemRequest{TicketID: id})
		}
		return req, len(seatIDs), seatIDs, nil
	}

	if s.quantity < 1 || s.quantity > availability.Available {
		return apiclient.OrderRequest{}, 0, nil, status.Invalid(status.ErrQuantityOutOfRange,
			"requested %d, available %d", s.quantity, availability.Available)
	}
	req.Items = []apiclient.OrderItemRequest{{TierID: s.tierID, Quantity: s.quantity}}
	return req, s.quantity, nil, nil
}

func (s *PurchaseService) finish(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.state != PurchaseSucceeded {
		return
	}
	s.resetLocked()
	s.generation++
	s.seats.Reset()
}

func (s *PurchaseService) editableLocked() error {
	switch {
	case s.event == nil:
		return status.ErrFormClosed
	case s.state == PurchaseSubmitting:
		return status.ErrSubmitInProgress
	case s.state == PurchaseSucceeded:
		return status.ErrFormClosed
	}
	return nil
}

func (s *PurchaseService) inputChangedLocked() {
	s.idempotencyKey = uuid.NewString()
	if s.state == PurchaseFailed {
		s.state = PurchaseSelecting
		s.lastErr = nil
	}
}

func (s *PurchaseService) totalLocked() decimal.Decimal {
	if s.event == nil {
		return decimal.Zero
	}
	tier, ok := s.event.Tier(s.tierID)
	if !ok {
		return decimal.Zero
	}
	if s.inventory[s.tierID].HasSeats {
		return tier.Price.Mul(decimal.NewFromInt(int64(len(s.seats.Selected()))))
	}
	return tier.Price.Mul(decimal.NewFromInt(int64(max(s.quantity, 0))))
}

func (s *PurchaseService) resetLocked() {
	if s.closeTimer != nil {
		s.closeTimer.Stop()
		s.closeTimer = nil
	}
	s.state = PurchaseIdle
	s.event = nil
	s.tierID = 0
	s.quantity = 0
	s.inventory = make(map[int64]models.TierAvailability)
	s.inventoryReady = false
	s.lastErr = nil
}
