package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"ticket-client/internal/status"
	"ticket-client/models"

	"github.com/shopspring/decimal"
)

type OrderAPI interface {
	MyOrders(ctx context.Context) ([]models.Order, error)
}

// SessionView is the part of Session that gates authenticated loads.
type SessionView interface {
	Resolved() bool
	AccessToken() (string, bool)
}

// OrderStore caches the signed-in user's orders. Local transitions applied
// after an action are optimistic mirrors of the server's effect; the next
// Load replaces them with the server's view.
type OrderStore struct {
	api     OrderAPI
	session SessionView

	mu      sync.RWMutex
	orders  []models.Order
	loadSeq uint64
	loaded  bool
}

func NewOrderStore(api OrderAPI, session SessionView) *OrderStore {
	return &OrderStore{api: api, session: session}
}

// Load replaces the cache with the server's orders. It refuses to run
// before the session resolved and without a token. When loads overlap the
// most recently started one wins.
func (s *OrderStore) Load(ctx context.Context) error {
	if !s.session.Resolved() {
		return status.ErrSessionNotResolved
	}
	if _, ok := s.session.AccessToken(); !ok {
		return status.ErrNotAuthenticated
	}

	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()

	orders, err := s.api.MyOrders(ctx)
	if err != nil {
		slog.Error("failed to load orders", "error", err)
		return fmt.Errorf("orders: load: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.loadSeq {
		slog.Debug("discarding superseded order load")
		return nil
	}
	s.orders = make([]models.Order, 0, len(orders))
	for _, o := range orders {
		s.orders = append(s.orders, o.Clone())
	}
	s.loaded = true
	return nil
}

func (s *OrderStore) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Orders returns copies of the cached orders in server order.
func (s *OrderStore) Orders() []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Order, len(s.orders))
	for i, o := range s.orders {
		out[i] = o.Clone()
	}
	return out
}

func (s *OrderStore) Get(orderID int64) (models.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(orderID); i >= 0 {
		return s.orders[i].Clone(), true
	}
	return models.Order{}, false
}

// OrderForTicket finds the order that contains ticketID. A seat refunded
// and bought again appears in several orders; the one whose item is still
// sold wins, otherwise the most recent match.
func (s *OrderStore) OrderForTicket(ticketID int64) (models.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := -1
	for i := range s.orders {
		for _, it := range s.orders[i].Items {
			if it.TicketID != ticketID {
				continue
			}
			if it.Status == models.ItemSold {
				return s.orders[i].Clone(), true
			}
			found = i
		}
	}
	if found < 0 {
		return models.Order{}, false
	}
	return s.orders[found].Clone(), true
}

// Upsert merges an order returned by a purchase into the cache.
func (s *OrderStore) Upsert(order models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(order.ID); i >= 0 {
		s.orders[i] = order.Clone()
		return
	}
	s.orders = append(s.orders, order.Clone())
}

// ApplyItemTransition sets the status of the item carrying ticketID in one
// order. Backward transitions are ignored. It reports whether an item changed.
func (s *OrderStore) ApplyItemTransition(orderID, ticketID int64, next models.ItemStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(orderID)
	if i < 0 {
		return false
	}
	items := s.orders[i].Items
	for j := range items {
		if items[j].TicketID != ticketID {
			continue
		}
		if items[j].Status == next {
			return false
		}
		if !items[j].Status.CanTransitionTo(next) {
			slog.Warn("ignoring backward item transition",
				"order_id", orderID, "ticket_id", ticketID,
				"from", items[j].Status, "to", next)
			return false
		}
		items[j].Status = next
		return true
	}
	return false
}

// ApplyRefund mirrors a server refund of amount: every sold item becomes
// canceled, activated items are kept and the total drops by amount with a
// floor of zero. The order status is left alone; see MarkRefunded.
func (s *OrderStore) ApplyRefund(orderID int64, amount decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(orderID)
	if i < 0 {
		return false
	}
	order := &s.orders[i]
	for j := range order.Items {
		if order.Items[j].Status == models.ItemSold {
			order.Items[j].Status = models.ItemCanceled
		}
	}
	order.TotalAmount = decimal.Max(decimal.Zero, order.TotalAmount.Sub(amount))
	return true
}

// MarkRefunded sets the order status to refunded. Callers apply it only
// when the server reported the order as refunded.
func (s *OrderStore) MarkRefunded(orderID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(orderID)
	if i < 0 {
		return false
	}
	s.orders[i].Status = models.OrderRefunded
	return true
}

// Reset drops every cached order, e.g. on logout.
func (s *OrderStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = nil
	s.loaded = false
	s.loadSeq++
}

func (s *OrderStore) indexLocked(orderID int64) int {
	for i := range s.orders {
		if s.orders[i].ID == orderID {
			return i
		}
	}
	return -1
}
