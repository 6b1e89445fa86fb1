package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPaid     OrderStatus = "paid"
	OrderRefunded OrderStatus = "refunded"
)

type ItemStatus string

const (
	ItemSold      ItemStatus = "sold"
	ItemActivated ItemStatus = "activated"
	ItemCanceled  ItemStatus = "canceled"
)

// Terminal reports whether no further transition is possible.
func (s ItemStatus) Terminal() bool {
	return s == ItemActivated || s == ItemCanceled
}

// CanTransitionTo enforces the one-directional item lifecycle:
// sold -> activated or sold -> canceled. Re-applying the current
// status is allowed so replays of the same server effect are harmless.
func (s ItemStatus) CanTransitionTo(next ItemStatus) bool {
	if s == next {
		return true
	}
	return s == ItemSold && next.Terminal()
}

type Order struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id,omitempty"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   *time.Time      `json:"created_at,omitempty"`
	Items       []OrderItem     `json:"items"`
}

type OrderItem struct {
	ID         int64           `json:"id"`
	TicketID   int64           `json:"ticket_id,omitempty"`
	TierID     int64           `json:"tier_id,omitempty"`
	EventTitle string          `json:"event_title"`
	TierName   string          `json:"tier_name"`
	SeatLabel  string          `json:"seat_label,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Status     ItemStatus      `json:"status"`
}

// Clone returns a deep copy so callers can never alias store internals.
func (o Order) Clone() Order {
	c := o
	c.Items = append([]OrderItem(nil), o.Items...)
	if o.CreatedAt != nil {
		t := *o.CreatedAt
		c.CreatedAt = &t
	}
	return c
}

// HasTicket reports whether any item of the order refers to ticketID.
func (o Order) HasTicket(ticketID int64) bool {
	for _, it := range o.Items {
		if it.TicketID == ticketID {
			return true
		}
	}
	return false
}
