package apiclient

import (
	"ticket-client/models"

	"github.com/shopspring/decimal"
)

// OrderItemRequest is either a tier purchase {tier_id, quantity} or a
// single seat {ticket_id}; never both.
type OrderItemRequest struct {
	TierID   int64 `json:"tier_id,omitempty"`
	Quantity int   `json:"quantity,omitempty"`
	TicketID int64 `json:"ticket_id,omitempty"`
}

type OrderRequest struct {
	Items []OrderItemRequest `json:"items"`

	// IdempotencyKey is sent as a header; one key per user submission.
	IdempotencyKey string `json:"-"`
}

type OrderResponse struct {
	models.Order
	WalletBalance decimal.NullDecimal `json:"wallet_balance"`
}

type RefundResponse struct {
	Refunded      bool                `json:"refunded"`
	Amount        decimal.Decimal     `json:"amount"`
	WalletBalance decimal.NullDecimal `json:"wallet_balance"`
}

type MinPriceResponse struct {
	MinPrice decimal.NullDecimal `json:"min_price"`
}

type errorBody struct {
	Detail any `json:"detail"`
}
