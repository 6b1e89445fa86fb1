package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"ticket-client/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (c *Client) ListEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := c.do(ctx, call{op: "list_events", method: http.MethodGet, path: "/events", out: &events})
	return events, err
}

func (c *Client) GetEvent(ctx context.Context, eventID int64) (*models.Event, error) {
	var event models.Event
	err := c.do(ctx, call{
		op:     "get_event",
		method: http.MethodGet,
		path:   fmt.Sprintf("/events/%d", eventID),
		out:    &event,
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// MinPrice returns the cheapest tier price of an event, if it has any.
func (c *Client) MinPrice(ctx context.Context, eventID int64) (decimal.NullDecimal, error) {
	var reply MinPriceResponse
	err := c.do(ctx, call{
		op:     "min_price",
		method: http.MethodGet,
		path:   fmt.Sprintf("/events/%d/min_price", eventID),
		out:    &reply,
	})
	return reply.MinPrice, err
}

// GetTierAvailability fetches the remaining inventory of one tier.
//
// The canonical body is {"available": n, "has_seats": bool}. Older
// deployments answer with a bare integer or omit has_seats; both decode
// as a non-seat tier and are logged as deprecated.
func (c *Client) GetTierAvailability(ctx context.Context, eventID, tierID int64) (models.TierAvailability, error) {
	var raw []byte
	err := c.do(ctx, call{
		op:     "tier_availability",
		method: http.MethodGet,
		path:   fmt.Sprintf("/events/%d/tier/%d/available", eventID, tierID),
		raw:    &raw,
	})
	if err != nil {
		return models.TierAvailability{}, err
	}

	availability, legacy, err := decodeAvailability(raw)
	if err != nil {
		return models.TierAvailability{}, fmt.Errorf("tier_availability: %w", err)
	}
	if legacy {
		slog.Warn("deprecated availability response shape", "event_id", eventID, "tier_id", tierID)
	}
	if availability.Available < 0 {
		slog.Warn("negative availability clamped", "event_id", eventID, "tier_id", tierID, "available", availability.Available)
		availability.Available = 0
	}
	return availability, nil
}

func decodeAvailability(raw []byte) (models.TierAvailability, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var reply struct {
			Available int   `json:"available"`
			HasSeats  *bool `json:"has_seats"`
		}
		if err := json.Unmarshal(raw, &reply); err != nil {
			return models.TierAvailability{}, false, fmt.Errorf("json.Unmarshal: %w", err)
		}
		if reply.HasSeats == nil {
			return models.TierAvailability{Available: reply.Available}, true, nil
		}
		return models.TierAvailability{Available: reply.Available, HasSeats: *reply.HasSeats}, false, nil
	}

	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return models.TierAvailability{}, false, fmt.Errorf("unrecognized availability body %q", raw)
	}
	return models.TierAvailability{Available: n}, true, nil
}

// ListTierSeats fetches every seat slot of a seat-based tier.
func (c *Client) ListTierSeats(ctx context.Context, eventID, tierID int64) ([]models.Seat, error) {
	q := url.Values{"tier_id": []string{strconv.FormatInt(tierID, 10)}}
	var seats []models.Seat
	err := c.do(ctx, call{
		op:     "tier_seats",
		method: http.MethodGet,
		path:   fmt.Sprintf("/events/%d/tickets?%s", eventID, q.Encode()),
		out:    &seats,
	})
	return seats, err
}

func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	var reply OrderResponse
	err := c.do(ctx, call{
		op:      "create_order",
		method:  http.MethodPost,
		path:    "/orders",
		body:    req,
		authed:  true,
		headers: map[string]string{"Idempotency-Key": key},
		out:     &reply,
	})
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) ActivateTicket(ctx context.Context, ticketID int64) error {
	return c.do(ctx, call{
		op:     "activate_ticket",
		method: http.MethodPost,
		path:   fmt.Sprintf("/tickets/%d/activate", ticketID),
		authed: true,
	})
}

func (c *Client) RefundOrder(ctx context.Context, orderID int64) (*RefundResponse, error) {
	var reply RefundResponse
	err := c.do(ctx, call{
		op:     "refund_order",
		method: http.MethodPost,
		path:   fmt.Sprintf("/orders/%d/refund", orderID),
		authed: true,
		out:    &reply,
	})
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) MyOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := c.do(ctx, call{
		op:     "my_orders",
		method: http.MethodGet,
		path:   "/orders/me",
		authed: true,
		out:    &orders,
	})
	return orders, err
}

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	err := c.do(ctx, call{
		op:     "me",
		method: http.MethodGet,
		path:   "/users/me",
		authed: true,
		out:    &user,
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}
