package services

import (
	"context"
	"fmt"
	"log/slog"

	"ticket-client/internal/apiclient"
	"ticket-client/internal/status"
	"ticket-client/models"
	"ticket-client/monitoring"
	"ticket-client/utils"

	"github.com/shopspring/decimal"
)

const (
	ActivationFailedMessage = "activation failed"
	RefundFailedMessage     = "refund failed"
)

type TicketAPI interface {
	ActivateTicket(ctx context.Context, ticketID int64) error
	RefundOrder(ctx context.Context, orderID int64) (*apiclient.RefundResponse, error)
}

// Confirmer asks the user to approve an irreversible action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// AlwaysConfirm approves every prompt.
var AlwaysConfirm = ConfirmFunc(func(context.Context, string) bool { return true })

// TicketActionService activates tickets and refunds orders. At most one
// activation per ticket and one refund per order can be in flight.
type TicketActionService struct {
	api     TicketAPI
	session SessionView
	orders  *OrderStore
	wallet  *WalletBalance
	confirm Confirmer
	monitor *monitoring.Monitor

	activating *utils.BusySet[int64]
	refunding  *utils.BusySet[int64]
}

func NewTicketActionService(
	api TicketAPI,
	session SessionView,
	orders *OrderStore,
	wallet *WalletBalance,
	confirm Confirmer,
	monitor *monitoring.Monitor,
) *TicketActionService {
	if confirm == nil {
		confirm = AlwaysConfirm
	}
	return &TicketActionService{
		api:        api,
		session:    session,
		orders:     orders,
		wallet:     wallet,
		confirm:    confirm,
		monitor:    monitor,
		activating: utils.NewBusySet[int64](),
		refunding:  utils.NewBusySet[int64](),
	}
}

// Activate marks a sold ticket as used. On success the matching order item
// becomes activated locally; if the ticket's order is not cached the order
// list is reloaded instead.
func (s *TicketActionService) Activate(ctx context.Context, ticketID int64) error {
	if _, ok := s.session.AccessToken(); !ok {
		return status.ErrNotAuthenticated
	}
	if !s.activating.TryAdd(ticketID) {
		return status.ErrActionInFlight
	}
	defer s.activating.Remove(ticketID)

	if !s.confirm.Confirm(ctx, fmt.Sprintf("Activate ticket %d? This cannot be undone.", ticketID)) {
		s.monitor.TrackTicketAction("activate", "declined")
		return status.ErrActionDeclined
	}

	if err := s.api.ActivateTicket(ctx, ticketID); err != nil {
		slog.Error("ticket activation failed", "ticket_id", ticketID, "error", err)
		s.monitor.TrackTicketAction("activate", "failed")
		return fmt.Errorf("activate ticket %d: %w", ticketID, err)
	}
	s.monitor.TrackTicketAction("activate", "succeeded")

	if order, ok := s.orders.OrderForTicket(ticketID); ok {
		s.orders.ApplyItemTransition(order.ID, ticketID, models.ItemActivated)
		return nil
	}
	if err := s.orders.Load(ctx); err != nil {
		slog.Warn("order reload after activation failed", "ticket_id", ticketID, "error", err)
	}
	return nil
}

// Refund refunds every sold item of an order and returns the refunded
// amount. The wallet is replaced from the response when it carries a
// balance; otherwise the orders are reloaded.
func (s *TicketActionService) Refund(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	if _, ok := s.session.AccessToken(); !ok {
		return decimal.Zero, status.ErrNotAuthenticated
	}
	if !s.refunding.TryAdd(orderID) {
		return decimal.Zero, status.ErrActionInFlight
	}
	defer s.refunding.Remove(orderID)

	if !s.confirm.Confirm(ctx, fmt.Sprintf("Refund order %d? Activated tickets are not refunded.", orderID)) {
		s.monitor.TrackTicketAction("refund", "declined")
		return decimal.Zero, status.ErrActionDeclined
	}

	resp, err := s.api.RefundOrder(ctx, orderID)
	if err != nil {
		slog.Error("order refund failed", "order_id", orderID, "error", err)
		s.monitor.TrackTicketAction("refund", "failed")
		return decimal.Zero, fmt.Errorf("refund order %d: %w", orderID, err)
	}
	s.monitor.TrackTicketAction("refund", "succeeded")

	applied := s.orders.ApplyRefund(orderID, resp.Amount)
	if applied && resp.Refunded {
		s.orders.MarkRefunded(orderID)
	}
	if s.wallet.ReplaceFrom(resp.WalletBalance) && applied {
		return resp.Amount, nil
	}
	if err := s.orders.Load(ctx); err != nil {
		slog.Warn("order reload after refund failed", "order_id", orderID, "error", err)
	}
	return resp.Amount, nil
}

func (s *TicketActionService) ActivationInFlight(ticketID int64) bool {
	return s.activating.Contains(ticketID)
}

func (s *TicketActionService) RefundInFlight(orderID int64) bool {
	return s.refunding.Contains(orderID)
}
