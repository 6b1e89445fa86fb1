package services

import (
	"context"

	"ticket-client/internal/apiclient"
	"ticket-client/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockAPI stands in for *apiclient.Client in every service.
type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) GetTierAvailability(ctx context.Context, eventID, tierID int64) (models.TierAvailability, error) {
	args := m.Called(eventID, tierID)
	return args.Get(0).(models.TierAvailability), args.Error(1)
}

func (m *MockAPI) ListTierSeats(ctx context.Context, eventID, tierID int64) ([]models.Seat, error) {
	args := m.Called(eventID, tierID)
	seats, _ := args.Get(0).([]models.Seat)
	return seats, args.Error(1)
}

func (m *MockAPI) MyOrders(ctx context.Context) ([]models.Order, error) {
	args := m.Called()
	orders, _ := args.Get(0).([]models.Order)
	return orders, args.Error(1)
}

func (m *MockAPI) Me(ctx context.Context) (*models.User, error) {
	args := m.Called()
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockAPI) ActivateTicket(ctx context.Context, ticketID int64) error {
	return m.Called(ticketID).Error(0)
}

func (m *MockAPI) RefundOrder(ctx context.Context, orderID int64) (*apiclient.RefundResponse, error) {
	args := m.Called(orderID)
	resp, _ := args.Get(0).(*apiclient.RefundResponse)
	return resp, args.Error(1)
}

func (m *MockAPI) CreateOrder(ctx context.Context, req apiclient.OrderRequest) (*apiclient.OrderResponse, error) {
	args := m.Called(req.Items)
	resp, _ := args.Get(0).(*apiclient.OrderResponse)
	return resp, args.Error(1)
}

type fakeSession struct {
	resolved bool
	token    string
}

func (f fakeSession) Resolved() bool { return f.resolved }

func (f fakeSession) AccessToken() (string, bool) { return f.token, f.token != "" }

var signedIn = fakeSession{resolved: true, token: "token-1"}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleOrder(id int64, total string, items ...models.OrderItem) models.Order {
	return models.Order{
		ID:          id,
		Status:      models.OrderPaid,
		TotalAmount: dec(total),
		Items:       items,
	}
}

func item(ticketID int64, price string, st models.ItemStatus) models.OrderItem {
	return models.OrderItem{
		ID:       ticketID * 10,
		TicketID: ticketID,
		Price:    dec(price),
		Status:   st,
	}
}
