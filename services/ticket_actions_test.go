package services

import (
	"context"
	"testing"
	"time"

	"ticket-client/internal/apiclient"
	"ticket-client/internal/status"
	"ticket-client/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupTestTicketActions(t *testing.T, confirm Confirmer, orders ...models.Order) (*TicketActionService, *MockAPI, *OrderStore, *WalletBalance) {
	t.Helper()
	store, api := loadedOrderStore(t, orders...)
	wallet := NewWalletBalance()
	wallet.Replace(dec("100"))
	return NewTicketActionService(api, signedIn, store, wallet, confirm, nil), api, store, wallet
}

func TestTicketActions_Activate(t *testing.T) {
	svc, api, store, _ := setupTestTicketActions(t, AlwaysConfirm,
		sampleOrder(1, "200", item(5, "100", models.ItemSold), item(6, "100", models.ItemSold)))
	api.On("ActivateTicket", int64(5)).Return(nil)

	require.NoError(t, svc.Activate(context.Background(), 5))

	o, _ := store.Get(1)
	assert.Equal(t, models.ItemActivated, o.Items[0].Status)
	assert.Equal(t, models.ItemSold, o.Items[1].Status)
	assert.False(t, svc.ActivationInFlight(5))
}

func TestTicketActions_ActivateRejectedLeavesStatus(t *testing.T) {
	svc, api, store, _ := setupTestTicketActions(t, AlwaysConfirm,
		sampleOrder(1, "100", item(5, "100", models.ItemSold)))
	api.On("ActivateTicket", int64(5)).
		Return(&status.ServerRejectedError{Op: "activate_ticket", StatusCode: 400, Message: "Ticket already activated"})

	err := svc.Activate(context.Background(), 5)
	require.Error(t, err)
	assert.Equal(t, "Ticket already activated", status.UserMessage(err, ActivationFailedMessage))

	o, _ := store.Get(1)
	assert.Equal(t, models.ItemSold, o.Items[0].Status)
}

func TestTicketActions_ActivateRequiresConfirmation(t *testing.T) {
	var prompts []string
	decline := ConfirmFunc(func(_ context.Context, prompt string) bool {
		prompts = append(prompts, prompt)
		return false
	})
	svc, api, _, _ := setupTestTicketActions(t, decline, sampleOrder(1, "100", item(5, "100", models.ItemSold)))

	assert.ErrorIs(t, svc.Activate(context.Background(), 5), status.ErrActionDeclined)
	assert.Len(t, prompts, 1)
	api.AssertNotCalled(t, "ActivateTicket", mock.Anything)
}

func TestTicketActions_ActivateWithoutSession(t *testing.T) {
	store := NewOrderStore(new(MockAPI), fakeSession{resolved: true})
	svc := NewTicketActionService(new(MockAPI), fakeSession{resolved: true}, store, NewWalletBalance(), AlwaysConfirm, nil)

	assert.ErrorIs(t, svc.Activate(context.Background(), 5), status.ErrNotAuthenticated)
	_, err := svc.Refund(context.Background(), 1)
	assert.ErrorIs(t, err, status.ErrNotAuthenticated)
}

func TestTicketActions_ConcurrentActivationOfSameTicket(t *testing.T) {
	release := make(chan struct{})
	svc, api, _, _ := setupTestTicketActions(t, AlwaysConfirm,
		sampleOrder(1, "200", item(5, "100", models.ItemSold), item(6, "100", models.ItemSold)))
	api.On("ActivateTicket", int64(5)).Run(func(mock.Arguments) { <-release }).Return(nil).Once()
	api.On("ActivateTicket", int64(6)).Return(nil)

	done := make(chan error)
	go func() { done <- svc.Activate(context.Background(), 5) }()

	assert.Eventually(t, func() bool { return svc.ActivationInFlight(5) }, time.Second, time.Millisecond)
	assert.ErrorIs(t, svc.Activate(context.Background(), 5), status.ErrActionInFlight)
	// Other tickets stay interactive.
	assert.NoError(t, svc.Activate(context.Background(), 6))

	close(release)
	require.NoError(t, <-done)
	api.AssertNumberOfCalls(t, "ActivateTicket", 2)
}

func TestTicketActions_ActivateUnknownTicketReloads(t *testing.T) {
	svc, api, store, _ := setupTestTicketActions(t, AlwaysConfirm)
	api.On("ActivateTicket", int64(5)).Return(nil)
	api.On("MyOrders").Return([]models.Order{sampleOrder(1, "100", item(5, "100", models.ItemActivated))}, nil)

	require.NoError(t, svc.Activate(context.Background(), 5))

	o, ok := store.OrderForTicket(5)
	require.True(t, ok)
	assert.Equal(t, models.ItemActivated, o.Items[0].Status)
}

func TestTicketActions_RefundUpdatesWallet(t *testing.T) {
	svc, api, store, wallet := setupTestTicketActions(t, AlwaysConfirm,
		sampleOrder(1, "200", item(5, "100", models.ItemSold), item(6, "100", models.ItemActivated)))
	api.On("RefundOrder", int64(1)).Return(&apiclient.RefundResponse{
		Refunded:      true,
		Amount:        dec("100"),
		WalletBalance: decimal.NewNullDecimal(dec("200")),
	}, nil)

	amount, err := svc.Refund(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("100")))

	o, _ := store.Get(1)
	assert.Equal(t, models.OrderRefunded, o.Status)
	assert.True(t, o.TotalAmount.Equal(dec("100")))
	assert.Equal(t, models.ItemCanceled, o.Items[0].Status)
	assert.Equal(t, models.ItemActivated, o.Items[1].Status)

	balance, _ := wallet.Read()
	assert.True(t, balance.Equal(dec("200")))
	api.AssertNumberOfCalls(t, "MyOrders", 1)
}

func TestTicketActions_ActivateRepurchasedSeat(t *testing.T) {
	svc, api, store, _ := setupTestTicketActions(t, AlwaysConfirm,
		sampleOrder(1, "0", item(10, "100", models.ItemCanceled)),
		sampleOrder(2, "100", item(10, "100", models.ItemSold)))
	api.On("ActivateTicket", int64(10)).Return(nil)

	require.NoError(t, svc.Activate(context.Background(), 10))

	old, _ := store.Get(1)
	assert.Equal(t, models.ItemCanceled, old.Items[0].Status)
	live, _ := store.Get(2)
	assert.Equal(t, models.ItemActivated, live.Items[0].Status)
}

func TestTicketActions_RefundKeepsStatusUnlessReported(t *testing.T) {
	svc, api, store, _ := setupTestTicketActions(t, AlwaysConfirm,
		sampleOrder(1, "200", item(5, "100", models.ItemSold), item(6, "100", models.ItemActivated)))
	api.On("RefundOrder", int64(1)).Return(&apiclient.RefundResponse{
		Amount:        dec("100"),
		WalletBalance: decimal.NewNullDecimal(dec("200")),
	}, nil)

	_, err := svc.Refund(context.Background(), 1)
	require.NoError(t, err)

	o, _ := store.Get(1)
	assert.Equal(t, models.OrderPaid, o.Status)
	assert.Equal(t, models.ItemCanceled, o.Items[0].Status)
	assert.True(t, o.TotalAmount.Equal(dec("100")))
}

func TestTicketActions_RefundWithoutBalanceReloads(t *testing.T) {
	svc, api, _, wallet := setupTestTicketActions(t, AlwaysConfirm,
		sampleOrder(1, "100", item(5, "100", models.ItemSold)))
	api.On("RefundOrder", int64(1)).Return(&apiclient.RefundResponse{Amount: dec("100")}, nil)
	api.On("MyOrders").Return([]models.Order{}, nil)

	_, err := svc.Refund(context.Background(), 1)
	require.NoError(t, err)

	api.AssertNumberOfCalls(t, "MyOrders", 2)
	balance, _ := wallet.Read()
	assert.True(t, balance.Equal(dec("100")))
}

func TestTicketActions_RefundFailureChangesNothing(t *testing.T) {
	svc, api, store, wallet := setupTestTicketActions(t, AlwaysConfirm,
		sampleOrder(1, "100", item(5, "100", models.ItemSold)))
	api.On("RefundOrder", int64(1)).Return(nil, &status.ServerRejectedError{Op: "refund_order", StatusCode: 409})

	_, err := svc.Refund(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, RefundFailedMessage, status.UserMessage(err, RefundFailedMessage))

	o, _ := store.Get(1)
	assert.Equal(t, models.OrderPaid, o.Status)
	assert.Equal(t, models.ItemSold, o.Items[0].Status)
	balance, _ := wallet.Read()
	assert.True(t, balance.Equal(dec("100")))
}

func TestTicketActions_RefundGuardIsPerOrder(t *testing.T) {
	release := make(chan struct{})
	svc, api, _, _ := setupTestTicketActions(t, AlwaysConfirm,
		sampleOrder(1, "100", item(5, "100", models.ItemSold)),
		sampleOrder(2, "100", item(6, "100", models.ItemSold)))
	api.On("RefundOrder", int64(1)).Run(func(mock.Arguments) { <-release }).
		Return(&apiclient.RefundResponse{Amount: dec("100"), WalletBalance: decimal.NewNullDecimal(dec("200"))}, nil)
	api.On("RefundOrder", int64(2)).
		Return(&apiclient.RefundResponse{Amount: dec("100"), WalletBalance: decimal.NewNullDecimal(dec("300"))}, nil)

	done := make(chan error)
	go func() {
		_, err := svc.Refund(context.Background(), 1)
		done <- err
	}()

	assert.Eventually(t, func() bool { return svc.RefundInFlight(1) }, time.Second, time.Millisecond)
	_, err := svc.Refund(context.Background(), 1)
	assert.ErrorIs(t, err, status.ErrActionInFlight)
	assert.False(t, svc.RefundInFlight(2))

	_, err = svc.Refund(context.Background(), 2)
	assert.NoError(t, err)

	close(release)
	require.NoError(t, <-done)
}
