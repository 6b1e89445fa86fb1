package services

import (
	"context"
	"errors"
	"testing"

	"ticket-client/internal/status"
	"ticket-client/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadedOrderStore(t *testing.T, orders ...models.Order) (*OrderStore, *MockAPI) {
	t.Helper()
	api := new(MockAPI)
	api.On("MyOrders").Return(orders, nil).Once()
	store := NewOrderStore(api, signedIn)
	require.NoError(t, store.Load(context.Background()))
	return store, api
}

func TestOrderStore_LoadWaitsForSession(t *testing.T) {
	api := new(MockAPI)

	store := NewOrderStore(api, fakeSession{resolved: false, token: "t"})
	assert.ErrorIs(t, store.Load(context.Background()), status.ErrSessionNotResolved)

	store = NewOrderStore(api, fakeSession{resolved: true})
	assert.ErrorIs(t, store.Load(context.Background()), status.ErrNotAuthenticated)

	api.AssertNotCalled(t, "MyOrders")
}

func TestOrderStore_LoadFailureKeepsCache(t *testing.T) {
	store, api := loadedOrderStore(t, sampleOrder(1, "100", item(5, "100", models.ItemSold)))
	api.On("MyOrders").Return(nil, errors.New("timeout"))

	assert.Error(t, store.Load(context.Background()))
	assert.Len(t, store.Orders(), 1)
	assert.True(t, store.Loaded())
}

func TestOrderStore_OrdersAreCopies(t *testing.T) {
	store, _ := loadedOrderStore(t, sampleOrder(1, "100", item(5, "100", models.ItemSold)))

	orders := store.Orders()
	orders[0].Items[0].Status = models.ItemCanceled

	got, ok := store.Get(1)
	require.True(t, ok)
	assert.Equal(t, models.ItemSold, got.Items[0].Status)
}

func TestOrderStore_ApplyItemTransitionTouchesOneItem(t *testing.T) {
	store, _ := loadedOrderStore(t,
		sampleOrder(1, "200", item(5, "100", models.ItemSold), item(6, "100", models.ItemSold)),
		sampleOrder(2, "100", item(7, "100", models.ItemSold)),
	)

	assert.True(t, store.ApplyItemTransition(1, 5, models.ItemActivated))

	o1, _ := store.Get(1)
	o2, _ := store.Get(2)
	assert.Equal(t, models.ItemActivated, o1.Items[0].Status)
	assert.Equal(t, models.ItemSold, o1.Items[1].Status)
	assert.Equal(t, models.ItemSold, o2.Items[0].Status)
	assert.Equal(t, models.OrderPaid, o1.Status)
}

func TestOrderStore_ApplyItemTransitionIgnoresBackwardMoves(t *testing.T) {
	store, _ := loadedOrderStore(t, sampleOrder(1, "100", item(5, "100", models.ItemActivated)))

	assert.False(t, store.ApplyItemTransition(1, 5, models.ItemSold))
	assert.False(t, store.ApplyItemTransition(1, 5, models.ItemCanceled))
	assert.False(t, store.ApplyItemTransition(9, 5, models.ItemActivated))

	o, _ := store.Get(1)
	assert.Equal(t, models.ItemActivated, o.Items[0].Status)
}

func TestOrderStore_ApplyRefund(t *testing.T) {
	tests := []struct {
		name      string
		total     string
		amount    string
		wantTotal string
	}{
		{"partial", "300", "200", "100"},
		{"exact", "300", "300", "0"},
		{"over refund floors at zero", "100", "150", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := loadedOrderStore(t, sampleOrder(1, tt.total,
				item(5, "100", models.ItemSold),
				item(6, "100", models.ItemActivated),
				item(7, "100", models.ItemSold),
			))

			require.True(t, store.ApplyRefund(1, dec(tt.amount)))

			o, _ := store.Get(1)
			assert.Equal(t, models.OrderPaid, o.Status)
			assert.True(t, o.TotalAmount.Equal(dec(tt.wantTotal)), "total %s", o.TotalAmount)
			assert.Equal(t, models.ItemCanceled, o.Items[0].Status)
			assert.Equal(t, models.ItemActivated, o.Items[1].Status)
			assert.Equal(t, models.ItemCanceled, o.Items[2].Status)
		})
	}
}

func TestOrderStore_UpsertAndLookup(t *testing.T) {
	store, _ := loadedOrderStore(t, sampleOrder(1, "100", item(5, "100", models.ItemSold)))

	store.Upsert(sampleOrder(2, "50", item(8, "50", models.ItemSold)))
	store.Upsert(sampleOrder(1, "100", item(5, "100", models.ItemActivated)))

	orders := store.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, models.ItemActivated, orders[0].Items[0].Status)

	o, ok := store.OrderForTicket(8)
	require.True(t, ok)
	assert.Equal(t, int64(2), o.ID)

	_, ok = store.OrderForTicket(404)
	assert.False(t, ok)

	store.Reset()
	assert.Empty(t, store.Orders())
	assert.False(t, store.Loaded())
}

func TestOrderStore_MarkRefunded(t *testing.T) {
	store, _ := loadedOrderStore(t, sampleOrder(1, "100", item(5, "100", models.ItemCanceled)))

	assert.True(t, store.MarkRefunded(1))
	assert.False(t, store.MarkRefunded(2))

	o, _ := store.Get(1)
	assert.Equal(t, models.OrderRefunded, o.Status)
}

func TestOrderStore_OrderForTicketPrefersSoldItem(t *testing.T) {
	store, _ := loadedOrderStore(t,
		sampleOrder(1, "0", item(10, "100", models.ItemCanceled)),
		sampleOrder(2, "100", item(10, "100", models.ItemSold)),
		sampleOrder(3, "0", item(11, "100", models.ItemCanceled)),
		sampleOrder(4, "100", item(11, "100", models.ItemActivated)),
	)

	o, ok := store.OrderForTicket(10)
	require.True(t, ok)
	assert.Equal(t, int64(2), o.ID)

	o, ok = store.OrderForTicket(11)
	require.True(t, ok)
	assert.Equal(t, int64(4), o.ID)
}
