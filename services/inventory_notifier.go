package services

import (
	"context"
	"encoding/json"
	"log/slog"

	pubnub "github.com/pubnub/go/v7"
)

const inventoryChangedType = "inventory_changed"

// InventoryRefresher refetches availability for an event if it is open.
type InventoryRefresher interface {
	RefreshOpenEvent(ctx context.Context, eventID int64) error
}

type inventoryChange struct {
	Type    string `json:"type"`
	EventID int64  `json:"event_id"`
	TierID  int64  `json:"tier_id,omitempty"`
}

// InventoryNotifier listens on a PubNub channel for inventory changes and
// asks the open purchase dialog to refetch availability.
type InventoryNotifier struct {
	pn        *pubnub.PubNub
	channels  []string
	refresher InventoryRefresher
}

func NewPubNub(subscribeKey, publishKey, secretKey, userID string) *pubnub.PubNub {
	cfg := pubnub.NewConfigWithUserId(pubnub.UserId(userID))
	cfg.SubscribeKey = subscribeKey
	cfg.PublishKey = publishKey
	cfg.SecretKey = secretKey
	return pubnub.NewPubNub(cfg)
}

func NewInventoryNotifier(pn *pubnub.PubNub, channel string, refresher InventoryRefresher) *InventoryNotifier {
	return &InventoryNotifier{
		pn:        pn,
		channels:  []string{channel},
		refresher: refresher,
	}
}

// Run subscribes and dispatches messages until ctx is done.
func (n *InventoryNotifier) Run(ctx context.Context) error {
	listener := pubnub.NewListener()
	n.pn.AddListener(listener)
	n.pn.Subscribe().Channels(n.channels).Execute()

	defer func() {
		n.pn.Unsubscribe().Channels(n.channels).Execute()
		n.pn.RemoveListener(listener)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case st := <-listener.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				slog.Info("inventory notifications connected", "channels", n.channels)
			case pubnub.PNReconnectedCategory:
				slog.Info("inventory notifications reconnected", "channels", n.channels)
			case pubnub.PNDisconnectedCategory, pubnub.PNTimeoutCategory:
				slog.Warn("inventory notifications interrupted", "category", st.Category)
			case pubnub.PNAccessDeniedCategory, pubnub.PNBadRequestCategory:
				slog.Error("inventory notifications refused", "category", st.Category, "error", st.ErrorData)
			}

		case msg := <-listener.Message:
			n.handleMessage(ctx, msg)
		}
	}
}

func (n *InventoryNotifier) handleMessage(ctx context.Context, msg *pubnub.PNMessage) {
	if msg == nil {
		return
	}

	raw, err := json.Marshal(msg.Message)
	if err != nil {
		slog.Warn("unreadable inventory message", "channel", msg.Channel, "error", err)
		return
	}

	var change inventoryChange
	if err := json.Unmarshal(raw, &change); err != nil {
		slog.Warn("unreadable inventory message", "channel", msg.Channel, "error", err)
		return
	}
	if change.Type != inventoryChangedType || change.EventID == 0 {
		return
	}

	slog.Debug("inventory changed", "event_id", change.EventID, "tier_id", change.TierID)
	if err := n.refresher.RefreshOpenEvent(ctx, change.EventID); err != nil {
		slog.Warn("availability refresh after inventory change failed", "event_id", change.EventID, "error", err)
	}
}
