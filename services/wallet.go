package services

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/shopspring/decimal"
)

// WalletBalance is the client-side projection of the user's balance. The
// value only ever arrives from the server; the client never computes it.
type WalletBalance struct {
	mu        sync.RWMutex
	balance   decimal.Decimal
	known     bool
	listeners []func(decimal.Decimal)
}

func NewWalletBalance() *WalletBalance {
	return &WalletBalance{}
}

// Read returns the last server-reported balance and whether one was seen.
func (w *WalletBalance) Read() (decimal.Decimal, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.balance, w.known
}

// Replace overwrites the balance with a server-reported value.
func (w *WalletBalance) Replace(balance decimal.Decimal) {
	if balance.IsNegative() {
		slog.Warn("server reported a negative wallet balance", "balance", balance.String())
	}

	w.mu.Lock()
	w.balance = balance
	w.known = true
	listeners := slices.Clone(w.listeners)
	w.mu.Unlock()

	for _, fn := range listeners {
		fn(balance)
	}
}

// ReplaceFrom applies v only when the response carried a balance.
func (w *WalletBalance) ReplaceFrom(v decimal.NullDecimal) bool {
	if !v.Valid {
		return false
	}
	w.Replace(v.Decimal)
	return true
}

func (w *WalletBalance) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balance = decimal.Zero
	w.known = false
}

// OnChange registers fn to be called after every Replace, outside the lock.
func (w *WalletBalance) OnChange(fn func(decimal.Decimal)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}
