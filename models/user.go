package models

import "github.com/shopspring/decimal"

type User struct {
	ID            int64           `json:"id"`
	Email         string          `json:"email"`
	FullName      string          `json:"full_name,omitempty"`
	Role          string          `json:"role"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
}
