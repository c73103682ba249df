package domain

import "time"

// Wallet holds the derived balance for one currency. The balance equals the
// signed sum of completed transactions in that currency and is only ever
// updated in the same database transaction as a ledger append.
type Wallet struct {
	Currency  Currency  `json:"currency"`
	Balance   int64     `json:"balance"` // In micro-units, never negative
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
