package domain

import (
	"time"

	"github.com/google/uuid"
)

// Currency identifies a wallet ledger. PI is the Pi Network coin,
// PTM is the internal PiEat reward token.
type Currency string

const (
	CurrencyPi  Currency = "PI"
	CurrencyPTM Currency = "PTM"
)

// Valid returns true for a known currency.
func (c Currency) Valid() bool {
	return c == CurrencyPi || c == CurrencyPTM
}

// Direction represents the kind of money movement.
type Direction string

const (
	DirectionSend    Direction = "SEND"
	DirectionReceive Direction = "RECEIVE"
	DirectionReward  Direction = "REWARD"
)

// Sign returns the balance effect of the direction: -1 for outbound, +1 for inbound.
func (d Direction) Sign() int64 {
	if d == DirectionSend {
		return -1
	}
	return 1
}

// Valid returns true for a known direction.
func (d Direction) Valid() bool {
	return d == DirectionSend || d == DirectionReceive || d == DirectionReward
}

// TransactionStatus is the lifecycle state of a ledger entry.
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Transaction is an immutable, append-only ledger entry. Once recorded it is
// never edited or deleted; balances are maintained in lock-step with appends.
type Transaction struct {
	ID          uuid.UUID         `json:"id"`
	ReferenceID string            `json:"reference_id,omitempty"` // Payment attempt ID for gateway credits
	Currency    Currency          `json:"currency"`
	Direction   Direction         `json:"direction"`
	Status      TransactionStatus `json:"status"`
	Amount      int64             `json:"amount"` // In micro-units, always positive
	Description string            `json:"description"`
	CreatedAt   time.Time         `json:"created_at"`
}

// SignedAmount returns the balance contribution of this entry.
// Only completed transactions move balance.
func (t *Transaction) SignedAmount() int64 {
	if t.Status != TransactionStatusCompleted {
		return 0
	}
	return t.Direction.Sign() * t.Amount
}

// TransactionDraft is the caller-supplied part of a ledger entry.
// ID and timestamp are assigned at record time.
type TransactionDraft struct {
	ReferenceID string
	Currency    Currency
	Direction   Direction
	Status      TransactionStatus
	Amount      int64
	Description string
}

// CreditLog marks that a payment attempt has been credited to the ledger.
// It is the durable half of the at-most-once credit guarantee.
type CreditLog struct {
	AttemptID     string
	TransactionID uuid.UUID
	CreatedAt     time.Time
}
