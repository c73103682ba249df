package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AttemptState is the local lifecycle state of a payment attempt.
type AttemptState string

const (
	AttemptStateIdle               AttemptState = "IDLE"
	AttemptStateCreating           AttemptState = "CREATING"
	AttemptStateAwaitingCompletion AttemptState = "AWAITING_COMPLETION"
	AttemptStatePolling            AttemptState = "POLLING"
	AttemptStateSucceeded          AttemptState = "SUCCEEDED"
	AttemptStateCancelled          AttemptState = "CANCELLED"
	AttemptStateFailed             AttemptState = "FAILED"
)

// Terminal returns true if no further automatic transitions occur.
func (s AttemptState) Terminal() bool {
	return s == AttemptStateSucceeded || s == AttemptStateCancelled || s == AttemptStateFailed
}

// Pollable returns true if the attempt may be refreshed against the gateway.
func (s AttemptState) Pollable() bool {
	return s == AttemptStateAwaitingCompletion || s == AttemptStatePolling
}

// FailureReason qualifies a FAILED attempt.
type FailureReason string

const (
	FailureNone             FailureReason = ""
	FailureGateway          FailureReason = "GATEWAY_ERROR"
	FailureRejected         FailureReason = "REJECTED"
	FailureTimeout          FailureReason = "TIMEOUT"
	FailurePollingExhausted FailureReason = "POLLING_EXHAUSTED"
	FailureLedger           FailureReason = "LEDGER_ERROR"
)

// RemoteStatus is the status vocabulary reported by the Pi platform API.
type RemoteStatus string

const (
	RemoteStatusPending   RemoteStatus = "PENDING"
	RemoteStatusCompleted RemoteStatus = "COMPLETED"
	RemoteStatusCancelled RemoteStatus = "CANCELLED"
)

// ParseRemoteStatus normalizes a raw status string from the Pi API.
// Anything that is not a terminal remote state counts as pending.
func ParseRemoteStatus(raw string) RemoteStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "COMPLETED":
		return RemoteStatusCompleted
	case "CANCELLED", "USER_CANCELLED", "DEVELOPER_CANCELLED":
		return RemoteStatusCancelled
	default:
		return RemoteStatusPending
	}
}

// RemotePayment is the normalized payment record returned by the gateway.
type RemotePayment struct {
	ID     string       `json:"id"`
	Status RemoteStatus `json:"status"`
	Amount int64        `json:"amount"` // In micro-Pi
	Memo   string       `json:"memo"`
}

// PaymentIntent is a requested payment before any remote call.
type PaymentIntent struct {
	Amount int64  `json:"amount"` // In micro-Pi, must be positive
	Memo   string `json:"memo"`
}

// Validate checks the intent invariants.
func (i PaymentIntent) Validate() error {
	if i.Amount <= 0 {
		return fmt.Errorf("intent amount must be positive, got %d", i.Amount)
	}
	if strings.TrimSpace(i.Memo) == "" {
		return fmt.Errorf("intent memo must not be empty")
	}
	return nil
}

// PaymentAttempt is one run of the payment state machine for a given intent.
// It is owned exclusively by the orchestrator; all mutation happens under
// the orchestrator's lock.
type PaymentAttempt struct {
	ID           uuid.UUID     `json:"id"`
	RemoteID     string        `json:"remote_id,omitempty"` // Assigned by the gateway once created
	Intent       PaymentIntent `json:"intent"`
	State        AttemptState  `json:"state"`
	RemoteStatus RemoteStatus  `json:"remote_status,omitempty"`
	Reason       FailureReason `json:"reason,omitempty"`
	Credited     bool          `json:"credited"`
	Reconciled   bool          `json:"reconciled"`
	CreatedAt    time.Time     `json:"created_at"`
	LastPolledAt time.Time     `json:"last_polled_at,omitempty"`
}

// NewPaymentAttempt allocates a fresh attempt for the given intent.
func NewPaymentAttempt(intent PaymentIntent) *PaymentAttempt {
	return &PaymentAttempt{
		ID:        uuid.New(),
		Intent:    intent,
		State:     AttemptStateCreating,
		CreatedAt: time.Now().UTC(),
	}
}

// Terminal reports whether the attempt reached a stable final state.
func (a *PaymentAttempt) Terminal() bool {
	return a.State.Terminal()
}
