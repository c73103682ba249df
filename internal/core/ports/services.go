package ports

import (
	"context"
	"time"

	"pieat-payments/internal/core/domain"
)

// WalletLedger is the single source of truth for balances. All mutation goes
// through Record; reads are consistent snapshots.
type WalletLedger interface {
	// Record assigns id/timestamp, appends the entry and atomically updates
	// the derived balance for its currency. When the draft carries a
	// ReferenceID and that reference was already credited, the previously
	// recorded transaction is returned instead of appending a second one.
	Record(ctx context.Context, draft domain.TransactionDraft) (*domain.Transaction, error)

	// BalanceOf returns the current balance for a currency in micro-units.
	BalanceOf(ctx context.Context, currency domain.Currency) (int64, error)

	// History returns ledger entries for a currency, most-recent-first.
	History(ctx context.Context, currency domain.Currency, limit int) ([]domain.Transaction, error)

	// SendPi moves Pi to another user. Rejected with ErrInsufficientFunds
	// before any mutation when the balance does not cover the amount.
	SendPi(ctx context.Context, amount int64, recipient string, memo string) (*domain.Transaction, error)

	// Receive credits an inbound Pi transfer.
	Receive(ctx context.Context, amount int64, sender string, memo string) (*domain.Transaction, error)

	// Reward credits PTM earned through in-app activity.
	Reward(ctx context.Context, amount int64, description string) (*domain.Transaction, error)
}

// StateChange is delivered to orchestrator observers on every transition.
type StateChange struct {
	Attempt        domain.PaymentAttempt
	Reconciliation bool // True when a late remote COMPLETED overrode a local terminal state
}

// PaymentOrchestrator owns the lifecycle of the single in-flight payment
// attempt: intent to terminal state, with exactly one ledger credit on
// success.
type PaymentOrchestrator interface {
	// Pay starts a new attempt. Rejected with ErrPaymentInProgress while a
	// non-terminal attempt exists.
	Pay(ctx context.Context, intent domain.PaymentIntent) (domain.PaymentAttempt, error)

	// Cancel requests cancellation of the active attempt with a bounded wait,
	// then forces the local state to Cancelled. Unless the platform confirmed
	// the cancel, a reconciliation fetch is scheduled to catch a completion
	// that raced it. On a terminal attempt Cancel reports the current state.
	Cancel(ctx context.Context) (domain.PaymentAttempt, error)

	// RefreshStatus probes the gateway while the attempt is pollable and
	// replays the ledger credit for an attempt that failed with LEDGER_ERROR
	// after a confirmed completion. Otherwise terminal attempts are served
	// from the local snapshot.
	RefreshStatus(ctx context.Context) (*domain.RemotePayment, error)

	// Retry allocates a new attempt from the last intent. Only legal from a
	// terminal state.
	Retry(ctx context.Context) (domain.PaymentAttempt, error)

	// Current returns a snapshot of the active (or last) attempt.
	Current() domain.PaymentAttempt

	// Subscribe registers an observer for state changes. Observers must not block.
	Subscribe(fn func(StateChange))
}

// AdminAuthService authenticates the dashboard administrator.
type AdminAuthService interface {
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}

// TokenService handles JWT token operations for admin sessions.
type TokenService interface {
	Generate(subject string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// ReportingService defines dashboard/reporting business logic.
type ReportingService interface {
	GetDashboardStats(ctx context.Context, period string) (*TransactionStats, error)
	ListTransactions(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
}
