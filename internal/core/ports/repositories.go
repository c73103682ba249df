package ports

import (
	"context"

	"pieat-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository defines persistence operations for per-currency wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	Get(ctx context.Context, currency domain.Currency) (*domain.Wallet, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, currency domain.Currency) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, currency domain.Currency, balance int64) error
}

// TransactionRepository defines persistence operations for ledger entries.
// The ledger is append-only: there is no update or delete.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByReference(ctx context.Context, referenceID string) (*domain.Transaction, error)
	// List returns entries most-recent-first with filtering and pagination.
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	GetStats(ctx context.Context, periodStart *int64) (*TransactionStats, error)
}

// TransactionListParams holds filter + pagination for listing ledger entries.
type TransactionListParams struct {
	Currency  *domain.Currency
	Direction *domain.Direction
	Status    *domain.TransactionStatus
	From      *int64 // Unix timestamp
	To        *int64 // Unix timestamp
	Page      int
	PageSize  int
}

// TransactionStats holds aggregated statistics for the admin dashboard.
type TransactionStats struct {
	TotalTransactions int64
	Completed         int64
	Pending           int64
	Failed            int64
	TotalSent         int64 // Sum of completed SEND amounts (micro-Pi)
	TotalReceived     int64 // Sum of completed RECEIVE amounts (micro-Pi)
	TotalRewarded     int64 // Sum of completed REWARD amounts (micro-PTM)
}

// CreditLogRepository persists attempt-credit markers (DB backup of the
// at-most-once guarantee; the Redis CreditGuard is the fast path).
type CreditLogRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.CreditLog) error
	Get(ctx context.Context, attemptID string) (*domain.CreditLog, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
