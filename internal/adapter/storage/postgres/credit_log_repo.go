package postgres

import (
	"context"
	"errors"
	"fmt"

	"pieat-payments/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// CreditLogRepo implements ports.CreditLogRepository, the durable backup of
// the at-most-once credit guarantee.
type CreditLogRepo struct {
	pool Pool
}

// NewCreditLogRepo creates a new CreditLogRepo.
func NewCreditLogRepo(pool Pool) *CreditLogRepo {
	return &CreditLogRepo{pool: pool}
}

// Create inserts a credit marker within a database transaction. The primary
// key on attempt_id makes a double credit fail at the database level even if
// every in-process check was bypassed.
func (r *CreditLogRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.CreditLog) error {
	query := `INSERT INTO credit_log (attempt_id, transaction_id, created_at) VALUES ($1, $2, $3)`

	_, err := tx.Exec(ctx, query, log.AttemptID, log.TransactionID, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert credit log: %w", err)
	}
	return nil
}

// Get fetches a credit marker by attempt ID. Returns nil, nil when absent.
func (r *CreditLogRepo) Get(ctx context.Context, attemptID string) (*domain.CreditLog, error) {
	query := `SELECT attempt_id, transaction_id, created_at FROM credit_log WHERE attempt_id = $1`

	entry := &domain.CreditLog{}
	err := r.pool.QueryRow(ctx, query, attemptID).Scan(&entry.AttemptID, &entry.TransactionID, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get credit log: %w", err)
	}
	return entry, nil
}
