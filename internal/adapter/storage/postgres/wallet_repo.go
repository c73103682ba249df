package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pieat-payments/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository. One row per currency.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Create inserts a new wallet row. No-op if the currency already exists.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	query := `INSERT INTO wallets (currency, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4) ON CONFLICT (currency) DO NOTHING`

	_, err := r.pool.Exec(ctx, query, w.Currency, w.Balance, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// Get fetches a wallet by currency (non-locking read).
func (r *WalletRepo) Get(ctx context.Context, currency domain.Currency) (*domain.Wallet, error) {
	query := `SELECT currency, balance, created_at, updated_at FROM wallets WHERE currency = $1`

	w := &domain.Wallet{}
	err := r.pool.QueryRow(ctx, query, currency).Scan(&w.Currency, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// GetForUpdate fetches a wallet with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, currency domain.Currency) (*domain.Wallet, error) {
	query := `SELECT currency, balance, created_at, updated_at FROM wallets WHERE currency = $1 FOR UPDATE`

	w := &domain.Wallet{}
	err := tx.QueryRow(ctx, query, currency).Scan(&w.Currency, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet for update: %w", err)
	}
	return w, nil
}

// UpdateBalance updates a wallet's balance within a transaction.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, currency domain.Currency, balance int64) error {
	query := `UPDATE wallets SET balance = $1, updated_at = $2 WHERE currency = $3`

	tag, err := tx.Exec(ctx, query, balance, time.Now().UTC(), currency)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", currency)
	}
	return nil
}
