package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pieat-payments/internal/core/domain"
	"pieat-payments/internal/core/ports"
	"pieat-payments/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// LedgerServiceImpl implements ports.WalletLedger with pessimistic locking.
// Entries are append-only; the per-currency wallet row carries the derived
// balance and is updated in lock-step inside the same database transaction.
type LedgerServiceImpl struct {
	txRepo        ports.TransactionRepository
	walletRepo    ports.WalletRepository
	creditLogRepo ports.CreditLogRepository
	transactor    ports.DBTransactor
	log           zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	txRepo ports.TransactionRepository,
	walletRepo ports.WalletRepository,
	creditLogRepo ports.CreditLogRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		txRepo:        txRepo,
		walletRepo:    walletRepo,
		creditLogRepo: creditLogRepo,
		transactor:    transactor,
		log:           log,
	}
}

// Record appends a ledger entry and updates the wallet balance atomically.
func (s *LedgerServiceImpl) Record(ctx context.Context, draft domain.TransactionDraft) (*domain.Transaction, error) {
	if draft.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if !draft.Currency.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown currency %q", draft.Currency))
	}
	if !draft.Direction.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown direction %q", draft.Direction))
	}

	// Referenced credits replay: if this reference already produced an entry,
	// return it instead of appending a second one.
	if draft.ReferenceID != "" {
		entry, err := s.creditLogRepo.Get(ctx, draft.ReferenceID)
		if err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("credit log check: %w", err))
		}
		if entry != nil {
			prior, err := s.txRepo.GetByID(ctx, entry.TransactionID)
			if err != nil {
				return nil, apperror.ErrDatabaseError(fmt.Errorf("load prior credit: %w", err))
			}
			if prior != nil {
				s.log.Info().
					Str("reference_id", draft.ReferenceID).
					Str("transaction_id", prior.ID.String()).
					Msg("reference already credited, replaying prior entry")
				return prior, nil
			}
		}
	}

	txn := &domain.Transaction{
		ID:          uuid.New(),
		ReferenceID: draft.ReferenceID,
		Currency:    draft.Currency,
		Direction:   draft.Direction,
		Status:      draft.Status,
		Amount:      draft.Amount,
		Description: draft.Description,
		CreatedAt:   time.Now().UTC(),
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Lock & get wallet
	wallet, err := s.walletRepo.GetForUpdate(ctx, dbTx, draft.Currency)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	// Only completed entries move balance; the invariant is that it never
	// goes negative.
	delta := txn.SignedAmount()
	newBalance := wallet.Balance + delta
	if newBalance < 0 {
		return nil, apperror.ErrInsufficientFunds()
	}

	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("append entry: %w", err))
	}

	if delta != 0 {
		if err := s.walletRepo.UpdateBalance(ctx, dbTx, draft.Currency, newBalance); err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("update balance: %w", err))
		}
	}

	// Durable at-most-once marker, committed with the entry it protects.
	if draft.ReferenceID != "" {
		creditLog := &domain.CreditLog{
			AttemptID:     draft.ReferenceID,
			TransactionID: txn.ID,
			CreatedAt:     txn.CreatedAt,
		}
		if err := s.creditLogRepo.Create(ctx, dbTx, creditLog); err != nil {
			// A concurrent credit for the same reference slipped past the
			// pre-check; the primary key on attempt_id keeps this one out.
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return nil, apperror.ErrDuplicateCredit()
			}
			return nil, apperror.ErrDatabaseError(fmt.Errorf("credit log insert: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("transaction_id", txn.ID.String()).
		Str("currency", string(txn.Currency)).
		Str("direction", string(txn.Direction)).
		Int64("amount", txn.Amount).
		Int64("balance", newBalance).
		Msg("ledger entry recorded")

	return txn, nil
}

// BalanceOf returns the current balance for a currency.
func (s *LedgerServiceImpl) BalanceOf(ctx context.Context, currency domain.Currency) (int64, error) {
	if !currency.Valid() {
		return 0, apperror.Validation(fmt.Sprintf("unknown currency %q", currency))
	}
	wallet, err := s.walletRepo.Get(ctx, currency)
	if err != nil {
		return 0, apperror.ErrDatabaseError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return 0, apperror.ErrNotFound("wallet")
	}
	return wallet.Balance, nil
}

// History returns ledger entries for a currency, most-recent-first.
func (s *LedgerServiceImpl) History(ctx context.Context, currency domain.Currency, limit int) ([]domain.Transaction, error) {
	if !currency.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown currency %q", currency))
	}
	if limit <= 0 {
		limit = 50
	}
	txns, _, err := s.txRepo.List(ctx, ports.TransactionListParams{
		Currency: &currency,
		Page:     1,
		PageSize: limit,
	})
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list entries: %w", err))
	}
	return txns, nil
}

// SendPi debits the Pi wallet for an outbound transfer.
func (s *LedgerServiceImpl) SendPi(ctx context.Context, amount int64, recipient string, memo string) (*domain.Transaction, error) {
	if recipient == "" {
		return nil, apperror.Validation("recipient must not be empty")
	}
	description := fmt.Sprintf("Sent to %s", recipient)
	if memo != "" {
		description = fmt.Sprintf("%s: %s", description, memo)
	}
	return s.Record(ctx, domain.TransactionDraft{
		Currency:    domain.CurrencyPi,
		Direction:   domain.DirectionSend,
		Status:      domain.TransactionStatusCompleted,
		Amount:      amount,
		Description: description,
	})
}

// Receive credits an inbound Pi transfer.
func (s *LedgerServiceImpl) Receive(ctx context.Context, amount int64, sender string, memo string) (*domain.Transaction, error) {
	if sender == "" {
		return nil, apperror.Validation("sender must not be empty")
	}
	description := fmt.Sprintf("Received from %s", sender)
	if memo != "" {
		description = fmt.Sprintf("%s: %s", description, memo)
	}
	return s.Record(ctx, domain.TransactionDraft{
		Currency:    domain.CurrencyPi,
		Direction:   domain.DirectionReceive,
		Status:      domain.TransactionStatusCompleted,
		Amount:      amount,
		Description: description,
	})
}

// Reward credits PTM earned through in-app activity.
func (s *LedgerServiceImpl) Reward(ctx context.Context, amount int64, description string) (*domain.Transaction, error) {
	if description == "" {
		description = "Activity reward"
	}
	return s.Record(ctx, domain.TransactionDraft{
		Currency:    domain.CurrencyPTM,
		Direction:   domain.DirectionReward,
		Status:      domain.TransactionStatusCompleted,
		Amount:      amount,
		Description: description,
	})
}
