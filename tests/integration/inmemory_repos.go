package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pieat-payments/internal/core/domain"
	"pieat-payments/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// In-memory repository implementations backing the integration stack. They
// mirror the PostgreSQL repos closely enough to exercise the full service
// and HTTP layers without a database.

type noopTx struct {
	pgx.Tx
}

func (noopTx) Commit(ctx context.Context) error   { return nil }
func (noopTx) Rollback(ctx context.Context) error { return nil }

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor { return &inMemoryTransactor{} }

func (*inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return noopTx{}, nil
}

type inMemoryWalletRepo struct {
	mu      sync.Mutex
	wallets map[domain.Currency]*domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[domain.Currency]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.wallets[w.Currency]; !ok {
		cp := *w
		r.wallets[w.Currency] = &cp
	}
	return nil
}

func (r *inMemoryWalletRepo) Get(ctx context.Context, currency domain.Currency) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[currency]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, currency domain.Currency) (*domain.Wallet, error) {
	return r.Get(ctx, currency)
}

func (r *inMemoryWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, currency domain.Currency, balance int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[currency]
	if !ok {
		return fmt.Errorf("wallet not found: %s", currency)
	}
	w.Balance = balance
	return nil
}

type inMemoryTransactionRepo struct {
	mu      sync.Mutex
	entries []domain.Transaction
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *t)
	return nil
}

func (r *inMemoryTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].ID == id {
			cp := r.entries[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTransactionRepo) GetByReference(ctx context.Context, referenceID string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].ReferenceID == referenceID {
			cp := r.entries[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var filtered []domain.Transaction
	for _, t := range r.entries {
		if params.Currency != nil && t.Currency != *params.Currency {
			continue
		}
		if params.Direction != nil && t.Direction != *params.Direction {
			continue
		}
		if params.Status != nil && t.Status != *params.Status {
			continue
		}
		if params.From != nil && t.CreatedAt.Unix() < *params.From {
			continue
		}
		if params.To != nil && t.CreatedAt.Unix() > *params.To {
			continue
		}
		filtered = append(filtered, t)
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	total := int64(len(filtered))
	page := params.Page
	if page < 1 {
		page = 1
	}
	size := params.PageSize
	if size < 1 {
		size = 20
	}
	start := (page - 1) * size
	if start >= len(filtered) {
		return nil, total, nil
	}
	end := start + size
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], total, nil
}

func (r *inMemoryTransactionRepo) GetStats(ctx context.Context, periodStart *int64) (*ports.TransactionStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &ports.TransactionStats{}
	for _, t := range r.entries {
		if periodStart != nil && t.CreatedAt.Unix() < *periodStart {
			continue
		}
		stats.TotalTransactions++
		switch t.Status {
		case domain.TransactionStatusCompleted:
			stats.Completed++
		case domain.TransactionStatusPending:
			stats.Pending++
		case domain.TransactionStatusFailed:
			stats.Failed++
		}
		if t.Status == domain.TransactionStatusCompleted {
			switch t.Direction {
			case domain.DirectionSend:
				stats.TotalSent += t.Amount
			case domain.DirectionReceive:
				stats.TotalReceived += t.Amount
			case domain.DirectionReward:
				stats.TotalRewarded += t.Amount
			}
		}
	}
	return stats, nil
}

func (r *inMemoryTransactionRepo) countByDirection(direction domain.Direction) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.entries {
		if t.Direction == direction {
			n++
		}
	}
	return n
}

type inMemoryCreditLogRepo struct {
	mu      sync.Mutex
	entries map[string]domain.CreditLog
}

func newInMemoryCreditLogRepo() *inMemoryCreditLogRepo {
	return &inMemoryCreditLogRepo{entries: make(map[string]domain.CreditLog)}
}

func (r *inMemoryCreditLogRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.CreditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[log.AttemptID]; ok {
		return fmt.Errorf("duplicate credit log for attempt %s", log.AttemptID)
	}
	r.entries[log.AttemptID] = *log
	return nil
}

func (r *inMemoryCreditLogRepo) Get(ctx context.Context, attemptID string) (*domain.CreditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[attemptID]
	if !ok {
		return nil, nil
	}
	cp := entry
	return &cp, nil
}
