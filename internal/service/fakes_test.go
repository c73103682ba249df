package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pieat-payments/internal/core/domain"
	"pieat-payments/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// noopTx satisfies pgx.Tx for repos that ignore the transaction handle.
type noopTx struct {
	pgx.Tx
}

func (noopTx) Commit(ctx context.Context) error   { return nil }
func (noopTx) Rollback(ctx context.Context) error { return nil }

type fakeTransactor struct{}

func (fakeTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return noopTx{}, nil
}

// memWalletRepo is an in-memory ports.WalletRepository.
type memWalletRepo struct {
	mu      sync.Mutex
	wallets map[domain.Currency]*domain.Wallet
}

func newMemWalletRepo() *memWalletRepo {
	return &memWalletRepo{wallets: make(map[domain.Currency]*domain.Wallet)}
}

func (r *memWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.wallets[w.Currency]; !ok {
		cp := *w
		r.wallets[w.Currency] = &cp
	}
	return nil
}

func (r *memWalletRepo) Get(ctx context.Context, currency domain.Currency) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[currency]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *memWalletRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, currency domain.Currency) (*domain.Wallet, error) {
	return r.Get(ctx, currency)
}

func (r *memWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, currency domain.Currency, balance int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[currency]
	if !ok {
		return fmt.Errorf("wallet not found: %s", currency)
	}
	w.Balance = balance
	return nil
}

// memTransactionRepo is an in-memory ports.TransactionRepository.
type memTransactionRepo struct {
	mu      sync.Mutex
	entries []domain.Transaction
}

func newMemTransactionRepo() *memTransactionRepo {
	return &memTransactionRepo{}
}

func (r *memTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *t)
	return nil
}

func (r *memTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
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

func (r *memTransactionRepo) GetByReference(ctx context.Context, referenceID string) (*domain.Transaction, error) {
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

func (r *memTransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
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

func (r *memTransactionRepo) GetStats(ctx context.Context, periodStart *int64) (*ports.TransactionStats, error) {
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

func (r *memTransactionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// memCreditLogRepo is an in-memory ports.CreditLogRepository.
type memCreditLogRepo struct {
	mu      sync.Mutex
	entries map[string]domain.CreditLog
}

func newMemCreditLogRepo() *memCreditLogRepo {
	return &memCreditLogRepo{entries: make(map[string]domain.CreditLog)}
}

func (r *memCreditLogRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.CreditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[log.AttemptID]; ok {
		return fmt.Errorf("duplicate credit log for attempt %s", log.AttemptID)
	}
	r.entries[log.AttemptID] = *log
	return nil
}

func (r *memCreditLogRepo) Get(ctx context.Context, attemptID string) (*domain.CreditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[attemptID]
	if !ok {
		return nil, nil
	}
	cp := entry
	return &cp, nil
}

// memCreditGuard is an in-memory ports.CreditGuard.
type memCreditGuard struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newMemCreditGuard() *memCreditGuard {
	return &memCreditGuard{seen: make(map[string]bool)}
}

func (g *memCreditGuard) CheckAndSet(ctx context.Context, attemptID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if g.seen[attemptID] {
		return false, nil
	}
	g.seen[attemptID] = true
	return true, nil
}

func (g *memCreditGuard) Release(ctx context.Context, attemptID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	delete(g.seen, attemptID)
	return nil
}

// fakeGateway is a programmable ports.PaymentGateway.
type fakeGateway struct {
	mu         sync.Mutex
	createFn   func(ctx context.Context, amount int64, memo string) (*domain.RemotePayment, error)
	completeFn func(ctx context.Context, remoteID string) (*domain.RemotePayment, error)
	cancelFn   func(ctx context.Context, remoteID string) (*domain.RemotePayment, error)
	fetchFn    func(ctx context.Context, remoteID string) (*domain.RemotePayment, error)

	createCalls int
	fetchCalls  int
}

func (g *fakeGateway) CreatePayment(ctx context.Context, amount int64, memo string) (*domain.RemotePayment, error) {
	g.mu.Lock()
	g.createCalls++
	fn := g.createFn
	g.mu.Unlock()
	if fn == nil {
		return &domain.RemotePayment{ID: "remote-" + uuid.NewString(), Status: domain.RemoteStatusPending, Amount: amount, Memo: memo}, nil
	}
	return fn(ctx, amount, memo)
}

func (g *fakeGateway) CompletePayment(ctx context.Context, remoteID string) (*domain.RemotePayment, error) {
	g.mu.Lock()
	fn := g.completeFn
	g.mu.Unlock()
	if fn == nil {
		return &domain.RemotePayment{ID: remoteID, Status: domain.RemoteStatusCompleted}, nil
	}
	return fn(ctx, remoteID)
}

func (g *fakeGateway) CancelPayment(ctx context.Context, remoteID string) (*domain.RemotePayment, error) {
	g.mu.Lock()
	fn := g.cancelFn
	g.mu.Unlock()
	if fn == nil {
		return &domain.RemotePayment{ID: remoteID, Status: domain.RemoteStatusCancelled}, nil
	}
	return fn(ctx, remoteID)
}

func (g *fakeGateway) FetchPayment(ctx context.Context, remoteID string) (*domain.RemotePayment, error) {
	g.mu.Lock()
	g.fetchCalls++
	fn := g.fetchFn
	g.mu.Unlock()
	if fn == nil {
		return &domain.RemotePayment{ID: remoteID, Status: domain.RemoteStatusPending}, nil
	}
	return fn(ctx, remoteID)
}

func (g *fakeGateway) setFetch(fn func(ctx context.Context, remoteID string) (*domain.RemotePayment, error)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchFn = fn
}

func (g *fakeGateway) fetchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetchCalls
}

// flakyLedger delegates to a real ledger but fails Record a set number of
// times, emulating a database outage during the credit.
type flakyLedger struct {
	ports.WalletLedger
	mu       sync.Mutex
	failures int
}

func (f *flakyLedger) Record(ctx context.Context, draft domain.TransactionDraft) (*domain.Transaction, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, fmt.Errorf("ledger unavailable")
	}
	f.mu.Unlock()
	return f.WalletLedger.Record(ctx, draft)
}

func (f *flakyLedger) remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures
}

// racingCreditLogRepo emulates a second writer whose pre-check ran before the
// first writer committed: Get reports the reference as uncredited while the
// insert collides with the primary key.
type racingCreditLogRepo struct {
	inner   *memCreditLogRepo
	mu      sync.Mutex
	raceGet bool
}

func newRacingCreditLogRepo() *racingCreditLogRepo {
	return &racingCreditLogRepo{inner: newMemCreditLogRepo()}
}

func (r *racingCreditLogRepo) setRaceGet(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.raceGet = v
}

func (r *racingCreditLogRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.CreditLog) error {
	if err := r.inner.Create(ctx, tx, log); err != nil {
		return &pgconn.PgError{Code: "23505", ConstraintName: "credit_log_pkey"}
	}
	return nil
}

func (r *racingCreditLogRepo) Get(ctx context.Context, attemptID string) (*domain.CreditLog, error) {
	r.mu.Lock()
	race := r.raceGet
	r.mu.Unlock()
	if race {
		return nil, nil
	}
	return r.inner.Get(ctx, attemptID)
}
