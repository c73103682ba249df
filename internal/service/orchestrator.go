package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pieat-payments/config"
	"pieat-payments/internal/core/domain"
	"pieat-payments/internal/core/ports"
	"pieat-payments/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// cancelWait bounds the synchronous gateway cancel call; after it the local
// state is forced to CANCELLED and reconciliation takes over.
const cancelWait = 5 * time.Second

// reconcileDelay is how long after a forced local cancel the gateway is
// probed for a completion that raced with the cancel.
const reconcileDelay = 2 * time.Second

// OrchestratorImpl implements ports.PaymentOrchestrator. It owns the single
// in-flight payment attempt; every transition happens under mu, remote calls
// happen outside it and are re-validated against the attempt ID afterwards,
// so a stale response can never move a newer attempt.
type OrchestratorImpl struct {
	gateway ports.PaymentGateway
	ledger  ports.WalletLedger
	guard   ports.CreditGuard
	cfg     config.PollerConfig
	log     zerolog.Logger

	mu         sync.Mutex
	attempt    *domain.PaymentAttempt
	lastIntent *domain.PaymentIntent
	observers  []func(ports.StateChange)
	cancelPoll context.CancelFunc

	reconcileDelay time.Duration

	wg sync.WaitGroup
}

// NewOrchestrator creates a new payment orchestrator.
func NewOrchestrator(
	gateway ports.PaymentGateway,
	ledger ports.WalletLedger,
	guard ports.CreditGuard,
	cfg config.PollerConfig,
	log zerolog.Logger,
) *OrchestratorImpl {
	return &OrchestratorImpl{
		gateway:        gateway,
		ledger:         ledger,
		guard:          guard,
		cfg:            cfg,
		log:            log,
		reconcileDelay: reconcileDelay,
	}
}

// Pay starts a new payment attempt for the given intent.
func (o *OrchestratorImpl) Pay(ctx context.Context, intent domain.PaymentIntent) (domain.PaymentAttempt, error) {
	if err := intent.Validate(); err != nil {
		return domain.PaymentAttempt{}, apperror.Validation(err.Error())
	}

	// The debit happens on success; checking up-front keeps obviously
	// unpayable intents from ever reaching the gateway.
	balance, err := o.ledger.BalanceOf(ctx, domain.CurrencyPi)
	if err != nil {
		return domain.PaymentAttempt{}, err
	}
	if balance < intent.Amount {
		return domain.PaymentAttempt{}, apperror.ErrInsufficientFunds()
	}

	o.mu.Lock()
	if o.attempt != nil && !o.attempt.Terminal() {
		o.mu.Unlock()
		return domain.PaymentAttempt{}, apperror.ErrPaymentInProgress()
	}
	attempt := domain.NewPaymentAttempt(intent)
	o.attempt = attempt
	o.lastIntent = &intent
	snapshot := *attempt
	o.mu.Unlock()
	o.notify(ports.StateChange{Attempt: snapshot})

	o.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Int64("amount", intent.Amount).
		Str("memo", intent.Memo).
		Msg("payment attempt started")

	remote, err := o.gateway.CreatePayment(ctx, intent.Amount, intent.Memo)
	if err != nil {
		snapshot := o.failAttempt(attempt.ID, reasonForGatewayError(err, domain.FailureGateway))
		return snapshot, err
	}

	o.mu.Lock()
	if o.attempt == nil || o.attempt.ID != attempt.ID {
		// A newer attempt took over while we were on the wire.
		o.mu.Unlock()
		return o.Current(), nil
	}
	o.attempt.RemoteID = remote.ID
	o.attempt.RemoteStatus = remote.Status
	o.attempt.State = domain.AttemptStateAwaitingCompletion
	snapshot = *o.attempt
	o.mu.Unlock()
	o.notify(ports.StateChange{Attempt: snapshot})

	return o.complete(ctx, attempt.ID, remote.ID)
}

// complete drives the server-side completion call and the transitions that
// follow from its outcome.
func (o *OrchestratorImpl) complete(ctx context.Context, attemptID uuid.UUID, remoteID string) (domain.PaymentAttempt, error) {
	remote, err := o.gateway.CompletePayment(ctx, remoteID)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Code == "PI_003" {
			// The completion may have landed on the platform side even though
			// our request timed out; polling resolves the ambiguity.
			o.startPolling(attemptID)
			return o.Current(), nil
		}
		snapshot := o.failAttempt(attemptID, reasonForGatewayError(err, domain.FailureGateway))
		return snapshot, err
	}

	switch remote.Status {
	case domain.RemoteStatusCompleted:
		o.applyRemote(ctx, attemptID, remote)
		return o.Current(), nil
	case domain.RemoteStatusCancelled:
		o.applyRemote(ctx, attemptID, remote)
		return o.Current(), nil
	default:
		o.startPolling(attemptID)
		return o.Current(), nil
	}
}

// Cancel requests cancellation of the active attempt. Called on a terminal
// attempt it is a no-op and reports the current state.
func (o *OrchestratorImpl) Cancel(ctx context.Context) (domain.PaymentAttempt, error) {
	o.mu.Lock()
	a := o.attempt
	if a == nil {
		o.mu.Unlock()
		return domain.PaymentAttempt{}, apperror.ErrNoActivePayment()
	}
	if a.Terminal() {
		snapshot := *a
		o.mu.Unlock()
		return snapshot, nil
	}
	attemptID := a.ID
	remoteID := a.RemoteID
	o.stopPollingLocked()
	o.mu.Unlock()

	// confirmed means the platform itself reported the payment as cancelled.
	// Anything else (cancel errored, or the cancel was accepted but the
	// payment is still pending) leaves a completion race open.
	confirmed := false
	if remoteID != "" {
		cctx, cancel := context.WithTimeout(ctx, cancelWait)
		defer cancel()

		remote, err := o.gateway.CancelPayment(cctx, remoteID)
		switch {
		case err != nil:
			o.log.Warn().Err(err).
				Str("attempt_id", attemptID.String()).
				Msg("gateway cancel failed")
		case remote.Status == domain.RemoteStatusCompleted:
			// The payment completed before the cancel reached it.
			o.applyRemote(ctx, attemptID, remote)
			return o.Current(), nil
		default:
			confirmed = remote.Status == domain.RemoteStatusCancelled
		}
	}

	o.mu.Lock()
	if o.attempt != nil && o.attempt.ID == attemptID && !o.attempt.Terminal() {
		o.attempt.State = domain.AttemptStateCancelled
		o.attempt.RemoteStatus = domain.RemoteStatusCancelled
	}
	snapshot := domain.PaymentAttempt{}
	if o.attempt != nil {
		snapshot = *o.attempt
	}
	o.mu.Unlock()
	o.notify(ports.StateChange{Attempt: snapshot})

	if remoteID != "" && !confirmed {
		// The remote outcome is unknown; probe it once after a short delay so
		// a completion that raced the cancel still credits exactly once.
		o.log.Warn().
			Str("attempt_id", attemptID.String()).
			Msg("cancel unconfirmed by gateway, scheduling reconciliation")
		o.scheduleReconcile(attemptID, remoteID)
	}

	return snapshot, nil
}

// RefreshStatus probes the gateway for the active attempt's remote state.
func (o *OrchestratorImpl) RefreshStatus(ctx context.Context) (*domain.RemotePayment, error) {
	o.mu.Lock()
	a := o.attempt
	if a == nil {
		o.mu.Unlock()
		return nil, apperror.ErrNoActivePayment()
	}
	attemptID := a.ID
	remoteID := a.RemoteID
	local := &domain.RemotePayment{
		ID:     a.RemoteID,
		Status: a.RemoteStatus,
		Amount: a.Intent.Amount,
		Memo:   a.Intent.Memo,
	}
	pollable := a.State.Pollable()
	// A failed credit for a confirmed completion is replayed on refresh; the
	// guard and credit_log keep the replay idempotent.
	replayable := a.State == domain.AttemptStateFailed && a.Reason == domain.FailureLedger
	o.mu.Unlock()

	// Terminal or not yet created remotely: nothing to fetch.
	if (!pollable && !replayable) || remoteID == "" {
		return local, nil
	}

	remote, err := o.gateway.FetchPayment(ctx, remoteID)
	if err != nil {
		return nil, err
	}
	o.applyRemote(ctx, attemptID, remote)
	return remote, nil
}

// Retry allocates a fresh attempt from the last intent.
func (o *OrchestratorImpl) Retry(ctx context.Context) (domain.PaymentAttempt, error) {
	o.mu.Lock()
	if o.attempt == nil || o.lastIntent == nil {
		o.mu.Unlock()
		return domain.PaymentAttempt{}, apperror.ErrNoActivePayment()
	}
	if !o.attempt.Terminal() {
		o.mu.Unlock()
		return domain.PaymentAttempt{}, apperror.ErrRetryNotAllowed()
	}
	intent := *o.lastIntent
	o.mu.Unlock()

	return o.Pay(ctx, intent)
}

// Current returns a snapshot of the active (or last) attempt.
func (o *OrchestratorImpl) Current() domain.PaymentAttempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempt == nil {
		return domain.PaymentAttempt{State: domain.AttemptStateIdle}
	}
	return *o.attempt
}

// Subscribe registers an observer for state changes.
func (o *OrchestratorImpl) Subscribe(fn func(ports.StateChange)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, fn)
}

// Shutdown stops the poller and waits for background work to finish.
func (o *OrchestratorImpl) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.stopPollingLocked()
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// applyRemote folds a gateway payment record into the attempt it belongs to.
// Stale responses (attempt replaced or nil) are dropped.
func (o *OrchestratorImpl) applyRemote(ctx context.Context, attemptID uuid.UUID, remote *domain.RemotePayment) {
	o.mu.Lock()
	a := o.attempt
	if a == nil || a.ID != attemptID {
		o.mu.Unlock()
		return
	}
	a.RemoteStatus = remote.Status
	a.LastPolledAt = time.Now().UTC()

	var change *ports.StateChange

	switch remote.Status {
	case domain.RemoteStatusCompleted:
		// A remote COMPLETED wins over any local terminal state. The money
		// moved on the platform, so the ledger must reflect it exactly once.
		reconciliation := a.Terminal() && a.State != domain.AttemptStateSucceeded
		if a.State != domain.AttemptStateSucceeded {
			if err := o.credit(ctx, a); err != nil {
				o.log.Error().Err(err).
					Str("attempt_id", a.ID.String()).
					Msg("ledger credit failed for completed payment")
				// One automatic replay; after that the attempt stays
				// FAILED(LEDGER_ERROR) and refresh carries the retries.
				retryCredit := a.Reason != domain.FailureLedger && a.RemoteID != ""
				a.State = domain.AttemptStateFailed
				a.Reason = domain.FailureLedger
				if retryCredit {
					o.scheduleReconcile(a.ID, a.RemoteID)
				}
			} else {
				a.State = domain.AttemptStateSucceeded
				a.Reason = domain.FailureNone
				a.Credited = true
				a.Reconciled = reconciliation
			}
			o.stopPollingLocked()
			change = &ports.StateChange{Attempt: *a, Reconciliation: reconciliation}
		}
	case domain.RemoteStatusCancelled:
		if !a.Terminal() {
			a.State = domain.AttemptStateCancelled
			o.stopPollingLocked()
			change = &ports.StateChange{Attempt: *a}
		}
	default:
		// Still pending. AwaitingCompletion stays as is; the poller owns the
		// POLLING state.
	}
	o.mu.Unlock()

	if change != nil {
		o.notify(*change)
		o.log.Info().
			Str("attempt_id", attemptID.String()).
			Str("state", string(change.Attempt.State)).
			Bool("reconciliation", change.Reconciliation).
			Msg("payment attempt transitioned")
	}
}

// credit debits the Pi wallet for the attempt, at most once. Called with mu
// held; the single-attempt lock is the primary guarantee, the Redis guard
// the fast path and the credit_log table the durable backstop.
func (o *OrchestratorImpl) credit(ctx context.Context, a *domain.PaymentAttempt) error {
	if a.Credited {
		return nil
	}

	ok, guardErr := o.guard.CheckAndSet(ctx, a.ID.String())
	if guardErr != nil {
		// Redis being down must not lose the credit; the ledger replays
		// duplicates via credit_log.
		o.log.Warn().Err(guardErr).Msg("credit guard unavailable, relying on ledger replay")
	} else if !ok {
		return nil
	}

	_, err := o.ledger.Record(ctx, domain.TransactionDraft{
		ReferenceID: a.ID.String(),
		Currency:    domain.CurrencyPi,
		Direction:   domain.DirectionSend,
		Status:      domain.TransactionStatusCompleted,
		Amount:      a.Intent.Amount,
		Description: fmt.Sprintf("Payment: %s", a.Intent.Memo),
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Code == "PAY_006" {
			// Another writer recorded this credit first.
			return nil
		}
		if guardErr == nil {
			// The entry never landed; drop the fast-path marker so a replay
			// is not turned away before it reaches the ledger.
			if relErr := o.guard.Release(ctx, a.ID.String()); relErr != nil {
				o.log.Warn().Err(relErr).
					Str("attempt_id", a.ID.String()).
					Msg("credit guard release failed")
			}
		}
		return err
	}
	return nil
}

// failAttempt moves the attempt to FAILED with the given reason, if it is
// still the active one.
func (o *OrchestratorImpl) failAttempt(attemptID uuid.UUID, reason domain.FailureReason) domain.PaymentAttempt {
	o.mu.Lock()
	a := o.attempt
	if a == nil || a.ID != attemptID || a.Terminal() {
		var snapshot domain.PaymentAttempt
		if a != nil {
			snapshot = *a
		}
		o.mu.Unlock()
		return snapshot
	}
	a.State = domain.AttemptStateFailed
	a.Reason = reason
	o.stopPollingLocked()
	snapshot := *a
	o.mu.Unlock()

	o.notify(ports.StateChange{Attempt: snapshot})
	o.log.Warn().
		Str("attempt_id", attemptID.String()).
		Str("reason", string(reason)).
		Msg("payment attempt failed")
	return snapshot
}

// scheduleReconcile probes the gateway once after a delay, crediting a
// completion that raced a local cancel or failure.
func (o *OrchestratorImpl) scheduleReconcile(attemptID uuid.UUID, remoteID string) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		time.Sleep(o.reconcileDelay)

		ctx, cancel := context.WithTimeout(context.Background(), cancelWait)
		defer cancel()

		remote, err := o.gateway.FetchPayment(ctx, remoteID)
		if err != nil {
			o.log.Warn().Err(err).
				Str("attempt_id", attemptID.String()).
				Msg("reconciliation fetch failed")
			return
		}
		o.applyRemote(ctx, attemptID, remote)
	}()
}

func (o *OrchestratorImpl) notify(change ports.StateChange) {
	o.mu.Lock()
	observers := make([]func(ports.StateChange), len(o.observers))
	copy(observers, o.observers)
	o.mu.Unlock()

	for _, fn := range observers {
		fn(change)
	}
}

// reasonForGatewayError maps gateway error codes onto failure reasons.
func reasonForGatewayError(err error, fallback domain.FailureReason) domain.FailureReason {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return fallback
	}
	switch appErr.Code {
	case "PI_002":
		return domain.FailureRejected
	case "PI_003":
		return domain.FailureTimeout
	default:
		return fallback
	}
}
