package service

import (
	"context"
	"time"

	"pieat-payments/internal/core/domain"
	"pieat-payments/internal/core/ports"
	"pieat-payments/pkg/apperror"

	"github.com/google/uuid"
)

// startPolling moves the attempt into POLLING and spawns the poll loop.
// The loop owns its own context; stopPollingLocked cancels it.
func (o *OrchestratorImpl) startPolling(attemptID uuid.UUID) {
	o.mu.Lock()
	a := o.attempt
	if a == nil || a.ID != attemptID || a.Terminal() {
		o.mu.Unlock()
		return
	}
	o.stopPollingLocked()

	a.State = domain.AttemptStatePolling
	snapshot := *a
	remoteID := a.RemoteID

	ctx, cancel := context.WithCancel(context.Background())
	o.cancelPoll = cancel
	o.mu.Unlock()

	o.notify(ports.StateChange{Attempt: snapshot})
	o.log.Info().
		Str("attempt_id", attemptID.String()).
		Dur("interval", o.cfg.Interval).
		Dur("max_window", o.cfg.MaxWindow).
		Msg("polling payment status")

	o.wg.Add(1)
	go o.pollLoop(ctx, attemptID, remoteID)
}

// stopPollingLocked cancels the active poll loop. Must be called with mu held.
func (o *OrchestratorImpl) stopPollingLocked() {
	if o.cancelPoll != nil {
		o.cancelPoll()
		o.cancelPoll = nil
	}
}

// pollLoop fetches the remote payment at a fixed cadence until the attempt
// reaches a terminal state, the window closes, or fetches keep failing.
func (o *OrchestratorImpl) pollLoop(ctx context.Context, attemptID uuid.UUID, remoteID string) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	deadline := time.NewTimer(o.cfg.MaxWindow)
	defer deadline.Stop()

	fetchErrors := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			o.failAttempt(attemptID, domain.FailureTimeout)
			return
		case <-ticker.C:
			fctx, cancel := context.WithTimeout(ctx, o.cfg.Interval)
			remote, err := o.gateway.FetchPayment(fctx, remoteID)
			cancel()

			if err != nil {
				if ctx.Err() != nil {
					return
				}
				fetchErrors++
				o.log.Warn().Err(err).
					Str("attempt_id", attemptID.String()).
					Int("consecutive_errors", fetchErrors).
					Msg("payment status fetch failed")
				if fetchErrors >= o.cfg.MaxFetchErrors {
					o.log.Error().Err(apperror.ErrPollingExhausted()).
						Str("attempt_id", attemptID.String()).
						Int("fetch_errors", fetchErrors).
						Msg("giving up on payment status polling")
					o.failAttempt(attemptID, domain.FailurePollingExhausted)
					return
				}
				continue
			}
			fetchErrors = 0

			o.applyRemote(ctx, attemptID, remote)

			o.mu.Lock()
			done := o.attempt == nil || o.attempt.ID != attemptID || o.attempt.Terminal()
			o.mu.Unlock()
			if done {
				return
			}
		}
	}
}
