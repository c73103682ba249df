package ports

import (
	"context"

	"pieat-payments/internal/core/domain"
)

// PaymentGateway wraps the remote Pi platform API. It carries no business
// logic: every operation normalizes the remote result into a RemotePayment
// or a typed apperror. All calls may block on the network; callers bound
// them via the context.
type PaymentGateway interface {
	// CreatePayment constructs a remote payment record for the given
	// amount (micro-Pi) and memo.
	CreatePayment(ctx context.Context, amount int64, memo string) (*domain.RemotePayment, error)

	// CompletePayment drives the remote payment flow for a created payment
	// to its conclusion.
	CompletePayment(ctx context.Context, remoteID string) (*domain.RemotePayment, error)

	// CancelPayment requests cancellation. Cancelling an already-terminal
	// payment is not an error; the current remote state is returned.
	CancelPayment(ctx context.Context, remoteID string) (*domain.RemotePayment, error)

	// FetchPayment is a read-only status probe, safe to call repeatedly.
	FetchPayment(ctx context.Context, remoteID string) (*domain.RemotePayment, error)
}

// CreditGuard is the fast-path half of the at-most-once credit guarantee:
// an atomic check-and-set keyed by payment attempt ID. The durable half is
// the credit log written alongside the ledger append.
type CreditGuard interface {
	// CheckAndSet returns true if the attempt has not been credited yet and
	// marks it credited, false if the marker already existed.
	CheckAndSet(ctx context.Context, attemptID string) (bool, error)

	// Release removes the marker for an attempt whose ledger write failed,
	// so a later replay reaches the ledger again.
	Release(ctx context.Context, attemptID string) error
}
