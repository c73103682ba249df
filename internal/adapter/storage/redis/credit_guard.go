package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Credit markers outlive any plausible reconciliation window but are not
// kept forever; the credit_log table is the durable record.
const creditGuardTTL = 7 * 24 * time.Hour

// CreditGuard implements ports.CreditGuard using Redis SETNX. It is the
// fast-path half of the at-most-once ledger credit per payment attempt.
type CreditGuard struct {
	client *goredis.Client
	prefix string
}

// NewCreditGuard creates a new Redis-backed credit guard.
func NewCreditGuard(client *goredis.Client) *CreditGuard {
	return &CreditGuard{
		client: client,
		prefix: "credited:",
	}
}

// CheckAndSet atomically marks an attempt as credited.
// Returns true if the marker is new, false if the attempt was already credited.
func (g *CreditGuard) CheckAndSet(ctx context.Context, attemptID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+attemptID, 1, creditGuardTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis credit guard setnx: %w", err)
	}
	return ok, nil
}

// Release drops the marker for an attempt whose ledger write failed, making
// the attempt creditable again.
func (g *CreditGuard) Release(ctx context.Context, attemptID string) error {
	if err := g.client.Del(ctx, g.prefix+attemptID).Err(); err != nil {
		return fmt.Errorf("redis credit guard del: %w", err)
	}
	return nil
}
