package domain

import (
	"context"
	"time"
)

// LockManager guards the capital pool across processes. Acquire returns an
// unlock function on success, or ErrLockHeld when another holder owns it.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// OpportunityJournal records emitted opportunities for later inspection.
// Appends are best-effort; journal failures never block emission.
type OpportunityJournal interface {
	Append(ctx context.Context, opp Opportunity) error
}

// ExecutionStore persists execution records for reconciliation.
type ExecutionStore interface {
	Create(ctx context.Context, rec ExecutionRecord) error
}
