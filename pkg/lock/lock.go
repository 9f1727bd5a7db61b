package lock

import (
	"context"
	"time"
)

// Locker is an advisory lock used to keep cleanup ticks from
// overlapping across processes.
type Locker interface {
	// Acquire attempts to take the lock; false means someone else
	// holds it. The lock expires after ttl even if never released.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// NoopLocker always grants the lock. Used when no Redis is configured
// and only one worker instance runs.
type NoopLocker struct{}

func (NoopLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (NoopLocker) Release(ctx context.Context, key string) error { return nil }
