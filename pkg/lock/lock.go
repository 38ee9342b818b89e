package lock

import (
	"context"
)

// Manager hands out named locks shared by every process using the same
// backing service. Locks for the same name created by one Manager are
// re-entrant, so callers coordinate local concurrency themselves.
type Manager interface {
	// Create returns an unlocked handle for name
	Create(ctx context.Context, name string) (DistributedLock, error)
}

// DistributedLock is a handle to a single named lock
type DistributedLock interface {
	// Acquire blocks until the lock is held or ctx is done. The returned
	// channel is closed once the lock is no longer held, whether through
	// Unlock, ctx cancellation or a suspected loss in the backing service.
	Acquire(ctx context.Context) (<-chan struct{}, error)

	// Unlock releases the lock if held. Calling it again is a no-op.
	Unlock(ctx context.Context) error

	// IsLocked reports whether this handle currently holds the lock
	IsLocked() bool
}
