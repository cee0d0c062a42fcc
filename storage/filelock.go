package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// FileLock is the interface for cross-process locking. The engine holds
// one lock on the vault directory for its whole lifetime so two engine
// processes never flush into the same tree. External editors are not
// expected to take the lock; atomic writes keep the tree safe for them.
type FileLock interface {
	// TryLockContext attempts to acquire the lock, retrying at the given
	// interval until the context is done.
	TryLockContext(ctx context.Context, retryInterval time.Duration) (bool, error)

	// Unlock releases the lock.
	Unlock() error
}

// FileLockFactory creates FileLock instances for a path.
type FileLockFactory interface {
	New(path string) FileLock
}

// Lock acquisition policy. Acquisition is bounded so a stale lock from a
// crashed process surfaces as an error instead of a hang.
const (
	LockTimeout    = 3 * time.Second
	lockMaxRetries = 3
	lockRetryDelay = 100 * time.Millisecond
)

// Acquire takes the lock with bounded retries under a context.
func Acquire(ctx context.Context, lock FileLock) error {
	for i := 0; i < lockMaxRetries; i++ {
		locked, err := lock.TryLockContext(ctx, lockRetryDelay)
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		if locked {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	return fmt.Errorf("failed to acquire lock after %d attempts", lockMaxRetries)
}

// FlockWrapper adapts github.com/gofrs/flock to the FileLock interface.
type FlockWrapper struct {
	flock *flock.Flock
}

func (f *FlockWrapper) TryLockContext(ctx context.Context, retryInterval time.Duration) (bool, error) {
	return f.flock.TryLockContext(ctx, retryInterval)
}

func (f *FlockWrapper) Unlock() error {
	return f.flock.Unlock()
}

// FlockFactory is the default factory backed by flock.
type FlockFactory struct{}

func (f *FlockFactory) New(path string) FileLock {
	return &FlockWrapper{flock: flock.New(path)}
}
