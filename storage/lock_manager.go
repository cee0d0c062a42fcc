// Package storage provides the synchronization primitives shared by the
// vault engine: the in-process lock manager guarding the store's cache,
// and the cross-process file lock guarding the vault directory.
package storage

import "sync"

// OperationType distinguishes read operations from write operations so
// the lock manager can pick the right lock mode.
type OperationType int

const (
	// ReadOperation acquires a shared lock; reads may run concurrently.
	ReadOperation OperationType = iota
	// WriteOperation acquires an exclusive lock.
	WriteOperation
)

// LockManager centralizes the store's locking. All access to the
// in-memory entity cache funnels through Execute, which makes the store
// the single synchronization point for the three concurrent actors
// (caller, flush goroutine, reconcile loop) and rules out the
// lock/unlock/relock patterns that cause torn reads.
type LockManager struct {
	mu sync.RWMutex
}

// NewLockManager returns a ready-to-use lock manager.
func NewLockManager() *LockManager {
	return &LockManager{}
}

// Execute runs fn under the lock mode implied by opType. The lock is
// released via defer, so fn panicking cannot leak a held lock.
func (lm *LockManager) Execute(opType OperationType, fn func() error) error {
	switch opType {
	case ReadOperation:
		lm.mu.RLock()
		defer lm.mu.RUnlock()
	case WriteOperation:
		lm.mu.Lock()
		defer lm.mu.Unlock()
	}
	return fn()
}

// ExecuteWithResult is Execute for functions that also return a value.
// The caller type-asserts the result.
func (lm *LockManager) ExecuteWithResult(opType OperationType, fn func() (interface{}, error)) (interface{}, error) {
	switch opType {
	case ReadOperation:
		lm.mu.RLock()
		defer lm.mu.RUnlock()
	case WriteOperation:
		lm.mu.Lock()
		defer lm.mu.Unlock()
	}
	return fn()
}
