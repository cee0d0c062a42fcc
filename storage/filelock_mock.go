package storage

import (
	"context"
	"sync"
	"time"
)

// MockFileLock is an in-memory FileLock for unit tests.
type MockFileLock struct {
	mu       sync.Mutex
	locked   bool
	FailLock bool // make TryLockContext report not-acquired
}

func (m *MockFileLock) TryLockContext(ctx context.Context, retryInterval time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailLock {
		return false, nil
	}
	if m.locked {
		return false, nil
	}
	m.locked = true
	return true, nil
}

func (m *MockFileLock) Unlock() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = false
	return nil
}

// Locked reports whether the lock is currently held.
func (m *MockFileLock) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// MockFileLockFactory hands out MockFileLocks and remembers them by path.
type MockFileLockFactory struct {
	mu    sync.Mutex
	locks map[string]*MockFileLock
}

func NewMockFileLockFactory() *MockFileLockFactory {
	return &MockFileLockFactory{locks: make(map[string]*MockFileLock)}
}

func (f *MockFileLockFactory) New(path string) FileLock {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.locks[path]; ok {
		return l
	}
	l := &MockFileLock{}
	f.locks[path] = l
	return l
}

// Get returns the mock lock created for path, if any.
func (f *MockFileLockFactory) Get(path string) (*MockFileLock, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[path]
	return l, ok
}
