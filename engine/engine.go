// Package engine wires the vault together: layout, store, scheduler,
// watcher, and conflict resolver, owned by one explicitly constructed
// Engine instance. The host application's composition root creates it,
// calls LoadAll, and must Close it before exit so pending mutations are
// flushed.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taskvault/taskvault/codec"
	"github.com/taskvault/taskvault/conflict"
	"github.com/taskvault/taskvault/layout"
	"github.com/taskvault/taskvault/scheduler"
	"github.com/taskvault/taskvault/storage"
	"github.com/taskvault/taskvault/store"
	"github.com/taskvault/taskvault/types"
	"github.com/taskvault/taskvault/watcher"
)

// DefaultRetention is how long a completed task stays in the active set
// after its last modification.
const DefaultRetention = 30 * 24 * time.Hour

const eventBuffer = 64

// Engine owns one vault directory and all the components operating on
// it. It holds a cross-process flock on the vault for its lifetime.
type Engine struct {
	layoutMgr *layout.Manager
	taskStore *store.Store
	sched     *scheduler.Scheduler
	watch     *watcher.Watcher
	resolver  *conflict.Resolver

	vaultLock storage.FileLock
	logger    *slog.Logger
	retention time.Duration
	timeFunc  func() time.Time

	pathMu sync.Mutex
	paths  map[string]string // entity ID -> last written vault-relative path

	conflicts chan types.ConflictEvent
	notices   chan types.Notice

	rotateMu sync.Mutex

	reconcileWG sync.WaitGroup
	closeOnce   sync.Once
}

type options struct {
	fs          layout.FileSystem
	lockFactory storage.FileLockFactory
	logger      *slog.Logger
	timeFunc    func() time.Time
	debounce    time.Duration
	retention   time.Duration
	maxRetries  int
	backoff     time.Duration
	noWatcher   bool
}

// Option configures an Engine.
type Option func(*options)

// WithFileSystem substitutes the file system, for tests.
func WithFileSystem(fs layout.FileSystem) Option {
	return func(o *options) { o.fs = fs }
}

// WithLockFactory substitutes the vault lock factory, for tests.
func WithLockFactory(f storage.FileLockFactory) Option {
	return func(o *options) { o.lockFactory = f }
}

// WithLogger sets the structured logger used by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTimeFunc overrides the clock everywhere, for deterministic tests.
func WithTimeFunc(fn func() time.Time) Option {
	return func(o *options) { o.timeFunc = fn }
}

// WithDebounce sets the persistence debounce window.
func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// WithRetention sets the archival retention threshold.
func WithRetention(d time.Duration) Option {
	return func(o *options) { o.retention = d }
}

// WithRetryPolicy sets the flush retry count and initial backoff.
func WithRetryPolicy(maxRetries int, backoff time.Duration) Option {
	return func(o *options) { o.maxRetries = maxRetries; o.backoff = backoff }
}

// WithoutWatcher disables filesystem watching. One-shot CLI commands
// use it: they load, mutate, flush, and exit.
func WithoutWatcher() Option {
	return func(o *options) { o.noWatcher = true }
}

// Open acquires the vault and starts the engine. The returned engine is
// empty; call LoadAll to populate it from disk.
func Open(dir string, opts ...Option) (*Engine, error) {
	o := &options{
		fs:          layout.OSFileSystem{},
		lockFactory: &storage.FlockFactory{},
		logger:      slog.Default(),
		timeFunc:    time.Now,
		debounce:    scheduler.DefaultDebounce,
		retention:   DefaultRetention,
		maxRetries:  scheduler.DefaultMaxRetries,
		backoff:     scheduler.DefaultBackoff,
	}
	for _, opt := range opts {
		opt(o)
	}

	if err := o.fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}

	lm := layout.NewManager(dir, o.fs)

	// One engine per vault. External editors don't take this lock;
	// atomic writes keep the tree safe for them.
	vaultLock := o.lockFactory.New(lm.Abs(".vault.lock"))
	ctx, cancel := context.WithTimeout(context.Background(), storage.LockTimeout)
	defer cancel()
	if err := storage.Acquire(ctx, vaultLock); err != nil {
		return nil, fmt.Errorf("vault is locked by another process: %w", err)
	}

	e := &Engine{
		layoutMgr: lm,
		vaultLock: vaultLock,
		logger:    o.logger,
		retention: o.retention,
		timeFunc:  o.timeFunc,
		paths:     make(map[string]string),
		conflicts: make(chan types.ConflictEvent, eventBuffer),
		notices:   make(chan types.Notice, eventBuffer),
	}

	e.taskStore = store.New(store.WithTimeFunc(o.timeFunc))
	e.sched = scheduler.New(e.flushEntity, e.emitNotice,
		scheduler.WithDebounce(o.debounce),
		scheduler.WithRetryPolicy(o.maxRetries, o.backoff),
		scheduler.WithTimeFunc(o.timeFunc),
		scheduler.WithLogger(o.logger),
	)
	e.taskStore.SetFlusher(e.sched)
	e.resolver = conflict.NewResolver(e.taskStore, lm, e.sched,
		e.emitConflict, e.emitNotice,
		conflict.WithTimeFunc(o.timeFunc),
		conflict.WithLogger(o.logger),
	)

	if !o.noWatcher {
		w, err := watcher.New(lm, watcher.WithLogger(o.logger))
		if err != nil {
			e.sched.Close()
			_ = vaultLock.Unlock()
			return nil, err
		}
		e.watch = w
		e.reconcileWG.Add(1)
		go e.reconcileLoop()
	}

	e.logger.Info("vault opened", "dir", dir)
	return e, nil
}

// Store returns the in-memory store. All entity mutations go through
// it; collaborators never write files directly.
func (e *Engine) Store() *store.Store { return e.taskStore }

// Layout returns the file layout manager.
func (e *Engine) Layout() *layout.Manager { return e.layoutMgr }

// Conflicts returns the stream of detected conflicts.
func (e *Engine) Conflicts() <-chan types.ConflictEvent { return e.conflicts }

// Notices returns the stream of non-fatal notices (decode errors,
// degraded persistence).
func (e *Engine) Notices() <-chan types.Notice { return e.notices }

// PendingConflicts lists entity IDs awaiting conflict resolution.
func (e *Engine) PendingConflicts() []string { return e.resolver.Pending() }

// DegradedEntities lists entity IDs whose writes keep failing.
func (e *Engine) DegradedEntities() []string { return e.sched.Degraded() }

// ResolveConflict settles a pending conflict by choice.
func (e *Engine) ResolveConflict(id string, choice conflict.Choice) error {
	return e.resolver.Resolve(id, choice)
}

// Flush forces every pending mutation to disk now.
func (e *Engine) Flush(ctx context.Context) error {
	return e.sched.Flush(ctx)
}

// reconcileLoop is the single consumer of watcher events. Routing every
// external change through one goroutine keeps reconciliation ordered
// and avoids callback nesting.
func (e *Engine) reconcileLoop() {
	defer e.reconcileWG.Done()
	for ev := range e.watch.Events() {
		e.resolver.HandleChange(ev)
	}
}

// flushEntity persists the latest state of one entity. It is the
// scheduler's FlushFunc: by the time it runs, the store holds whatever
// the newest mutation produced, so superseded states are never written.
func (e *Engine) flushEntity(id string) error {
	if t, ok := e.taskStore.Get(id); ok {
		content, err := codec.EncodeTask(t)
		if err != nil {
			return err
		}
		return e.writeDocument(id, e.layoutMgr.TaskPath(t), content)
	}
	if b, ok := e.taskStore.GetBoard(id); ok {
		content, err := codec.EncodeBoard(b)
		if err != nil {
			return err
		}
		return e.writeDocument(id, e.layoutMgr.BoardPath(b), content)
	}
	// Gone from the store: the entity was deleted. Remove the backing
	// document.
	return e.removeDocument(id)
}

func (e *Engine) writeDocument(id, target string, content []byte) error {
	e.expectWrite(target)
	if err := e.layoutMgr.WriteAtomic(target, content); err != nil {
		return err
	}

	e.pathMu.Lock()
	prev, had := e.paths[id]
	e.paths[id] = target
	e.pathMu.Unlock()

	// A title edit changes the slug, which changes the path. The write
	// above created the new document; drop the old one.
	if had && prev != target {
		e.expectWrite(prev)
		if err := e.layoutMgr.Remove(prev); err != nil {
			e.logger.Warn("failed to remove superseded document", "path", prev, "error", err)
		}
	}
	return nil
}

func (e *Engine) removeDocument(id string) error {
	e.pathMu.Lock()
	rel, ok := e.paths[id]
	if ok {
		delete(e.paths, id)
	}
	e.pathMu.Unlock()
	if !ok {
		return nil // never flushed, nothing on disk
	}
	e.expectWrite(rel)
	if err := e.layoutMgr.Remove(rel); err != nil && e.layoutMgr.Exists(rel) {
		return err
	}
	return nil
}

func (e *Engine) expectWrite(rel string) {
	if e.watch != nil {
		e.watch.Expect(rel, watcher.DefaultTokenTTL)
	}
}

func (e *Engine) emitConflict(ev types.ConflictEvent) {
	select {
	case e.conflicts <- ev:
	default:
	}
}

func (e *Engine) emitNotice(n types.Notice) {
	select {
	case e.notices <- n:
	default:
	}
}

// Close drains pending flushes and tears the engine down: watcher
// first (no new external events), then flush, then the scheduler and
// store, then the vault lock. Returns the flush error, if any.
func (e *Engine) Close(ctx context.Context) error {
	var flushErr error
	e.closeOnce.Do(func() {
		if e.watch != nil {
			_ = e.watch.Close()
			e.reconcileWG.Wait()
		}
		flushErr = e.sched.Flush(ctx)
		e.sched.Close()
		_ = e.taskStore.Close()
		close(e.conflicts)
		close(e.notices)
		if err := e.vaultLock.Unlock(); err != nil {
			e.logger.Warn("failed to release vault lock", "error", err)
		}
		e.logger.Info("vault closed")
	})
	return flushErr
}
