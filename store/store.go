// Package store holds the single authoritative in-memory view of all
// tasks and boards. Every collaborator queries and mutates entities
// through the store's own methods; nothing else is permitted to cache
// its own writable copy. The store is the sole synchronization point
// for the engine's three concurrent actors.
package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskvault/taskvault/internal/validation"
	"github.com/taskvault/taskvault/storage"
	"github.com/taskvault/taskvault/types"
)

// Flusher receives dirty-entity notifications. The persistence scheduler
// implements it; a nil flusher makes the store purely in-memory, which
// is what bulk load and unit tests want.
type Flusher interface {
	MarkDirty(id string)
}

const subscriberBuffer = 64

// Store is the in-memory task and board cache.
type Store struct {
	lockManager *storage.LockManager

	tasks  map[string]types.Task
	boards map[string]types.Board

	flusher  Flusher
	timeFunc func() time.Time

	subscribers []chan types.StoreEvent
	closed      bool
}

// Option configures a Store.
type Option func(*Store)

// WithTimeFunc overrides the clock, for deterministic tests.
func WithTimeFunc(fn func() time.Time) Option {
	return func(s *Store) { s.timeFunc = fn }
}

// WithFlusher sets the persistence scheduler at construction time.
func WithFlusher(f Flusher) Option {
	return func(s *Store) { s.flusher = f }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		lockManager: storage.NewLockManager(),
		tasks:       make(map[string]types.Task),
		boards:      make(map[string]types.Board),
		timeFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFlusher wires the persistence scheduler after construction. The
// engine needs this because the scheduler snapshots entities from the
// store, so the two are built in sequence.
func (s *Store) SetFlusher(f Flusher) {
	_ = s.lockManager.Execute(storage.WriteOperation, func() error {
		s.flusher = f
		return nil
	})
}

// now returns the canonical wire-precision timestamp: UTC, whole
// seconds, matching what the codec writes and re-reads.
func (s *Store) now() time.Time {
	return s.timeFunc().UTC().Truncate(time.Second)
}

// Get returns a copy of the task with the given ID.
func (s *Store) Get(id string) (types.Task, bool) {
	var t types.Task
	var ok bool
	_ = s.lockManager.Execute(storage.ReadOperation, func() error {
		var stored types.Task
		stored, ok = s.tasks[id]
		if ok {
			t = stored.Clone()
		}
		return nil
	})
	return t, ok
}

// Upsert creates or mutates a task. A task without an ID is assigned
// one. CreatedAt and Lifecycle of an existing task are preserved so the
// backing document keeps its path; UpdatedAt is always bumped. The
// entity is marked dirty for the scheduler and a Changed event is
// emitted. Returns the stored copy.
func (s *Store) Upsert(t types.Task) (types.Task, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if err := validation.ValidateTask(t); err != nil {
		return types.Task{}, err
	}

	var events []types.StoreEvent
	err := s.lockManager.Execute(storage.WriteOperation, func() error {
		if s.closed {
			return types.ErrClosed
		}
		now := s.now()
		if existing, ok := s.tasks[t.ID]; ok {
			t.CreatedAt = existing.CreatedAt
			t.Lifecycle = existing.Lifecycle
		} else {
			if t.CreatedAt.IsZero() {
				t.CreatedAt = now
			}
			if t.Lifecycle == "" {
				t.Lifecycle = types.LifecycleActive
			}
		}
		t.UpdatedAt = now
		s.tasks[t.ID] = t.Clone()

		if s.flusher != nil {
			s.flusher.MarkDirty(t.ID)
		}
		events = append(events, types.StoreEvent{Kind: types.EventChanged, Entity: types.KindTask, EntityID: t.ID})
		events = append(events, s.materializeBoards(t)...)
		return nil
	})
	if err != nil {
		return types.Task{}, err
	}
	s.emit(events...)
	return t, nil
}

// Load inserts or replaces a task without marking it dirty, emitting a
// Loaded event. Bulk load and external-change reconciliation use it;
// collaborators use Upsert.
func (s *Store) Load(t types.Task) error {
	if err := validation.ValidateTask(t); err != nil {
		return err
	}
	var events []types.StoreEvent
	err := s.lockManager.Execute(storage.WriteOperation, func() error {
		if s.closed {
			return types.ErrClosed
		}
		if t.Lifecycle == "" {
			t.Lifecycle = types.LifecycleActive
		}
		s.tasks[t.ID] = t.Clone()
		events = append(events, types.StoreEvent{Kind: types.EventLoaded, Entity: types.KindTask, EntityID: t.ID})
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(events...)
	return nil
}

// LoadIfClean replaces a task only if dirtyFn reports no unsaved local
// mutation, with the check and the replacement done under the store's
// write lock as one operation. Without that atomicity an Upsert could
// land between a caller's dirty check and its Load, and the load would
// overwrite the fresh mutation while the pending flush persists the
// loaded state instead. Returns whether the load happened.
func (s *Store) LoadIfClean(t types.Task, dirtyFn func(id string) bool) (bool, error) {
	if err := validation.ValidateTask(t); err != nil {
		return false, err
	}
	var loaded bool
	err := s.lockManager.Execute(storage.WriteOperation, func() error {
		if s.closed {
			return types.ErrClosed
		}
		if dirtyFn(t.ID) {
			return nil
		}
		if t.Lifecycle == "" {
			t.Lifecycle = types.LifecycleActive
		}
		s.tasks[t.ID] = t.Clone()
		loaded = true
		return nil
	})
	if err != nil || !loaded {
		return false, err
	}
	s.emit(types.StoreEvent{Kind: types.EventLoaded, Entity: types.KindTask, EntityID: t.ID})
	return true, nil
}

// Delete removes a task from the cache and marks it dirty so the
// scheduler removes the backing document.
func (s *Store) Delete(id string) error {
	err := s.lockManager.Execute(storage.WriteOperation, func() error {
		if s.closed {
			return types.ErrClosed
		}
		if _, ok := s.tasks[id]; !ok {
			return types.ErrNotFound
		}
		delete(s.tasks, id)
		if s.flusher != nil {
			s.flusher.MarkDirty(id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(types.StoreEvent{Kind: types.EventDeleted, Entity: types.KindTask, EntityID: id})
	return nil
}

// Drop removes a task from the cache without marking it dirty. The
// reconcile loop uses it when the backing document was removed
// externally; the document is already gone.
func (s *Store) Drop(id string) bool {
	var ok bool
	_ = s.lockManager.Execute(storage.WriteOperation, func() error {
		if _, ok = s.tasks[id]; ok {
			delete(s.tasks, id)
		}
		return nil
	})
	if ok {
		s.emit(types.StoreEvent{Kind: types.EventDeleted, Entity: types.KindTask, EntityID: id})
	}
	return ok
}

// DropIfClean removes a task only if dirtyFn reports no unsaved local
// mutation, checked under the write lock like LoadIfClean. Returns
// whether the drop happened.
func (s *Store) DropIfClean(id string, dirtyFn func(id string) bool) bool {
	var dropped bool
	_ = s.lockManager.Execute(storage.WriteOperation, func() error {
		if dirtyFn(id) {
			return nil
		}
		if _, ok := s.tasks[id]; ok {
			delete(s.tasks, id)
			dropped = true
		}
		return nil
	})
	if dropped {
		s.emit(types.StoreEvent{Kind: types.EventDeleted, Entity: types.KindTask, EntityID: id})
	}
	return dropped
}

// Query re-evaluates the filter against the live task set and returns
// matching copies. There is no cached membership list: a task mutated
// into matching a board's filter appears in the board's next query.
func (s *Store) Query(f types.Filter) []types.Task {
	var result []types.Task
	_ = s.lockManager.Execute(storage.ReadOperation, func() error {
		for _, t := range s.tasks {
			if f.Match(t) {
				result = append(result, t.Clone())
			}
		}
		return nil
	})
	return result
}

// Tasks returns a copy of every task.
func (s *Store) Tasks() []types.Task {
	return s.Query(types.Filter{})
}

// Len returns the number of tasks in the store.
func (s *Store) Len() int {
	var n int
	_ = s.lockManager.Execute(storage.ReadOperation, func() error {
		n = len(s.tasks)
		return nil
	})
	return n
}

// Subscribe returns a stream of store events. The channel is buffered;
// a slow consumer loses events rather than blocking mutations, which
// suits badge-style UI consumers.
func (s *Store) Subscribe() <-chan types.StoreEvent {
	ch := make(chan types.StoreEvent, subscriberBuffer)
	_ = s.lockManager.Execute(storage.WriteOperation, func() error {
		if s.closed {
			close(ch)
			return nil
		}
		s.subscribers = append(s.subscribers, ch)
		return nil
	})
	return ch
}

func (s *Store) emit(events ...types.StoreEvent) {
	if len(events) == 0 {
		return
	}
	_ = s.lockManager.Execute(storage.ReadOperation, func() error {
		for _, ev := range events {
			for _, ch := range s.subscribers {
				select {
				case ch <- ev:
				default: // drop for slow consumers
				}
			}
		}
		return nil
	})
}

// Close closes all subscription channels and rejects further mutations.
func (s *Store) Close() error {
	return s.lockManager.Execute(storage.WriteOperation, func() error {
		if s.closed {
			return nil
		}
		s.closed = true
		for _, ch := range s.subscribers {
			close(ch)
		}
		s.subscribers = nil
		return nil
	})
}
