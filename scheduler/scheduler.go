// Package scheduler batches and debounces entity writes so a burst of
// edits produces a bounded number of disk writes.
//
// The scheduler knows nothing about documents or paths. It tracks which
// entity IDs are dirty and when their debounce windows expire, then
// hands each due ID to a FlushFunc supplied by the engine, which
// snapshots the latest state and writes it. Because the snapshot happens
// at flush time, a newer mutation supersedes a pending one: the older
// state is simply never written.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/taskvault/taskvault/types"
)

// FlushFunc persists the latest state of one entity. It is called off
// the caller's thread, possibly concurrently with new MarkDirty calls
// for other entities, never concurrently for the same entity.
type FlushFunc func(id string) error

// NotifyFunc receives degraded/recovered notices for the UI layer.
type NotifyFunc func(types.Notice)

// Defaults for the debounce and retry policy.
const (
	DefaultDebounce   = 300 * time.Millisecond
	DefaultMaxRetries = 3
	DefaultBackoff    = 50 * time.Millisecond
)

// Scheduler tracks dirty entities and flushes them after a debounce
// window. In-memory state is never discarded because a write failed:
// after bounded retries the entity is marked degraded and surfaced.
type Scheduler struct {
	flush      FlushFunc
	notify     NotifyFunc
	debounce   time.Duration
	maxRetries int
	backoff    time.Duration
	timeFunc   func() time.Time
	logger     *slog.Logger

	mu       sync.Mutex
	pending  map[string]time.Time // id -> flush deadline
	order    []string             // ids in MarkDirty order
	inflight map[string]bool
	degraded map[string]error

	flushMu sync.Mutex // serializes flush batches

	wake   chan struct{}
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(s *Scheduler) { s.debounce = d }
}

// WithRetryPolicy sets the bounded retry count and initial backoff.
// Backoff doubles per attempt.
func WithRetryPolicy(maxRetries int, backoff time.Duration) Option {
	return func(s *Scheduler) { s.maxRetries = maxRetries; s.backoff = backoff }
}

// WithTimeFunc overrides the clock, for deterministic tests.
func WithTimeFunc(fn func() time.Time) Option {
	return func(s *Scheduler) { s.timeFunc = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a scheduler and starts its background flush goroutine.
func New(flush FlushFunc, notify NotifyFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		flush:      flush,
		notify:     notify,
		debounce:   DefaultDebounce,
		maxRetries: DefaultMaxRetries,
		backoff:    DefaultBackoff,
		timeFunc:   time.Now,
		logger:     slog.Default(),
		pending:    make(map[string]time.Time),
		inflight:   make(map[string]bool),
		degraded:   make(map[string]error),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notify == nil {
		s.notify = func(types.Notice) {}
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

// MarkDirty schedules the entity for flushing. The first call after an
// idle period arms the debounce window; further calls for the same
// entity within the window do not extend it.
func (s *Scheduler) MarkDirty(id string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, ok := s.pending[id]; !ok {
		s.pending[id] = s.timeFunc().Add(s.debounce)
		s.order = append(s.order, id)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Dirty reports whether the entity has an unsaved local mutation: a
// pending flush, a flush in progress, or a degraded (unflushable)
// state. The conflict resolver uses this to decide reload vs conflict.
func (s *Scheduler) Dirty(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; ok {
		return true
	}
	if s.inflight[id] {
		return true
	}
	_, deg := s.degraded[id]
	return deg
}

// Degraded returns the IDs whose writes kept failing, for a UI badge.
func (s *Scheduler) Degraded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.degraded))
	for id := range s.degraded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Flush writes every pending entity now, blocking until done. The host
// must call it (via engine Close) before process exit so no queued
// mutation is lost on normal termination.
func (s *Scheduler) Flush(ctx context.Context) error {
	ids := s.takeDue(time.Time{}) // zero time: take everything
	return s.flushBatch(ctx, ids)
}

// Close stops the background goroutine. Pending work is not flushed;
// call Flush first.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
	s.wg.Wait()
}

// loop waits for the earliest deadline and flushes everything due,
// batching entities whose windows overlap into one pass.
func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.mu.Lock()
		var earliest time.Time
		for _, dl := range s.pending {
			if earliest.IsZero() || dl.Before(earliest) {
				earliest = dl
			}
		}
		s.mu.Unlock()

		if earliest.IsZero() {
			select {
			case <-s.done:
				return
			case <-s.wake:
				continue
			}
		}

		// Deadlines come from timeFunc, so the wait must too. Mixing in
		// the wall clock would spin whenever an injected clock lags it.
		wait := earliest.Sub(s.timeFunc())
		if wait > 0 {
			select {
			case <-s.done:
				return
			case <-s.wake:
				continue
			case <-time.After(wait):
			}
		}

		ids := s.takeDue(s.timeFunc())
		if len(ids) > 0 {
			_ = s.flushBatch(context.Background(), ids)
		}
	}
}

// takeDue removes and returns the IDs whose deadline has passed, in
// MarkDirty order. A zero cutoff takes everything.
func (s *Scheduler) takeDue(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []string
	var keep []string
	for _, id := range s.order {
		dl, ok := s.pending[id]
		if !ok {
			continue
		}
		if cutoff.IsZero() || !dl.After(cutoff) {
			due = append(due, id)
			delete(s.pending, id)
			s.inflight[id] = true
		} else {
			keep = append(keep, id)
		}
	}
	s.order = keep
	return due
}

// flushBatch flushes each ID with bounded retries and backoff. Failed
// entities become degraded and are surfaced, never dropped.
func (s *Scheduler) flushBatch(ctx context.Context, ids []string) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	var firstErr error
	for _, id := range ids {
		err := s.flushWithRetry(ctx, id)

		s.mu.Lock()
		delete(s.inflight, id)
		_, wasDegraded := s.degraded[id]
		if err != nil {
			s.degraded[id] = err
		} else {
			delete(s.degraded, id)
		}
		s.mu.Unlock()

		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.logger.Error("persistence degraded", "entity", id, "error", err)
			s.notify(types.Notice{Kind: types.NoticeDegraded, EntityID: id, Err: err})
		} else if wasDegraded {
			s.logger.Info("persistence recovered", "entity", id)
			s.notify(types.Notice{Kind: types.NoticeRecovered, EntityID: id})
		}
	}
	return firstErr
}

func (s *Scheduler) flushWithRetry(ctx context.Context, id string) error {
	backoff := s.backoff
	var err error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err = s.flush(id); err == nil {
			return nil
		}
		if attempt == s.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("flush interrupted: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("flush failed after %d attempts: %w", s.maxRetries, err)
}
