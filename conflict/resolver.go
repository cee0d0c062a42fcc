// Package conflict decides what happens when a document changes on disk
// outside the engine's control: reload it, or preserve both versions
// and surface a conflict.
//
// Per entity the resolver is a small state machine:
//
//	Clean -> ExternalChangeDetected -> {Reconciled | ConflictPending} -> Clean
//
// The common case is Reconciled: the file was edited while the entity
// had no unsaved local mutation, so the in-memory copy is overwritten.
// When the external change lands concurrently with an unsaved local
// mutation, nothing is auto-merged and nothing is lost: the external
// version is copied to a sibling conflict path, the local version stays
// active (and will win the document on the next flush), and a
// ConflictEvent fires exactly once for the UI to resolve.
package conflict

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taskvault/taskvault/codec"
	"github.com/taskvault/taskvault/layout"
	"github.com/taskvault/taskvault/store"
	"github.com/taskvault/taskvault/types"
	"github.com/taskvault/taskvault/watcher"
)

// DirtyChecker reports whether an entity has an unsaved local mutation.
// The scheduler implements it.
type DirtyChecker interface {
	Dirty(id string) bool
	MarkDirty(id string)
}

// Choice selects a side when resolving a pending conflict.
type Choice int

const (
	// KeepLocal keeps the in-memory version; the external version stays
	// preserved at its backup path.
	KeepLocal Choice = iota
	// TakeExternal adopts the external version; the local version is
	// written to a backup path first.
	TakeExternal
)

// pendingConflict records one unresolved divergence.
type pendingConflict struct {
	backupPath string
}

// Resolver reconciles external document changes with the store.
type Resolver struct {
	store  *store.Store
	layout *layout.Manager
	dirty  DirtyChecker
	logger *slog.Logger

	onConflict func(types.ConflictEvent)
	onNotice   func(types.Notice)
	timeFunc   func() time.Time

	mu      sync.Mutex
	pending map[string]pendingConflict
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTimeFunc overrides the clock, for deterministic tests.
func WithTimeFunc(fn func() time.Time) Option {
	return func(r *Resolver) { r.timeFunc = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver. onConflict and onNotice may be nil.
func NewResolver(s *store.Store, lm *layout.Manager, dirty DirtyChecker,
	onConflict func(types.ConflictEvent), onNotice func(types.Notice), opts ...Option) *Resolver {
	r := &Resolver{
		store:      s,
		layout:     lm,
		dirty:      dirty,
		logger:     slog.Default(),
		onConflict: onConflict,
		onNotice:   onNotice,
		timeFunc:   time.Now,
		pending:    make(map[string]pendingConflict),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.onConflict == nil {
		r.onConflict = func(types.ConflictEvent) {}
	}
	if r.onNotice == nil {
		r.onNotice = func(types.Notice) {}
	}
	return r
}

// HandleChange routes one coalesced external change. It is called from
// the engine's single reconcile loop.
func (r *Resolver) HandleChange(ev watcher.ChangeEvent) {
	switch ev.Entry.Kind {
	case types.KindTask:
		r.handleTaskChange(ev)
	case types.KindBoard:
		r.handleBoardChange(ev)
	}
}

func (r *Resolver) handleTaskChange(ev watcher.ChangeEvent) {
	id := ev.Entry.ID

	if ev.Kind == watcher.Removed {
		if r.store.DropIfClean(id, r.dirty.Dirty) {
			r.logger.Info("document removed externally", "entity", id, "path", ev.Entry.RelPath)
			return
		}
		if r.dirty.Dirty(id) {
			// The document vanished under an unsaved local edit. The
			// local state is the only surviving version; re-flushing it
			// recreates the document.
			r.logger.Warn("document removed during local edit, rewriting", "entity", id)
			r.dirty.MarkDirty(id)
		}
		return
	}

	content, err := r.layout.Read(ev.Entry.RelPath)
	if err != nil {
		r.logger.Warn("failed to read changed document", "path", ev.Entry.RelPath, "error", err)
		return
	}
	external, err := codec.DecodeTask(content)
	if err != nil {
		// Never destroy the in-memory entity over a bad file; leave the
		// document on disk for manual inspection.
		r.logger.Warn("changed document failed to decode", "path", ev.Entry.RelPath, "error", err)
		r.onNotice(types.Notice{Kind: types.NoticeDecodeError, EntityID: id, Path: ev.Entry.RelPath, Err: err})
		return
	}
	external.Lifecycle = ev.Entry.Lifecycle

	// An own write whose suppression token expired echoes back as a
	// byte-identical document; nothing to reconcile.
	if local, ok := r.store.Get(id); ok && external.UpdatedAt.Equal(local.UpdatedAt) {
		if enc, encErr := codec.EncodeTask(local); encErr == nil && bytes.Equal(enc, content) {
			return
		}
	}

	// Common case: edited while the app was idle. The dirty check and
	// the overwrite run as one store operation so no concurrent upsert
	// can land in between and be clobbered.
	loaded, err := r.store.LoadIfClean(external, r.dirty.Dirty)
	if err != nil {
		r.logger.Warn("failed to load external version", "entity", id, "error", err)
		return
	}
	if loaded {
		r.clearPending(id)
		r.logger.Info("reloaded externally changed document", "entity", id, "path", ev.Entry.RelPath)
		return
	}

	// Concurrent with an unsaved local mutation: preserve the external
	// version and keep the local one active.
	r.mu.Lock()
	_, already := r.pending[id]
	r.mu.Unlock()
	if already {
		return // one event per divergence
	}

	backup := r.layout.ConflictPath(ev.Entry.RelPath, r.timeFunc())
	if err := r.layout.WriteAtomic(backup, content); err != nil {
		r.logger.Error("failed to preserve external version", "entity", id, "error", err)
		return
	}
	r.mu.Lock()
	r.pending[id] = pendingConflict{backupPath: backup}
	r.mu.Unlock()

	local, _ := r.store.Get(id)
	r.logger.Warn("conflict detected", "entity", id, "backup", backup)
	r.onConflict(types.ConflictEvent{
		EntityID:   id,
		Local:      local,
		External:   external,
		BackupPath: backup,
	})
}

// handleBoardChange reconciles board documents. Boards carry far less
// state than tasks, so a dirty board simply wins: the external version
// is preserved at a conflict path and the local one is re-flushed.
func (r *Resolver) handleBoardChange(ev watcher.ChangeEvent) {
	id := ev.Entry.ID

	if ev.Kind == watcher.Removed {
		if r.store.DropBoardIfClean(id, r.dirty.Dirty) {
			return
		}
		if r.dirty.Dirty(id) {
			r.dirty.MarkDirty(id)
		}
		return
	}

	content, err := r.layout.Read(ev.Entry.RelPath)
	if err != nil {
		return
	}
	external, err := codec.DecodeBoard(content)
	if err != nil {
		r.onNotice(types.Notice{Kind: types.NoticeDecodeError, EntityID: id, Path: ev.Entry.RelPath, Err: err})
		return
	}

	loaded, err := r.store.LoadBoardIfClean(external, r.dirty.Dirty)
	if err != nil {
		r.logger.Warn("failed to load external board", "entity", id, "error", err)
		return
	}
	if !loaded {
		backup := r.layout.ConflictPath(ev.Entry.RelPath, r.timeFunc())
		if err := r.layout.WriteAtomic(backup, content); err == nil {
			r.logger.Warn("board conflict, keeping local version", "entity", id, "backup", backup)
		}
		r.dirty.MarkDirty(id)
	}
}

// Pending lists entity IDs with unresolved conflicts, for a UI badge.
func (r *Resolver) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	return ids
}

// BackupPath returns the preserved external version's path for a
// pending conflict.
func (r *Resolver) BackupPath(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	return p.backupPath, ok
}

// Resolve settles a pending conflict. Neither choice deletes data: the
// losing version always remains on disk at a conflict path.
func (r *Resolver) Resolve(id string, choice Choice) error {
	r.mu.Lock()
	p, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending conflict for %s", id)
	}

	switch choice {
	case KeepLocal:
		// The local version wins the document on flush; the external
		// backup stays where it is.
		r.dirty.MarkDirty(id)
		r.logger.Info("conflict resolved, kept local", "entity", id)
		return nil

	case TakeExternal:
		content, err := r.layout.Read(p.backupPath)
		if err != nil {
			return fmt.Errorf("failed to read preserved version: %w", err)
		}
		external, err := codec.DecodeTask(content)
		if err != nil {
			return fmt.Errorf("preserved version no longer decodes: %w", err)
		}

		// Preserve the losing local version before overwriting memory.
		if local, exists := r.store.Get(id); exists {
			encoded, encErr := codec.EncodeTask(local)
			if encErr == nil {
				localBackup := r.layout.ConflictPath(r.layout.TaskPath(local), r.timeFunc())
				if writeErr := r.layout.WriteAtomic(localBackup, encoded); writeErr != nil {
					return fmt.Errorf("failed to preserve local version: %w", writeErr)
				}
			}
			external.Lifecycle = local.Lifecycle
		}
		if err := r.store.Load(external); err != nil {
			return err
		}
		r.dirty.MarkDirty(id)
		r.logger.Info("conflict resolved, took external", "entity", id)
		return nil
	}
	return fmt.Errorf("unknown resolution choice %d", choice)
}

func (r *Resolver) clearPending(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}
