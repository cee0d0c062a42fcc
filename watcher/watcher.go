// Package watcher observes the vault directory tree and raises change
// events for documents modified outside the engine's control.
//
// The engine's own flushes must not come back as external edits: before
// every write the scheduler registers an expected-write token for the
// target path, and any filesystem event matching a live token is
// dropped. Events for paths outside the layout naming scheme are
// ignored, and rapid repeated events on one path are coalesced into a
// single logical change.
package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/taskvault/taskvault/layout"
)

// ChangeKind classifies a coalesced external change.
type ChangeKind int

const (
	Created ChangeKind = iota
	Modified
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// ChangeEvent is one logical external change to a recognized document.
type ChangeEvent struct {
	Entry layout.Entry
	Kind  ChangeKind
}

// Defaults for the settle window (coalescing) and token validity.
const (
	DefaultSettle   = 250 * time.Millisecond
	DefaultTokenTTL = 2 * time.Second
)

const eventBuffer = 64

// Watcher consumes raw fsnotify events and emits coalesced, suppressed,
// recognized ChangeEvents on a single channel, for consumption by one
// reconciliation loop.
type Watcher struct {
	layout *layout.Manager
	fsw    *fsnotify.Watcher
	settle time.Duration
	logger *slog.Logger

	events chan ChangeEvent

	tokenMu sync.Mutex
	tokens  map[string]time.Time // rel path -> expiry

	pendMu  sync.Mutex
	pending map[string]*pendingChange

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type pendingChange struct {
	entry    layout.Entry
	kind     ChangeKind
	deadline time.Time
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettle sets the coalescing window.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New starts watching the vault tree managed by lm.
func New(lm *layout.Manager, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		layout:  lm,
		fsw:     fsw,
		settle:  DefaultSettle,
		logger:  slog.Default(),
		events:  make(chan ChangeEvent, eventBuffer),
		tokens:  make(map[string]time.Time),
		pending: make(map[string]*pendingChange),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.addDirs(lm.Root()); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("add directories to watcher: %w", err)
	}

	w.wg.Add(2)
	go w.watchLoop()
	go w.settleLoop()
	return w, nil
}

// Events returns the stream of coalesced external changes. The channel
// is closed by Close.
func (w *Watcher) Events() <-chan ChangeEvent {
	return w.events
}

// Expect registers an expected-write token: events for the given
// vault-relative path are suppressed until the window expires. The
// scheduler calls this right before each of its own writes, removals,
// and renames.
func (w *Watcher) Expect(rel string, window time.Duration) {
	if window <= 0 {
		window = DefaultTokenTTL
	}
	w.tokenMu.Lock()
	w.tokens[rel] = time.Now().Add(window)
	w.tokenMu.Unlock()
}

func (w *Watcher) suppressed(rel string) bool {
	now := time.Now()
	w.tokenMu.Lock()
	defer w.tokenMu.Unlock()
	expiry, ok := w.tokens[rel]
	if !ok {
		return false
	}
	if now.After(expiry) {
		delete(w.tokens, rel)
		return false
	}
	return true
}

// addDirs recursively registers root and its subdirectories, skipping
// hidden directories.
func (w *Watcher) addDirs(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// New directories (month buckets appear as the dataset grows) must
	// be added to the watch set.
	if event.Op&fsnotify.Create != 0 {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			if !strings.HasPrefix(filepath.Base(event.Name), ".") {
				_ = w.addDirs(event.Name)
			}
			return
		}
	}

	rel, err := w.layout.Rel(event.Name)
	if err != nil {
		return
	}
	entry, ok := w.layout.Recognize(rel)
	if !ok {
		return // temp files, conflict backups, foreign files
	}
	if w.suppressed(rel) {
		w.logger.Debug("suppressed own write", "path", rel)
		return
	}

	var kind ChangeKind
	switch {
	case event.Op&fsnotify.Create != 0:
		kind = Created
	case event.Op&fsnotify.Write != 0:
		kind = Modified
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		kind = Removed
	default:
		return // chmod and friends
	}
	w.coalesce(entry, kind)
}

// coalesce folds the event into the per-path pending set. The settle
// loop emits one logical event per path once the window passes quiet.
func (w *Watcher) coalesce(entry layout.Entry, kind ChangeKind) {
	w.pendMu.Lock()
	defer w.pendMu.Unlock()
	p, ok := w.pending[entry.RelPath]
	if !ok {
		w.pending[entry.RelPath] = &pendingChange{
			entry:    entry,
			kind:     kind,
			deadline: time.Now().Add(w.settle),
		}
		return
	}
	// A Created followed by Modified is still a creation from the
	// engine's point of view; anything followed by Removed is a removal.
	if kind == Removed {
		p.kind = Removed
	} else if p.kind != Created {
		p.kind = kind
	}
	p.deadline = time.Now().Add(w.settle)
}

func (w *Watcher) settleLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.C:
			w.flushSettled(now)
		}
	}
}

func (w *Watcher) flushSettled(now time.Time) {
	var ready []ChangeEvent
	w.pendMu.Lock()
	for rel, p := range w.pending {
		if now.After(p.deadline) {
			ready = append(ready, ChangeEvent{Entry: p.entry, Kind: p.kind})
			delete(w.pending, rel)
		}
	}
	w.pendMu.Unlock()

	for _, ev := range ready {
		select {
		case w.events <- ev:
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher and closes the event stream. Safe to call
// more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
		close(w.done)
		w.wg.Wait()
		close(w.events)
	})
	return err
}
