package conflict

import (
	"io/fs"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/taskvault/taskvault/codec"
	"github.com/taskvault/taskvault/layout"
	"github.com/taskvault/taskvault/store"
	"github.com/taskvault/taskvault/testutil"
	"github.com/taskvault/taskvault/types"
	"github.com/taskvault/taskvault/watcher"
)

// fakeDirty is a DirtyChecker with a settable dirty set.
type fakeDirty struct {
	mu     sync.Mutex
	dirty  map[string]bool
	marked []string
}

func newFakeDirty() *fakeDirty {
	return &fakeDirty{dirty: make(map[string]bool)}
}

func (f *fakeDirty) Dirty(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty[id]
}

func (f *fakeDirty) MarkDirty(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id)
}

func (f *fakeDirty) set(id string, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirty[id] = v
}

func (f *fakeDirty) markedContains(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, got := range f.marked {
		if got == id {
			return true
		}
	}
	return false
}

type harness struct {
	store     *store.Store
	layout    *layout.Manager
	mockFS    *layout.MockFileSystem
	dirty     *fakeDirty
	resolver  *Resolver
	conflicts []types.ConflictEvent
	notices   []types.Notice
	universe  *testutil.Universe
	now       time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		mockFS: layout.NewMockFileSystem(),
		dirty:  newFakeDirty(),
		now:    time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	h.layout = layout.NewManager("/vault", h.mockFS)
	h.store = store.New(store.WithTimeFunc(clock))
	h.universe = testutil.NewUniverse(h.now)
	if err := h.universe.WriteTo(h.layout); err != nil {
		t.Fatalf("fixture write failed: %v", err)
	}
	for _, task := range h.universe.Tasks {
		if err := h.store.Load(task); err != nil {
			t.Fatalf("load failed: %v", err)
		}
	}
	h.resolver = NewResolver(h.store, h.layout, h.dirty,
		func(ev types.ConflictEvent) { h.conflicts = append(h.conflicts, ev) },
		func(n types.Notice) { h.notices = append(h.notices, n) },
		WithTimeFunc(clock))
	return h
}

// externalEdit rewrites the task's document on disk as an outside
// editor would, bumping the modified stamp.
func (h *harness) externalEdit(t *testing.T, task types.Task, mutate func(*types.Task)) (types.Task, watcher.ChangeEvent) {
	t.Helper()
	edited := task.Clone()
	mutate(&edited)
	edited.UpdatedAt = h.now.Add(time.Minute)
	content, err := codec.EncodeTask(edited)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	rel := h.layout.TaskPath(task)
	if err := h.layout.WriteAtomic(rel, content); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	entry, ok := h.layout.Recognize(rel)
	if !ok {
		t.Fatalf("fixture path not recognized: %s", rel)
	}
	return edited, watcher.ChangeEvent{Entry: entry, Kind: watcher.Modified}
}

func TestExternalEditWhileCleanReloads(t *testing.T) {
	h := newHarness(t)
	task := h.universe.InboxCall

	edited, ev := h.externalEdit(t, task, func(x *types.Task) {
		x.Title = "Call the dentist about the crown"
	})
	h.resolver.HandleChange(ev)

	got, ok := h.store.Get(task.ID)
	if !ok {
		t.Fatal("task missing after reload")
	}
	if got.Title != edited.Title {
		t.Errorf("in-memory copy not reloaded: %q", got.Title)
	}
	if len(h.conflicts) != 0 {
		t.Errorf("clean reload must not raise a conflict: %+v", h.conflicts)
	}
}

func TestExternalEditWhileDirtyRaisesConflict(t *testing.T) {
	h := newHarness(t)
	task := h.universe.InboxCall

	// Unsaved local mutation.
	local := task.Clone()
	local.Title = "Call the dentist (local edit)"
	if _, err := h.store.Upsert(local); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	h.dirty.set(task.ID, true)

	edited, ev := h.externalEdit(t, task, func(x *types.Task) {
		x.Title = "Call the dentist (external edit)"
	})
	h.resolver.HandleChange(ev)

	if len(h.conflicts) != 1 {
		t.Fatalf("expected exactly one conflict event, got %d", len(h.conflicts))
	}
	conflict := h.conflicts[0]
	if conflict.EntityID != task.ID {
		t.Errorf("conflict for wrong entity: %s", conflict.EntityID)
	}
	if conflict.Local.Title != local.Title || conflict.External.Title != edited.Title {
		t.Errorf("conflict carries wrong versions: local=%q external=%q",
			conflict.Local.Title, conflict.External.Title)
	}

	// Local stays active in memory.
	got, _ := h.store.Get(task.ID)
	if got.Title != local.Title {
		t.Errorf("local version lost: %q", got.Title)
	}

	// External version preserved on disk at the backup path.
	backup, ok := h.resolver.BackupPath(task.ID)
	if !ok {
		t.Fatal("no backup path recorded")
	}
	if !strings.Contains(backup, ".conflict-") {
		t.Errorf("backup path outside the conflict naming scheme: %s", backup)
	}
	content, err := h.layout.Read(backup)
	if err != nil {
		t.Fatalf("backup unreadable: %v", err)
	}
	preserved, err := codec.DecodeTask(content)
	if err != nil {
		t.Fatalf("backup does not decode: %v", err)
	}
	if preserved.Title != edited.Title {
		t.Errorf("backup holds wrong version: %q", preserved.Title)
	}

	// The watcher must not re-ingest the backup file.
	if _, recognized := h.layout.Recognize(backup); recognized {
		t.Error("backup path must not be recognized as a document")
	}
}

func TestConflictEventFiresOncePerDivergence(t *testing.T) {
	h := newHarness(t)
	task := h.universe.InboxCall
	h.dirty.set(task.ID, true)

	_, ev := h.externalEdit(t, task, func(x *types.Task) { x.Title = "edit 1" })
	h.resolver.HandleChange(ev)
	_, ev = h.externalEdit(t, task, func(x *types.Task) { x.Title = "edit 2" })
	h.resolver.HandleChange(ev)

	if len(h.conflicts) != 1 {
		t.Errorf("expected one event per divergence, got %d", len(h.conflicts))
	}
}

func TestResolveKeepLocal(t *testing.T) {
	h := newHarness(t)
	task := h.universe.InboxCall
	h.dirty.set(task.ID, true)

	_, ev := h.externalEdit(t, task, func(x *types.Task) { x.Title = "external" })
	h.resolver.HandleChange(ev)
	backup, _ := h.resolver.BackupPath(task.ID)

	if err := h.resolver.Resolve(task.ID, KeepLocal); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(h.resolver.Pending()) != 0 {
		t.Error("conflict still pending after resolve")
	}
	if !h.dirty.markedContains(task.ID) {
		t.Error("keep-local must re-mark the entity so the local version wins the document")
	}
	if !h.layout.Exists(backup) {
		t.Error("external backup must survive keep-local")
	}
}

func TestResolveTakeExternal(t *testing.T) {
	h := newHarness(t)
	task := h.universe.InboxCall

	local := task.Clone()
	local.Title = "local version"
	if _, err := h.store.Upsert(local); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	h.dirty.set(task.ID, true)

	edited, ev := h.externalEdit(t, task, func(x *types.Task) { x.Title = "external version" })
	h.resolver.HandleChange(ev)

	if err := h.resolver.Resolve(task.ID, TakeExternal); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	got, _ := h.store.Get(task.ID)
	if got.Title != edited.Title {
		t.Errorf("external version not adopted: %q", got.Title)
	}

	// The losing local version must be preserved on disk somewhere
	// under the conflict naming scheme.
	var preservedLocal bool
	for _, name := range allFiles(h.mockFS) {
		if strings.Contains(name, ".conflict-") {
			content, _ := h.mockFS.GetFileContent(name)
			if decoded, err := codec.DecodeTask(content); err == nil && decoded.Title == "local version" {
				preservedLocal = true
			}
		}
	}
	if !preservedLocal {
		t.Error("losing local version was not preserved on disk")
	}
}

func TestResolveUnknownConflict(t *testing.T) {
	h := newHarness(t)
	if err := h.resolver.Resolve("no-such-id", KeepLocal); err == nil {
		t.Error("expected an error for an unknown conflict")
	}
}

func TestExternalRemovalWhileClean(t *testing.T) {
	h := newHarness(t)
	task := h.universe.InboxCall
	rel := h.layout.TaskPath(task)
	entry, _ := h.layout.Recognize(rel)

	if err := h.layout.Remove(rel); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	h.resolver.HandleChange(watcher.ChangeEvent{Entry: entry, Kind: watcher.Removed})

	if _, ok := h.store.Get(task.ID); ok {
		t.Error("task still in memory after external removal")
	}
}

func TestExternalRemovalWhileDirtyRewrites(t *testing.T) {
	h := newHarness(t)
	task := h.universe.InboxCall
	rel := h.layout.TaskPath(task)
	entry, _ := h.layout.Recognize(rel)
	h.dirty.set(task.ID, true)

	if err := h.layout.Remove(rel); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	h.resolver.HandleChange(watcher.ChangeEvent{Entry: entry, Kind: watcher.Removed})

	if _, ok := h.store.Get(task.ID); !ok {
		t.Error("dirty task must survive external removal")
	}
	if !h.dirty.markedContains(task.ID) {
		t.Error("removal under a dirty entity must schedule a rewrite")
	}
}

func TestCorruptDocumentLeavesMemoryIntact(t *testing.T) {
	h := newHarness(t)
	task := h.universe.InboxCall
	rel := h.layout.TaskPath(task)
	entry, _ := h.layout.Recognize(rel)

	if err := h.layout.WriteAtomic(rel, []byte("not a document at all")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	h.resolver.HandleChange(watcher.ChangeEvent{Entry: entry, Kind: watcher.Modified})

	got, ok := h.store.Get(task.ID)
	if !ok || got.Title != task.Title {
		t.Error("in-memory entity damaged by a corrupt document")
	}
	if len(h.notices) != 1 || h.notices[0].Kind != types.NoticeDecodeError {
		t.Errorf("expected a decode-error notice, got %+v", h.notices)
	}
	// The corrupt file stays on disk for manual inspection.
	if !h.layout.Exists(rel) {
		t.Error("corrupt document must not be deleted")
	}
}

func TestOwnWriteEchoIsIgnored(t *testing.T) {
	h := newHarness(t)
	task := h.universe.InboxCall
	rel := h.layout.TaskPath(task)
	entry, _ := h.layout.Recognize(rel)

	// The document on disk is byte-identical to what we would write:
	// a watcher echo of our own write whose token already expired.
	h.resolver.HandleChange(watcher.ChangeEvent{Entry: entry, Kind: watcher.Modified})

	if len(h.conflicts) != 0 || len(h.notices) != 0 {
		t.Errorf("own-write echo raised noise: %d conflicts, %d notices",
			len(h.conflicts), len(h.notices))
	}
}

func allFiles(m *layout.MockFileSystem) []string {
	var names []string
	for _, root := range []string{"/vault/active", "/vault/archive", "/vault/boards"} {
		_ = m.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err == nil && d != nil && !d.IsDir() {
				names = append(names, path)
			}
			return nil
		})
	}
	return names
}
