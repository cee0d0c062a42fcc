package engine_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/taskvault/taskvault/engine"
	"github.com/taskvault/taskvault/layout"
	"github.com/taskvault/taskvault/storage"
	"github.com/taskvault/taskvault/testutil"
	"github.com/taskvault/taskvault/types"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
}

type testVault struct {
	engine *engine.Engine
	mockFS *layout.MockFileSystem
	locks  *storage.MockFileLockFactory
	layout *layout.Manager
}

// openTestVault opens an engine over an in-memory file system with the
// watcher disabled and a clock pinned to fixedNow.
func openTestVault(t *testing.T, opts ...engine.Option) *testVault {
	t.Helper()
	v := &testVault{
		mockFS: layout.NewMockFileSystem(),
		locks:  storage.NewMockFileLockFactory(),
	}
	v.layout = layout.NewManager("/vault", v.mockFS)
	base := []engine.Option{
		engine.WithFileSystem(v.mockFS),
		engine.WithLockFactory(v.locks),
		engine.WithTimeFunc(fixedNow),
		engine.WithDebounce(time.Hour), // flush explicitly in tests
		engine.WithoutWatcher(),
	}
	eng, err := engine.Open("/vault", append(base, opts...)...)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	v.engine = eng
	t.Cleanup(func() { _ = eng.Close(context.Background()) })
	return v
}

func (v *testVault) reopen(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.Open("/vault",
		engine.WithFileSystem(v.mockFS),
		engine.WithLockFactory(v.locks),
		engine.WithTimeFunc(fixedNow),
		engine.WithDebounce(time.Hour),
		engine.WithoutWatcher(),
	)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close(context.Background()) })
	return eng
}

func TestOpenHoldsVaultLock(t *testing.T) {
	v := openTestVault(t)

	lock, ok := v.locks.Get("/vault/.vault.lock")
	if !ok {
		t.Fatal("no vault lock was taken")
	}
	if !lock.Locked() {
		t.Error("vault lock not held while the engine is open")
	}

	// A second engine over the same vault must be refused.
	if _, err := engine.Open("/vault",
		engine.WithFileSystem(v.mockFS),
		engine.WithLockFactory(v.locks),
		engine.WithoutWatcher(),
	); err == nil {
		t.Error("expected a second open to fail while the lock is held")
	}

	if err := v.engine.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if lock.Locked() {
		t.Error("vault lock still held after close")
	}
}

func TestFlushWritesDocuments(t *testing.T) {
	v := openTestVault(t)

	stored, err := v.engine.Store().Upsert(types.Task{Title: "Water the plants", Status: types.StatusInbox})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	rel := v.layout.TaskPath(stored)
	if v.mockFS.FileExists("/vault/" + rel) {
		t.Fatal("document written before the debounce window, nothing was flushed yet")
	}

	if err := v.engine.Flush(context.Background()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if !v.mockFS.FileExists("/vault/" + rel) {
		t.Errorf("document missing after flush: %s", rel)
	}
}

func TestCloseFlushesEverything(t *testing.T) {
	v := openTestVault(t)

	var want []types.Task
	for i := 0; i < 50; i++ {
		stored, err := v.engine.Store().Upsert(types.Task{
			Title:  "Task number " + strings.Repeat("x", i%7+1),
			Status: types.StatusNextAction,
			Notes:  strings.Repeat("line\n", i%3),
		})
		if err != nil {
			t.Fatalf("upsert %d failed: %v", i, err)
		}
		want = append(want, stored)
	}

	if err := v.engine.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	eng := v.reopen(t)
	report, err := eng.LoadAll()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if report.Tasks != len(want) {
		t.Fatalf("expected %d tasks after reload, got %d", len(want), report.Tasks)
	}
	for _, w := range want {
		got, ok := eng.Store().Get(w.ID)
		if !ok {
			t.Errorf("task %s missing after reload", w.ID)
			continue
		}
		if diff := cmp.Diff(w, got); diff != "" {
			t.Errorf("task %s mismatch (-want +got):\n%s", w.ID, diff)
		}
	}
}

func TestLoadAllSkipsCorruptDocuments(t *testing.T) {
	v := openTestVault(t)
	universe := testutil.NewUniverse(fixedNow())
	if err := universe.WriteTo(v.layout); err != nil {
		t.Fatalf("fixture write failed: %v", err)
	}
	corrupt := "active/2026/03/" + testutil.ErrandsBoardID + "-broken.task"
	if err := v.layout.WriteAtomic(corrupt, []byte("no header here")); err != nil {
		t.Fatalf("corrupt write failed: %v", err)
	}

	report, err := v.engine.LoadAll()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if report.Tasks != len(universe.Tasks) {
		t.Errorf("expected %d tasks, got %d", len(universe.Tasks), report.Tasks)
	}
	if report.Boards != len(universe.Boards) {
		t.Errorf("expected %d boards, got %d", len(universe.Boards), report.Boards)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Path != corrupt {
		t.Fatalf("expected the corrupt document in the skip report, got %+v", report.Skipped)
	}
	// The corrupt file stays on disk untouched.
	if !v.layout.Exists(corrupt) {
		t.Error("corrupt document must not be deleted by load")
	}
}

func TestTitleEditMigratesDocument(t *testing.T) {
	v := openTestVault(t)

	stored, err := v.engine.Store().Upsert(types.Task{Title: "Old name", Status: types.StatusInbox})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := v.engine.Flush(context.Background()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	oldRel := v.layout.TaskPath(stored)

	stored.Title = "Entirely new name"
	renamed, err := v.engine.Store().Upsert(stored)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := v.engine.Flush(context.Background()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	newRel := v.layout.TaskPath(renamed)

	if newRel == oldRel {
		t.Fatal("title edit should have changed the document path")
	}
	if v.mockFS.FileExists("/vault/" + oldRel) {
		t.Error("superseded document not removed")
	}
	if !v.mockFS.FileExists("/vault/" + newRel) {
		t.Error("renamed document missing")
	}
}

func TestDeleteRemovesDocument(t *testing.T) {
	v := openTestVault(t)

	stored, err := v.engine.Store().Upsert(types.Task{Title: "Short lived", Status: types.StatusInbox})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := v.engine.Flush(context.Background()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	rel := v.layout.TaskPath(stored)
	if !v.mockFS.FileExists("/vault/" + rel) {
		t.Fatal("document missing after first flush")
	}

	if err := v.engine.Store().Delete(stored.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := v.engine.Flush(context.Background()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if v.mockFS.FileExists("/vault/" + rel) {
		t.Error("document still present after deletion flush")
	}
}

func TestDerivedBoardIsPersisted(t *testing.T) {
	v := openTestVault(t)

	if _, err := v.engine.Store().Upsert(types.Task{Title: "At the office", Status: types.StatusNextAction, Context: "office"}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := v.engine.Flush(context.Background()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	var found bool
	for _, b := range v.engine.Store().Boards() {
		if b.Type == types.BoardContext && b.Name == "office" {
			if !v.mockFS.FileExists("/vault/" + v.layout.BoardPath(b)) {
				t.Error("derived board has no backing document after flush")
			}
			found = true
		}
	}
	if !found {
		t.Fatal("derived board missing from the store")
	}
}

func TestRotate(t *testing.T) {
	v := openTestVault(t, engine.WithRetention(24*time.Hour))
	universe := testutil.NewUniverse(fixedNow())
	if err := universe.WriteTo(v.layout); err != nil {
		t.Fatalf("fixture write failed: %v", err)
	}
	if _, err := v.engine.LoadAll(); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	// DoneTaxes was completed two days ago, past the one-day retention.
	report, err := v.engine.Rotate(fixedNow())
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if report.Moved != 1 || report.Eligible != 1 {
		t.Fatalf("expected 1 moved / 1 eligible, got %+v", report)
	}

	got, ok := v.engine.Store().Get(universe.DoneTaxes.ID)
	if !ok {
		t.Fatal("rotated task missing from store")
	}
	if got.Lifecycle != types.LifecycleArchived {
		t.Errorf("rotated task still %q", got.Lifecycle)
	}

	oldRel := v.layout.TaskPath(universe.DoneTaxes)
	newRel := v.layout.TaskPath(got)
	if v.mockFS.FileExists("/vault/" + oldRel) {
		t.Error("document still in the active set after rotation")
	}
	if !v.mockFS.FileExists("/vault/" + newRel) {
		t.Error("document missing from the archive set after rotation")
	}
	if !strings.HasPrefix(newRel, "archive/") {
		t.Errorf("unexpected archive path: %s", newRel)
	}

	// Incomplete and recently completed tasks stay put.
	for _, id := range []string{universe.InboxCall.ID, universe.NextReport.ID, universe.WaitingParts.ID} {
		if task, _ := v.engine.Store().Get(id); task.Lifecycle != types.LifecycleActive {
			t.Errorf("task %s wrongly rotated", id)
		}
	}

	t.Run("idempotent", func(t *testing.T) {
		again, err := v.engine.Rotate(fixedNow())
		if err != nil {
			t.Fatalf("second rotate failed: %v", err)
		}
		if again.Moved != 0 {
			t.Errorf("second pass moved %d documents", again.Moved)
		}
	})
}

func TestRotateSkipsDirtyTasks(t *testing.T) {
	v := openTestVault(t, engine.WithRetention(24*time.Hour))
	universe := testutil.NewUniverse(fixedNow())
	if err := universe.WriteTo(v.layout); err != nil {
		t.Fatalf("fixture write failed: %v", err)
	}
	if _, err := v.engine.LoadAll(); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	// An unflushed edit makes the task dirty; moving its document out
	// from under the pending write would race it.
	edited := universe.DoneTaxes
	edited.Notes = "amended after filing"
	if _, err := v.engine.Store().Upsert(edited); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	report, err := v.engine.Rotate(fixedNow().Add(72 * time.Hour))
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if report.Moved != 0 {
		t.Errorf("dirty task was rotated: %+v", report)
	}
}
