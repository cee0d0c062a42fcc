package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/taskvault/taskvault/codec"
	"github.com/taskvault/taskvault/conflict"
	"github.com/taskvault/taskvault/engine"
	"github.com/taskvault/taskvault/testutil"
	"github.com/taskvault/taskvault/types"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// openWatchedVault seeds a real directory with the fixture universe and
// opens an engine with the filesystem watcher running.
func openWatchedVault(t *testing.T, opts ...engine.Option) (*engine.Engine, *testutil.Universe) {
	t.Helper()
	dir := t.TempDir()
	universe := testutil.NewUniverse(time.Now())

	seed, err := engine.Open(dir, engine.WithoutWatcher())
	if err != nil {
		t.Fatalf("seed open failed: %v", err)
	}
	if err := universe.WriteTo(seed.Layout()); err != nil {
		t.Fatalf("fixture write failed: %v", err)
	}
	if err := seed.Close(context.Background()); err != nil {
		t.Fatalf("seed close failed: %v", err)
	}

	eng, err := engine.Open(dir, opts...)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close(context.Background()) })
	if _, err := eng.LoadAll(); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return eng, universe
}

func externalWrite(t *testing.T, eng *engine.Engine, task types.Task) {
	t.Helper()
	content, err := codec.EncodeTask(task)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := eng.Layout().WriteAtomic(eng.Layout().TaskPath(task), content); err != nil {
		t.Fatalf("external write failed: %v", err)
	}
}

func TestExternalEditReloadsStore(t *testing.T) {
	eng, universe := openWatchedVault(t)

	edited := universe.InboxCall.Clone()
	edited.Title = "Call the dentist, rescheduled"
	edited.UpdatedAt = edited.UpdatedAt.Add(time.Minute)
	externalWrite(t, eng, edited)

	waitFor(t, 10*time.Second, func() bool {
		got, ok := eng.Store().Get(universe.InboxCall.ID)
		return ok && got.Title == edited.Title
	})

	select {
	case ev := <-eng.Conflicts():
		t.Fatalf("clean reload raised a conflict: %+v", ev)
	default:
	}
}

func TestConcurrentEditRaisesConflict(t *testing.T) {
	// An hour-long debounce keeps the local edit unsaved for the whole
	// test, so the external write lands on a dirty entity.
	eng, universe := openWatchedVault(t, engine.WithDebounce(time.Hour))

	local := universe.InboxCall.Clone()
	local.Title = "Local edit"
	if _, err := eng.Store().Upsert(local); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	external := universe.InboxCall.Clone()
	external.Title = "External edit"
	external.UpdatedAt = external.UpdatedAt.Add(time.Minute)
	externalWrite(t, eng, external)

	var conflictEv types.ConflictEvent
	select {
	case conflictEv = <-eng.Conflicts():
	case <-time.After(10 * time.Second):
		t.Fatal("no conflict event")
	}
	if conflictEv.EntityID != universe.InboxCall.ID {
		t.Fatalf("conflict for wrong entity: %s", conflictEv.EntityID)
	}
	if conflictEv.Local.Title != "Local edit" || conflictEv.External.Title != "External edit" {
		t.Errorf("conflict carries wrong versions: %+v", conflictEv)
	}

	// The local version stays active until resolution.
	got, _ := eng.Store().Get(universe.InboxCall.ID)
	if got.Title != "Local edit" {
		t.Errorf("local version lost: %q", got.Title)
	}
	if len(eng.PendingConflicts()) != 1 {
		t.Errorf("expected one pending conflict, got %v", eng.PendingConflicts())
	}

	// Both versions exist on disk: the local one will win the document,
	// the external one is preserved at the backup path.
	if err := eng.ResolveConflict(universe.InboxCall.ID, conflict.KeepLocal); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if err := eng.Flush(context.Background()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	content, err := eng.Layout().Read(eng.Layout().TaskPath(got))
	if err != nil {
		t.Fatalf("document unreadable: %v", err)
	}
	decoded, err := codec.DecodeTask(content)
	if err != nil {
		t.Fatalf("document does not decode: %v", err)
	}
	if decoded.Title != "Local edit" {
		t.Errorf("document holds %q after keep-local", decoded.Title)
	}
}

func TestOwnFlushDoesNotEchoBack(t *testing.T) {
	eng, _ := openWatchedVault(t, engine.WithDebounce(30*time.Millisecond))

	stored, err := eng.Store().Upsert(types.Task{Title: "Echo check", Status: types.StatusInbox})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return eng.Layout().Exists(eng.Layout().TaskPath(stored))
	})

	// Give a wrongly unsuppressed echo time to surface.
	time.Sleep(time.Second)
	select {
	case ev := <-eng.Conflicts():
		t.Fatalf("own flush echoed back as a conflict: %+v", ev)
	case n := <-eng.Notices():
		t.Fatalf("own flush raised a notice: %+v", n)
	default:
	}
	if got, _ := eng.Store().Get(stored.ID); got.Title != "Echo check" {
		t.Errorf("store disturbed by own flush: %q", got.Title)
	}
}

func TestExternalRemovalDropsTask(t *testing.T) {
	eng, universe := openWatchedVault(t)

	rel := eng.Layout().TaskPath(universe.SomedayPiano)
	if err := eng.Layout().Remove(rel); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	waitFor(t, 10*time.Second, func() bool {
		_, ok := eng.Store().Get(universe.SomedayPiano.ID)
		return !ok
	})
}
