package engine

import (
	"time"

	"github.com/taskvault/taskvault/types"
)

// RotationReport summarizes one archival rotation pass.
type RotationReport struct {
	// Moved is how many documents were relocated to the archive set.
	Moved int
	// Eligible is how many completed tasks were past retention,
	// including any whose move failed.
	Eligible int
}

// Rotate reclassifies completed tasks older than the retention
// threshold from the active set into the archive set. It is idempotent
// (a second pass with no time elapsed moves nothing) and never runs
// concurrently with itself. The host runs it once per session and on
// demand.
func (e *Engine) Rotate(now time.Time) (RotationReport, error) {
	e.rotateMu.Lock()
	defer e.rotateMu.Unlock()

	var report RotationReport
	cutoff := now.Add(-e.retention)

	for _, t := range e.taskStore.Tasks() {
		if !t.Completed() || t.Lifecycle != types.LifecycleActive {
			continue
		}
		if t.UpdatedAt.After(cutoff) {
			continue
		}
		report.Eligible++

		// A task with an unflushed mutation gets picked up next pass;
		// moving a document out from under a pending write would race it.
		if e.sched.Dirty(t.ID) {
			continue
		}

		archived := t
		archived.Lifecycle = types.LifecycleArchived
		newRel := e.layoutMgr.TaskPath(archived)

		e.pathMu.Lock()
		oldRel, tracked := e.paths[t.ID]
		e.pathMu.Unlock()

		e.expectWrite(newRel)
		var err error
		if !tracked || oldRel == e.layoutMgr.TaskPath(t) {
			e.expectWrite(e.layoutMgr.TaskPath(t))
			_, err = e.layoutMgr.MoveToArchive(t)
		} else {
			// The document sits at a non-canonical path (hand-renamed
			// externally); move it from where it actually is.
			e.expectWrite(oldRel)
			err = e.layoutMgr.Rename(oldRel, newRel)
		}
		if err != nil {
			e.logger.Warn("failed to archive document", "entity", t.ID, "error", err)
			continue
		}

		if err := e.taskStore.Load(archived); err != nil {
			e.logger.Warn("failed to update archived task", "entity", t.ID, "error", err)
			continue
		}
		e.trackPath(t.ID, newRel)
		report.Moved++
	}

	if report.Moved > 0 {
		e.logger.Info("rotation complete", "moved", report.Moved, "eligible", report.Eligible)
	}
	return report, nil
}
