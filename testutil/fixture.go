// Package testutil builds populated vault fixtures for tests: a typed
// universe of tasks and boards, optionally written out as documents.
package testutil

import (
	"fmt"
	"time"

	"github.com/taskvault/taskvault/codec"
	"github.com/taskvault/taskvault/layout"
	"github.com/taskvault/taskvault/types"
)

// Fixed UUIDs so tests can reference entities by name.
const (
	InboxCallID    = "11111111-1111-4111-8111-111111111111"
	NextReportID   = "22222222-2222-4222-8222-222222222222"
	WaitingPartsID = "33333333-3333-4333-8333-333333333333"
	SomedayPianoID = "44444444-4444-4444-8444-444444444444"
	DoneTaxesID    = "55555555-5555-4555-8555-555555555555"
	DoneOldID      = "66666666-6666-4666-8666-666666666666"
	ErrandsBoardID = "77777777-7777-4777-8777-777777777777"
)

// Universe is a typed set of canned entities covering the interesting
// states: every status, archive residency, flags, positions, and a
// custom board.
type Universe struct {
	InboxCall    types.Task // fresh inbox capture
	NextReport   types.Task // next-action in a project, high priority
	WaitingParts types.Task // waiting, flagged, with due date
	SomedayPiano types.Task // someday, with notes body and a position
	DoneTaxes    types.Task // recently completed, still active set
	DoneOld      types.Task // completed long ago, archived

	ErrandsBoard types.Board // custom board over the errands context

	Tasks  []types.Task
	Boards []types.Board
}

// NewUniverse builds the canned entities relative to now. Timestamps
// are normalized to the codec's wire precision so round trips compare
// equal.
func NewUniverse(now time.Time) *Universe {
	now = now.UTC().Truncate(time.Second)
	day := 24 * time.Hour

	u := &Universe{
		InboxCall: types.Task{
			ID:        InboxCallID,
			Title:     "Call the dentist",
			Status:    types.StatusInbox,
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-1 * time.Hour),
			Lifecycle: types.LifecycleActive,
		},
		NextReport: types.Task{
			ID:        NextReportID,
			Title:     "Draft quarterly report",
			Status:    types.StatusNextAction,
			Project:   "reporting",
			Priority:  types.PriorityHigh,
			Effort:    90,
			CreatedAt: now.Add(-10 * day),
			UpdatedAt: now.Add(-2 * day),
			Lifecycle: types.LifecycleActive,
		},
		WaitingParts: types.Task{
			ID:        WaitingPartsID,
			Title:     "Wait for bike parts",
			Status:    types.StatusWaiting,
			Context:   "errands",
			Flagged:   true,
			Due:       now.Add(7 * day).Truncate(day),
			CreatedAt: now.Add(-5 * day),
			UpdatedAt: now.Add(-5 * day),
			Lifecycle: types.LifecycleActive,
		},
		SomedayPiano: types.Task{
			ID:        SomedayPianoID,
			Title:     "Learn piano",
			Status:    types.StatusSomeday,
			Notes:     "Start with scales.\nMaybe find a teacher.",
			CreatedAt: now.Add(-100 * day),
			UpdatedAt: now.Add(-100 * day),
			Lifecycle: types.LifecycleActive,
			Positions: map[string]types.Position{
				ErrandsBoardID: {X: 120, Y: 48},
			},
		},
		DoneTaxes: types.Task{
			ID:        DoneTaxesID,
			Title:     "File taxes",
			Status:    types.StatusCompleted,
			Project:   "finance",
			CreatedAt: now.Add(-20 * day),
			UpdatedAt: now.Add(-2 * day),
			Lifecycle: types.LifecycleActive,
		},
		DoneOld: types.Task{
			ID:        DoneOldID,
			Title:     "Renew passport",
			Status:    types.StatusCompleted,
			CreatedAt: now.Add(-200 * day),
			UpdatedAt: now.Add(-90 * day),
			Lifecycle: types.LifecycleArchived,
		},
		ErrandsBoard: types.Board{
			ID:        ErrandsBoardID,
			Name:      "Errands",
			Type:      types.BoardCustom,
			Filter:    types.ByContext("errands"),
			Layout:    types.LayoutFreeform,
			CreatedAt: now.Add(-30 * day),
			UpdatedAt: now.Add(-30 * day),
		},
	}

	u.Tasks = []types.Task{u.InboxCall, u.NextReport, u.WaitingParts, u.SomedayPiano, u.DoneTaxes, u.DoneOld}
	u.Boards = []types.Board{u.ErrandsBoard}
	return u
}

// WriteTo encodes every entity and writes it as a document through the
// layout manager, producing a realistic on-disk vault.
func (u *Universe) WriteTo(lm *layout.Manager) error {
	for _, t := range u.Tasks {
		content, err := codec.EncodeTask(t)
		if err != nil {
			return fmt.Errorf("encoding fixture task %s: %w", t.ID, err)
		}
		if err := lm.WriteAtomic(lm.TaskPath(t), content); err != nil {
			return fmt.Errorf("writing fixture task %s: %w", t.ID, err)
		}
	}
	for _, b := range u.Boards {
		content, err := codec.EncodeBoard(b)
		if err != nil {
			return fmt.Errorf("encoding fixture board %s: %w", b.ID, err)
		}
		if err := lm.WriteAtomic(lm.BoardPath(b), content); err != nil {
			return fmt.Errorf("writing fixture board %s: %w", b.ID, err)
		}
	}
	return nil
}
