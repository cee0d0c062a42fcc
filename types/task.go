package types

import "time"

// Status is the closed set of task workflow states.
type Status string

const (
	StatusInbox      Status = "inbox"
	StatusNextAction Status = "next-action"
	StatusWaiting    Status = "waiting"
	StatusSomeday    Status = "someday"
	StatusCompleted  Status = "completed"
)

// Statuses lists every valid status, in workflow order.
func Statuses() []Status {
	return []Status{StatusInbox, StatusNextAction, StatusWaiting, StatusSomeday, StatusCompleted}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusInbox, StatusNextAction, StatusWaiting, StatusSomeday, StatusCompleted:
		return true
	}
	return false
}

// Priority is an optional task priority level.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is one of the known priorities.
// The empty priority is valid and means "unset".
func (p Priority) Valid() bool {
	switch p {
	case "", PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Lifecycle describes which file set a document resides in.
type Lifecycle string

const (
	LifecycleActive   Lifecycle = "active"
	LifecycleArchived Lifecycle = "archive"
)

// Position is a 2-D placement on a freeform-layout board.
type Position struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// ExtraField is a header field the codec did not recognize.
// Unknown fields are preserved, in order, so documents written by a
// newer (or older) version of the program survive a round trip intact.
type ExtraField struct {
	Key   string
	Value string
}

// Task is the primary entity. A Task maps to exactly one document on disk.
//
// Tasks are value types: the store hands out copies, and all mutations go
// back through the store's own methods. The ID is assigned once and never
// changes; everything else may be edited in place.
type Task struct {
	ID        string
	Title     string
	Status    Status
	Project   string   // optional
	Context   string   // optional
	Priority  Priority // optional
	Due       time.Time // optional, date precision
	Defer     time.Time // optional, date precision
	Flagged   bool
	Effort    int    // optional estimate in minutes, 0 means unset
	Notes     string // free-text body
	CreatedAt time.Time
	UpdatedAt time.Time

	// Positions maps board ID to this task's placement on that board.
	// Only freeform-layout boards use it.
	Positions map[string]Position

	// Lifecycle records which file set the backing document lives in.
	// It is derived from the document's path, not from the header.
	Lifecycle Lifecycle

	// Extra holds unrecognized header fields for round-tripping.
	Extra []ExtraField
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	out := t
	if t.Positions != nil {
		out.Positions = make(map[string]Position, len(t.Positions))
		for k, v := range t.Positions {
			out.Positions[k] = v
		}
	}
	if t.Extra != nil {
		out.Extra = make([]ExtraField, len(t.Extra))
		copy(out.Extra, t.Extra)
	}
	return out
}

// Completed reports whether the task has reached its terminal status.
func (t Task) Completed() bool {
	return t.Status == StatusCompleted
}
