package types

import "time"

// BoardType classifies how a board came to exist and what it filters on.
type BoardType string

const (
	// BoardContext is a board materialized for a context name.
	BoardContext BoardType = "context"
	// BoardProject is a board materialized for a project name.
	BoardProject BoardType = "project"
	// BoardStatus is a board over one or more workflow statuses.
	BoardStatus BoardType = "status"
	// BoardCustom is a user-defined board with an arbitrary filter.
	BoardCustom BoardType = "custom"
)

// Valid reports whether bt is a known board type.
func (bt BoardType) Valid() bool {
	switch bt {
	case BoardContext, BoardProject, BoardStatus, BoardCustom:
		return true
	}
	return false
}

// LayoutMode selects how a board arranges its matching tasks.
type LayoutMode string

const (
	LayoutFreeform LayoutMode = "freeform"
	LayoutKanban   LayoutMode = "kanban"
	LayoutGrid     LayoutMode = "grid"
)

// Valid reports whether lm is a known layout mode.
func (lm LayoutMode) Valid() bool {
	switch lm {
	case LayoutFreeform, LayoutKanban, LayoutGrid:
		return true
	}
	return false
}

// Board is a named, persisted filter over the task set. It never owns
// tasks: membership is recomputed from the Filter on every query, so
// "moving" a task onto a board means editing the task's own metadata
// until it matches.
type Board struct {
	ID        string
	Name      string
	Type      BoardType
	Filter    Filter
	Layout    LayoutMode
	Columns   []string // kanban column names
	Sections  []string // grid section names
	CreatedAt time.Time
	UpdatedAt time.Time

	// Extra holds unrecognized header fields for round-tripping.
	Extra []ExtraField
}

// Clone returns a deep copy of the board.
func (b Board) Clone() Board {
	out := b
	out.Filter = b.Filter.Clone()
	if b.Columns != nil {
		out.Columns = append([]string(nil), b.Columns...)
	}
	if b.Sections != nil {
		out.Sections = append([]string(nil), b.Sections...)
	}
	if b.Extra != nil {
		out.Extra = append([]ExtraField(nil), b.Extra...)
	}
	return out
}
