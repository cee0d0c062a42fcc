package types

// EntityKind distinguishes the two persisted entity families.
type EntityKind string

const (
	KindTask  EntityKind = "task"
	KindBoard EntityKind = "board"
)

// StoreEventKind is the kind of change a StoreEvent reports.
type StoreEventKind int

const (
	// EventLoaded means the entity was populated from disk (bulk load or
	// external-change reconciliation), not mutated by a collaborator.
	EventLoaded StoreEventKind = iota
	// EventChanged means a collaborator created or mutated the entity.
	EventChanged
	// EventDeleted means the entity was removed.
	EventDeleted
)

func (k StoreEventKind) String() string {
	switch k {
	case EventLoaded:
		return "loaded"
	case EventChanged:
		return "changed"
	case EventDeleted:
		return "deleted"
	}
	return "unknown"
}

// StoreEvent is emitted on the store's subscription stream after every
// successful mutation or load, for UI collaborators to re-render.
type StoreEvent struct {
	Kind     StoreEventKind
	Entity   EntityKind
	EntityID string
}

// ConflictEvent reports that an external edit diverged from an unsaved
// in-memory mutation. Both sides are preserved: the local version stays
// active in the store, the external version is copied to BackupPath.
type ConflictEvent struct {
	EntityID   string
	Local      Task
	External   Task
	BackupPath string
}

// NoticeKind classifies a non-fatal engine notice.
type NoticeKind int

const (
	// NoticeDecodeError: an on-disk document could not be decoded. The
	// file is left untouched for manual inspection.
	NoticeDecodeError NoticeKind = iota
	// NoticeDegraded: an entity's writes kept failing after retries; its
	// in-memory state is retained but not persisted.
	NoticeDegraded
	// NoticeRecovered: a previously degraded entity was flushed.
	NoticeRecovered
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeDecodeError:
		return "decode-error"
	case NoticeDegraded:
		return "degraded"
	case NoticeRecovered:
		return "recovered"
	}
	return "unknown"
}

// Notice is a non-fatal condition surfaced to the UI layer, intended for
// a badge or count rather than a blocking dialog.
type Notice struct {
	Kind     NoticeKind
	EntityID string
	Path     string
	Err      error
}
