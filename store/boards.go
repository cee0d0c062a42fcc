package store

import (
	"github.com/google/uuid"

	"github.com/taskvault/taskvault/internal/validation"
	"github.com/taskvault/taskvault/storage"
	"github.com/taskvault/taskvault/types"
)

// defaultColumns are the kanban columns a lazily materialized board
// starts with: one per workflow status.
func defaultColumns() []string {
	statuses := types.Statuses()
	cols := make([]string, len(statuses))
	for i, st := range statuses {
		cols[i] = string(st)
	}
	return cols
}

// GetBoard returns a copy of the board with the given ID.
func (s *Store) GetBoard(id string) (types.Board, bool) {
	var b types.Board
	var ok bool
	_ = s.lockManager.Execute(storage.ReadOperation, func() error {
		var stored types.Board
		stored, ok = s.boards[id]
		if ok {
			b = stored.Clone()
		}
		return nil
	})
	return b, ok
}

// UpsertBoard creates or mutates a board, marks it dirty, and emits a
// Changed event. Returns the stored copy.
func (s *Store) UpsertBoard(b types.Board) (types.Board, error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if err := validation.ValidateBoard(b); err != nil {
		return types.Board{}, err
	}
	err := s.lockManager.Execute(storage.WriteOperation, func() error {
		if s.closed {
			return types.ErrClosed
		}
		now := s.now()
		if existing, ok := s.boards[b.ID]; ok {
			b.CreatedAt = existing.CreatedAt
		} else if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		b.UpdatedAt = now
		s.boards[b.ID] = b.Clone()
		if s.flusher != nil {
			s.flusher.MarkDirty(b.ID)
		}
		return nil
	})
	if err != nil {
		return types.Board{}, err
	}
	s.emit(types.StoreEvent{Kind: types.EventChanged, Entity: types.KindBoard, EntityID: b.ID})
	return b, nil
}

// LoadBoard inserts or replaces a board without marking it dirty.
func (s *Store) LoadBoard(b types.Board) error {
	if err := validation.ValidateBoard(b); err != nil {
		return err
	}
	err := s.lockManager.Execute(storage.WriteOperation, func() error {
		if s.closed {
			return types.ErrClosed
		}
		s.boards[b.ID] = b.Clone()
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(types.StoreEvent{Kind: types.EventLoaded, Entity: types.KindBoard, EntityID: b.ID})
	return nil
}

// LoadBoardIfClean replaces a board only if dirtyFn reports no unsaved
// local mutation, with the check done under the write lock so no
// UpsertBoard can interleave. Returns whether the load happened.
func (s *Store) LoadBoardIfClean(b types.Board, dirtyFn func(id string) bool) (bool, error) {
	if err := validation.ValidateBoard(b); err != nil {
		return false, err
	}
	var loaded bool
	err := s.lockManager.Execute(storage.WriteOperation, func() error {
		if s.closed {
			return types.ErrClosed
		}
		if dirtyFn(b.ID) {
			return nil
		}
		s.boards[b.ID] = b.Clone()
		loaded = true
		return nil
	})
	if err != nil || !loaded {
		return false, err
	}
	s.emit(types.StoreEvent{Kind: types.EventLoaded, Entity: types.KindBoard, EntityID: b.ID})
	return true, nil
}

// DeleteBoard removes a board and marks it dirty so its document is
// removed.
func (s *Store) DeleteBoard(id string) error {
	err := s.lockManager.Execute(storage.WriteOperation, func() error {
		if s.closed {
			return types.ErrClosed
		}
		if _, ok := s.boards[id]; !ok {
			return types.ErrNotFound
		}
		delete(s.boards, id)
		if s.flusher != nil {
			s.flusher.MarkDirty(id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(types.StoreEvent{Kind: types.EventDeleted, Entity: types.KindBoard, EntityID: id})
	return nil
}

// DropBoard removes a board from the cache without marking it dirty,
// for reconciling an external removal.
func (s *Store) DropBoard(id string) bool {
	var ok bool
	_ = s.lockManager.Execute(storage.WriteOperation, func() error {
		if _, ok = s.boards[id]; ok {
			delete(s.boards, id)
		}
		return nil
	})
	if ok {
		s.emit(types.StoreEvent{Kind: types.EventDeleted, Entity: types.KindBoard, EntityID: id})
	}
	return ok
}

// DropBoardIfClean removes a board only if dirtyFn reports no unsaved
// local mutation, checked under the write lock. Returns whether the
// drop happened.
func (s *Store) DropBoardIfClean(id string, dirtyFn func(id string) bool) bool {
	var dropped bool
	_ = s.lockManager.Execute(storage.WriteOperation, func() error {
		if dirtyFn(id) {
			return nil
		}
		if _, ok := s.boards[id]; ok {
			delete(s.boards, id)
			dropped = true
		}
		return nil
	})
	if dropped {
		s.emit(types.StoreEvent{Kind: types.EventDeleted, Entity: types.KindBoard, EntityID: id})
	}
	return dropped
}

// Boards returns a copy of every board.
func (s *Store) Boards() []types.Board {
	var result []types.Board
	_ = s.lockManager.Execute(storage.ReadOperation, func() error {
		for _, b := range s.boards {
			result = append(result, b.Clone())
		}
		return nil
	})
	return result
}

// QueryBoard returns the tasks currently matching the board's filter.
// Membership is recomputed on every call.
func (s *Store) QueryBoard(boardID string) ([]types.Task, error) {
	b, ok := s.GetBoard(boardID)
	if !ok {
		return nil, types.ErrNotFound
	}
	return s.Query(b.Filter), nil
}

// materializeBoards creates context and project boards the first time a
// matching name is observed on a task. Boards are a persisted filter,
// so users never have to create them explicitly. Caller must hold the
// write lock.
func (s *Store) materializeBoards(t types.Task) []types.StoreEvent {
	var events []types.StoreEvent
	if t.Context != "" && !s.boardExists(types.BoardContext, t.Context) {
		events = append(events, s.addDerivedBoard(types.BoardContext, t.Context, types.ByContext(t.Context)))
	}
	if t.Project != "" && !s.boardExists(types.BoardProject, t.Project) {
		events = append(events, s.addDerivedBoard(types.BoardProject, t.Project, types.ByProject(t.Project)))
	}
	return events
}

func (s *Store) boardExists(bt types.BoardType, name string) bool {
	for _, b := range s.boards {
		if b.Type == bt && b.Name == name {
			return true
		}
	}
	return false
}

func (s *Store) addDerivedBoard(bt types.BoardType, name string, f types.Filter) types.StoreEvent {
	now := s.now()
	b := types.Board{
		ID:        uuid.New().String(),
		Name:      name,
		Type:      bt,
		Filter:    f,
		Layout:    types.LayoutKanban,
		Columns:   defaultColumns(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.boards[b.ID] = b
	if s.flusher != nil {
		s.flusher.MarkDirty(b.ID)
	}
	return types.StoreEvent{Kind: types.EventChanged, Entity: types.KindBoard, EntityID: b.ID}
}
