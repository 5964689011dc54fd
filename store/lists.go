package store

import (
	"context"

	"github.com/CrowderSoup/taskboard/database"
	"github.com/CrowderSoup/taskboard/gateway"
)

// CreateList appends a list to the board.
func (s *Store) CreateList(ctx context.Context, boardID, name string) (*database.List, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	name, err := required("name", name)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(boardKey(boardID))
	defer unlock()

	s.mu.RLock()
	position := -1
	if i := s.boardIndex(boardID); i >= 0 {
		position = len(s.boards[i].Lists)
	}
	s.mu.RUnlock()
	if position < 0 {
		return nil, ErrNotFound
	}

	row, err := s.gw.Insert(ctx, gateway.Lists, gateway.Row{
		"board_id": boardID,
		"name":     name,
		"position": position,
	})
	if err != nil {
		s.log.Error("failed to create list", "board_id", boardID, "error", err)
		return nil, persistErr("insert", gateway.Lists, "", err)
	}
	list := &database.List{}
	if err := gateway.Decode(row, list); err != nil {
		return nil, persistErr("insert", gateway.Lists, row.ID(), err)
	}
	list.Cards = []*database.Card{}

	s.mu.Lock()
	if i := s.boardIndex(boardID); i >= 0 {
		s.boards[i].Lists = append(s.boards[i].Lists, list)
	}
	out := list.Clone()
	s.mu.Unlock()

	s.notify(Event{Kind: EventCreated, Table: gateway.Lists, ID: list.ID})
	return out, nil
}

// RenameList changes a list's name.
func (s *Store) RenameList(ctx context.Context, id, name string) error {
	if err := s.ready(); err != nil {
		return err
	}
	name, err := required("name", name)
	if err != nil {
		return err
	}
	unlock := s.lockFor(func() []string {
		if b, _ := s.findList(id); b != nil {
			return []string{boardKey(b.ID)}
		}
		return nil
	})
	defer unlock()

	s.mu.RLock()
	_, list := s.findList(id)
	s.mu.RUnlock()
	if list == nil {
		s.log.Debug("rename of unknown list ignored", "id", id)
		return nil
	}

	if err := s.gw.Update(ctx, gateway.Lists, id, gateway.Row{"name": name}); err != nil {
		s.log.Error("failed to rename list", "id", id, "error", err)
		return persistErr("update", gateway.Lists, id, err)
	}

	s.mu.Lock()
	if _, l := s.findList(id); l != nil {
		l.Name = name
	}
	s.mu.Unlock()
	s.notify(Event{Kind: EventUpdated, Table: gateway.Lists, ID: id})
	return nil
}

// DeleteList removes a list with its cards and checklist items and closes
// the gap in the board's list positions.
func (s *Store) DeleteList(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	unlock := s.lockFor(func() []string {
		if b, l := s.findList(id); l != nil {
			return append(listKeys(l), boardKey(b.ID))
		}
		return nil
	})
	defer unlock()

	s.mu.RLock()
	_, list := s.findList(id)
	var plan []deletion
	if list != nil {
		plan = planList(list)
	}
	s.mu.RUnlock()
	if list == nil {
		s.log.Debug("delete of unknown list ignored", "id", id)
		return nil
	}

	gone, delErr := s.deleteAll(ctx, plan)

	s.mu.Lock()
	changed := s.prune(gone)
	s.mu.Unlock()

	if len(gone) > 0 {
		s.notify(Event{Kind: EventDeleted, Table: gateway.Lists, ID: id})
	}
	return s.settle(ctx, delErr, changed)
}

// ReorderLists moves the list at oldIndex to newIndex within the board. The
// new order is applied locally before it is persisted and is undone if the
// position writes fail.
func (s *Store) ReorderLists(ctx context.Context, boardID string, oldIndex, newIndex int) error {
	if err := s.ready(); err != nil {
		return err
	}
	unlock := s.lock(boardKey(boardID))
	defer unlock()

	s.mu.Lock()
	i := s.boardIndex(boardID)
	if i < 0 {
		s.mu.Unlock()
		s.log.Debug("reorder on unknown board ignored", "board_id", boardID)
		return nil
	}
	board := s.boards[i]
	reordered, moved := Reorder(board.Lists, oldIndex, newIndex)
	if !moved {
		s.mu.Unlock()
		return nil
	}
	before := snapshotOrder(board.Lists)
	board.Lists = reordered
	changed := Renumber(board.Lists)
	s.mu.Unlock()

	s.notify(Event{Kind: EventMoved, Table: gateway.Lists, ID: reordered[clamp(newIndex, 0, len(reordered)-1)].ID})

	previous := make(map[string]gateway.Row, len(changed))
	for id := range changed {
		previous[id] = gateway.Row{"position": before.pos[id]}
	}
	return s.persistOrder(ctx, gateway.Lists, positionPatches(changed), previous, func() {
		board.Lists = before.restore()
	})
}
