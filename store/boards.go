package store

import (
	"context"
	"strings"

	"github.com/CrowderSoup/taskboard/database"
	"github.com/CrowderSoup/taskboard/gateway"
)

func required(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", &ValidationError{Field: field, Message: "must not be blank"}
	}
	return value, nil
}

// CreateBoard appends a new empty board and makes it active.
func (s *Store) CreateBoard(ctx context.Context, name string) (*database.Board, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	name, err := required("name", name)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(boardsKey)
	defer unlock()

	s.mu.RLock()
	position := len(s.boards)
	s.mu.RUnlock()

	row, err := s.gw.Insert(ctx, gateway.Boards, gateway.Row{"name": name, "position": position})
	if err != nil {
		s.log.Error("failed to create board", "name", name, "error", err)
		return nil, persistErr("insert", gateway.Boards, "", err)
	}
	board := &database.Board{}
	if err := gateway.Decode(row, board); err != nil {
		return nil, persistErr("insert", gateway.Boards, row.ID(), err)
	}
	board.Lists = []*database.List{}

	s.mu.Lock()
	s.boards = append(s.boards, board)
	s.active = board.ID
	out := board.Clone()
	s.mu.Unlock()

	s.notify(
		Event{Kind: EventCreated, Table: gateway.Boards, ID: board.ID},
		Event{Kind: EventActiveChanged, Table: gateway.Boards, ID: board.ID},
	)
	return out, nil
}

// RenameBoard changes a board's name.
func (s *Store) RenameBoard(ctx context.Context, id, name string) error {
	if err := s.ready(); err != nil {
		return err
	}
	name, err := required("name", name)
	if err != nil {
		return err
	}
	unlock := s.lock(boardKey(id))
	defer unlock()

	s.mu.RLock()
	exists := s.boardIndex(id) >= 0
	s.mu.RUnlock()
	if !exists {
		s.log.Debug("rename of unknown board ignored", "id", id)
		return nil
	}

	if err := s.gw.Update(ctx, gateway.Boards, id, gateway.Row{"name": name}); err != nil {
		s.log.Error("failed to rename board", "id", id, "error", err)
		return persistErr("update", gateway.Boards, id, err)
	}

	s.mu.Lock()
	if i := s.boardIndex(id); i >= 0 {
		s.boards[i].Name = name
	}
	s.mu.Unlock()
	s.notify(Event{Kind: EventUpdated, Table: gateway.Boards, ID: id})
	return nil
}

// DeleteBoard removes a board with all of its lists, cards and checklist
// items, then closes the gap in board positions. When the deleted board was
// active, the first remaining board becomes active.
func (s *Store) DeleteBoard(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	unlock := s.lockFor(func() []string {
		keys := []string{boardsKey, boardKey(id)}
		if i := s.boardIndex(id); i >= 0 {
			for _, l := range s.boards[i].Lists {
				keys = append(keys, listKeys(l)...)
			}
		}
		return keys
	})
	defer unlock()

	s.mu.RLock()
	var plan []deletion
	if i := s.boardIndex(id); i >= 0 {
		plan = planBoard(s.boards[i])
	}
	s.mu.RUnlock()
	if plan == nil {
		s.log.Debug("delete of unknown board ignored", "id", id)
		return nil
	}

	gone, delErr := s.deleteAll(ctx, plan)

	s.mu.Lock()
	changed := s.prune(gone)
	activeChanged := false
	if gone[id] && s.active == id {
		s.active = ""
		if len(s.boards) > 0 {
			s.active = s.boards[0].ID
		}
		activeChanged = true
	}
	active := s.active
	s.mu.Unlock()

	if len(gone) > 0 {
		events := []Event{{Kind: EventDeleted, Table: gateway.Boards, ID: id}}
		if activeChanged {
			events = append(events, Event{Kind: EventActiveChanged, Table: gateway.Boards, ID: active})
		}
		s.notify(events...)
	}

	return s.settle(ctx, delErr, changed)
}
