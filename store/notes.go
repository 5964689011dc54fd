package store

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/CrowderSoup/taskboard/database"
	"github.com/CrowderSoup/taskboard/gateway"
)

// NotePatch holds the fields UpdateNote may change.
type NotePatch struct {
	Title   *string
	Content *string
}

// CreateNote stores a note and puts it first in the list. A note needs a
// title or some content.
func (s *Store) CreateNote(ctx context.Context, title, content string) (*database.Note, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" && strings.TrimSpace(content) == "" {
		return nil, &ValidationError{Field: "title", Message: "title or content is required"}
	}
	unlock := s.lock(notesKey)
	defer unlock()

	row, err := s.gw.Insert(ctx, gateway.Notes, gateway.Row{"title": title, "content": content})
	if err != nil {
		s.log.Error("failed to create note", "error", err)
		return nil, persistErr("insert", gateway.Notes, "", err)
	}
	note := &database.Note{}
	if err := gateway.Decode(row, note); err != nil {
		return nil, persistErr("insert", gateway.Notes, row.ID(), err)
	}

	s.mu.Lock()
	s.notes = slices.Insert(s.notes, 0, note)
	out := *note
	s.mu.Unlock()

	s.notify(Event{Kind: EventCreated, Table: gateway.Notes, ID: note.ID})
	return &out, nil
}

// UpdateNote patches a note's title or content.
func (s *Store) UpdateNote(ctx context.Context, id string, patch NotePatch) error {
	if err := s.ready(); err != nil {
		return err
	}
	row := gateway.Row{}
	if patch.Title != nil {
		row["title"] = strings.TrimSpace(*patch.Title)
	}
	if patch.Content != nil {
		row["content"] = *patch.Content
	}
	if len(row) == 0 {
		return nil
	}
	unlock := s.lock(notesKey)
	defer unlock()

	s.mu.RLock()
	i := s.noteIndex(id)
	s.mu.RUnlock()
	if i < 0 {
		s.log.Debug("update of unknown note ignored", "id", id)
		return nil
	}

	if err := s.gw.Update(ctx, gateway.Notes, id, row); err != nil {
		s.log.Error("failed to update note", "id", id, "error", err)
		return persistErr("update", gateway.Notes, id, err)
	}

	s.mu.Lock()
	if i := s.noteIndex(id); i >= 0 {
		if v, ok := row["title"].(string); ok {
			s.notes[i].Title = v
		}
		if patch.Content != nil {
			s.notes[i].Content = *patch.Content
		}
	}
	s.mu.Unlock()
	s.notify(Event{Kind: EventUpdated, Table: gateway.Notes, ID: id})
	return nil
}

// DeleteNote removes a note.
func (s *Store) DeleteNote(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	unlock := s.lock(notesKey)
	defer unlock()

	s.mu.RLock()
	i := s.noteIndex(id)
	s.mu.RUnlock()
	if i < 0 {
		s.log.Debug("delete of unknown note ignored", "id", id)
		return nil
	}

	if err := s.gw.Delete(ctx, gateway.Notes, id); err != nil && !errors.Is(err, gateway.ErrNotFound) {
		s.log.Error("failed to delete note", "id", id, "error", err)
		return persistErr("delete", gateway.Notes, id, err)
	}

	s.mu.Lock()
	if i := s.noteIndex(id); i >= 0 {
		s.notes = slices.Delete(s.notes, i, i+1)
	}
	s.mu.Unlock()
	s.notify(Event{Kind: EventDeleted, Table: gateway.Notes, ID: id})
	return nil
}

func (s *Store) noteIndex(id string) int {
	return slices.IndexFunc(s.notes, func(n *database.Note) bool { return n.ID == id })
}
