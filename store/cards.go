package store

import (
	"context"
	"time"

	"github.com/CrowderSoup/taskboard/database"
	"github.com/CrowderSoup/taskboard/gateway"
)

// CardPatch holds the fields UpdateCard may change. Nil fields are left
// alone; ClearDueDate removes the due date.
type CardPatch struct {
	Title        *string
	Description  *string
	DueDate      *time.Time
	ClearDueDate bool
}

func (p CardPatch) row() (gateway.Row, error) {
	row := gateway.Row{}
	if p.Title != nil {
		title, err := required("title", *p.Title)
		if err != nil {
			return nil, err
		}
		row["title"] = title
	}
	if p.Description != nil {
		row["description"] = *p.Description
	}
	switch {
	case p.ClearDueDate:
		row["due_date"] = nil
	case p.DueDate != nil:
		row["due_date"] = gateway.FormatTime(*p.DueDate)
	}
	return row, nil
}

func (p CardPatch) apply(c *database.Card, row gateway.Row) {
	if v, ok := row["title"].(string); ok {
		c.Title = v
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	switch {
	case p.ClearDueDate:
		c.DueDate = nil
	case p.DueDate != nil:
		d := *p.DueDate
		c.DueDate = &d
	}
}

// CreateCard appends a card to the list. dueDate may be nil.
func (s *Store) CreateCard(ctx context.Context, listID, title, description string, dueDate *time.Time) (*database.Card, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	title, err := required("title", title)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(listKey(listID))
	defer unlock()

	s.mu.RLock()
	position := -1
	if _, l := s.findList(listID); l != nil {
		position = len(l.Cards)
	}
	s.mu.RUnlock()
	if position < 0 {
		return nil, ErrNotFound
	}

	row := gateway.Row{
		"list_id":     listID,
		"title":       title,
		"description": description,
		"position":    position,
		"due_date":    nil,
	}
	if dueDate != nil {
		row["due_date"] = gateway.FormatTime(*dueDate)
	}
	created, err := s.gw.Insert(ctx, gateway.Cards, row)
	if err != nil {
		s.log.Error("failed to create card", "list_id", listID, "error", err)
		return nil, persistErr("insert", gateway.Cards, "", err)
	}
	card := &database.Card{}
	if err := gateway.Decode(created, card); err != nil {
		return nil, persistErr("insert", gateway.Cards, created.ID(), err)
	}
	card.Checklist = []*database.ChecklistItem{}

	s.mu.Lock()
	if _, l := s.findList(listID); l != nil {
		l.Cards = append(l.Cards, card)
	}
	out := card.Clone()
	s.mu.Unlock()

	s.notify(Event{Kind: EventCreated, Table: gateway.Cards, ID: card.ID})
	return out, nil
}

// UpdateCard patches a card's title, description or due date. It never
// changes the card's list or position.
func (s *Store) UpdateCard(ctx context.Context, id string, patch CardPatch) error {
	if err := s.ready(); err != nil {
		return err
	}
	row, err := patch.row()
	if err != nil {
		return err
	}
	if len(row) == 0 {
		return nil
	}
	unlock := s.lock(cardKey(id))
	defer unlock()

	s.mu.RLock()
	_, card := s.findCard(id)
	s.mu.RUnlock()
	if card == nil {
		s.log.Debug("update of unknown card ignored", "id", id)
		return nil
	}

	if err := s.gw.Update(ctx, gateway.Cards, id, row); err != nil {
		s.log.Error("failed to update card", "id", id, "error", err)
		return persistErr("update", gateway.Cards, id, err)
	}

	s.mu.Lock()
	if _, c := s.findCard(id); c != nil {
		patch.apply(c, row)
	}
	s.mu.Unlock()
	s.notify(Event{Kind: EventUpdated, Table: gateway.Cards, ID: id})
	return nil
}

// DeleteCard removes a card and its checklist, then closes the gap in the
// list's card positions.
func (s *Store) DeleteCard(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	unlock := s.lockFor(func() []string {
		if l, _ := s.findCard(id); l != nil {
			return []string{listKey(l.ID), cardKey(id)}
		}
		return nil
	})
	defer unlock()

	s.mu.RLock()
	_, card := s.findCard(id)
	var plan []deletion
	if card != nil {
		plan = planCard(card)
	}
	s.mu.RUnlock()
	if card == nil {
		s.log.Debug("delete of unknown card ignored", "id", id)
		return nil
	}

	gone, delErr := s.deleteAll(ctx, plan)

	s.mu.Lock()
	changed := s.prune(gone)
	s.mu.Unlock()

	if len(gone) > 0 {
		s.notify(Event{Kind: EventDeleted, Table: gateway.Cards, ID: id})
	}
	return s.settle(ctx, delErr, changed)
}

// MoveCard places a card at newPosition in targetListID. Moving within the
// card's own list is a plain reorder.
func (s *Store) MoveCard(ctx context.Context, cardID, targetListID string, newPosition int) error {
	if err := s.ready(); err != nil {
		return err
	}
	unlock := s.lockFor(func() []string {
		if l, _ := s.findCard(cardID); l != nil {
			return []string{listKey(l.ID), listKey(targetListID)}
		}
		return nil
	})
	defer unlock()

	// The index is read only now that no other reorder can shift it.
	s.mu.Lock()
	source, card := s.findCard(cardID)
	if card == nil {
		s.mu.Unlock()
		s.log.Debug("move of unknown card ignored", "id", cardID)
		return nil
	}
	return s.reorderCards(ctx, source.ID, targetListID, indexOf(source.Cards, cardID), newPosition)
}

// ReorderCards moves the card at oldIndex of sourceListID to destIndex of
// destListID. The move is applied locally first; both lists are renumbered
// and the card's list_id is updated when the lists differ. If persisting
// fails the previous order is restored.
func (s *Store) ReorderCards(ctx context.Context, sourceListID, destListID string, oldIndex, destIndex int) error {
	if err := s.ready(); err != nil {
		return err
	}
	unlock := s.lock(listKey(sourceListID), listKey(destListID))
	defer unlock()

	s.mu.Lock()
	return s.reorderCards(ctx, sourceListID, destListID, oldIndex, destIndex)
}

// reorderCards runs with both list locks held and s.mu locked; it releases
// s.mu before persisting.
func (s *Store) reorderCards(ctx context.Context, sourceListID, destListID string, oldIndex, destIndex int) error {
	_, src := s.findList(sourceListID)
	_, dst := s.findList(destListID)
	if src == nil || dst == nil || oldIndex < 0 || oldIndex >= len(src.Cards) {
		s.mu.Unlock()
		s.log.Debug("card reorder target vanished", "source", sourceListID, "dest", destListID, "index", oldIndex)
		return nil
	}

	if src == dst {
		reordered, moved := Reorder(src.Cards, oldIndex, destIndex)
		if !moved {
			s.mu.Unlock()
			return nil
		}
		movedID := src.Cards[oldIndex].ID
		before := snapshotOrder(src.Cards)
		src.Cards = reordered
		changed := Renumber(src.Cards)
		s.mu.Unlock()

		s.notify(Event{Kind: EventMoved, Table: gateway.Cards, ID: movedID})

		previous := make(map[string]gateway.Row, len(changed))
		for id := range changed {
			previous[id] = gateway.Row{"position": before.pos[id]}
		}
		return s.persistOrder(ctx, gateway.Cards, positionPatches(changed), previous, func() {
			src.Cards = before.restore()
		})
	}

	srcBefore := snapshotOrder(src.Cards)
	dstBefore := snapshotOrder(dst.Cards)
	var card *database.Card
	src.Cards, card = removeAt(src.Cards, oldIndex)
	card.ListID = dst.ID
	dst.Cards = insertAt(dst.Cards, destIndex, card)
	patches := positionPatches(Renumber(src.Cards))
	for id, p := range Renumber(dst.Cards) {
		patches[id] = gateway.Row{"position": p}
	}
	patches[card.ID] = gateway.Row{"list_id": dst.ID, "position": card.Position}
	s.mu.Unlock()

	s.notify(Event{Kind: EventMoved, Table: gateway.Cards, ID: card.ID})

	previous := make(map[string]gateway.Row, len(patches))
	for id := range patches {
		if p, ok := srcBefore.pos[id]; ok {
			previous[id] = gateway.Row{"position": p}
		} else {
			previous[id] = gateway.Row{"position": dstBefore.pos[id]}
		}
	}
	previous[card.ID] = gateway.Row{"list_id": src.ID, "position": srcBefore.pos[card.ID]}

	return s.persistOrder(ctx, gateway.Cards, patches, previous, func() {
		card.ListID = src.ID
		src.Cards = srcBefore.restore()
		dst.Cards = dstBefore.restore()
	})
}
