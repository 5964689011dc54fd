package store

import (
	"context"

	"github.com/CrowderSoup/taskboard/database"
	"github.com/CrowderSoup/taskboard/gateway"
)

func findItem(card *database.Card, id string) *database.ChecklistItem {
	if card == nil {
		return nil
	}
	for _, it := range card.Checklist {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// AddChecklistItem adds an item to the card, under parentID when it is not
// empty. The position counts only the siblings that share parentID.
func (s *Store) AddChecklistItem(ctx context.Context, cardID, text, parentID string) (*database.ChecklistItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	text, err := required("text", text)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(cardKey(cardID))
	defer unlock()

	s.mu.RLock()
	_, card := s.findCard(cardID)
	position := -1
	if card != nil && (parentID == "" || findItem(card, parentID) != nil) {
		position = len(Children(card.Checklist, parentID))
	}
	s.mu.RUnlock()
	if position < 0 {
		return nil, ErrNotFound
	}

	row := gateway.Row{
		"card_id":   cardID,
		"parent_id": nil,
		"text":      text,
		"completed": false,
		"position":  position,
	}
	if parentID != "" {
		row["parent_id"] = parentID
	}
	created, err := s.gw.Insert(ctx, gateway.ChecklistItems, row)
	if err != nil {
		s.log.Error("failed to add checklist item", "card_id", cardID, "error", err)
		return nil, persistErr("insert", gateway.ChecklistItems, "", err)
	}
	item := &database.ChecklistItem{}
	if err := gateway.Decode(created, item); err != nil {
		return nil, persistErr("insert", gateway.ChecklistItems, created.ID(), err)
	}

	s.mu.Lock()
	if _, c := s.findCard(cardID); c != nil {
		c.Checklist = append(c.Checklist, item)
	}
	out := item.Clone()
	s.mu.Unlock()

	s.notify(Event{Kind: EventCreated, Table: gateway.ChecklistItems, ID: item.ID})
	return out, nil
}

// ToggleChecklistItem flips an item's completed flag. Parents and children
// are left as they are.
func (s *Store) ToggleChecklistItem(ctx context.Context, cardID, itemID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	unlock := s.lock(cardKey(cardID))
	defer unlock()

	s.mu.RLock()
	_, card := s.findCard(cardID)
	item := findItem(card, itemID)
	completed := false
	if item != nil {
		completed = !item.Completed
	}
	s.mu.RUnlock()
	if item == nil {
		s.log.Debug("toggle of unknown checklist item ignored", "card_id", cardID, "id", itemID)
		return nil
	}

	if err := s.gw.Update(ctx, gateway.ChecklistItems, itemID, gateway.Row{"completed": completed}); err != nil {
		s.log.Error("failed to toggle checklist item", "id", itemID, "error", err)
		return persistErr("update", gateway.ChecklistItems, itemID, err)
	}

	s.mu.Lock()
	_, card = s.findCard(cardID)
	if it := findItem(card, itemID); it != nil {
		it.Completed = completed
	}
	s.mu.Unlock()
	s.notify(Event{Kind: EventUpdated, Table: gateway.ChecklistItems, ID: itemID})
	return nil
}

// DeleteChecklistItem removes an item together with every item below it,
// then closes the gap among its former siblings.
func (s *Store) DeleteChecklistItem(ctx context.Context, cardID, itemID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	unlock := s.lock(cardKey(cardID))
	defer unlock()

	s.mu.RLock()
	_, card := s.findCard(cardID)
	item := findItem(card, itemID)
	var plan []deletion
	if item != nil {
		plan = planItem(card.Checklist, item)
	}
	s.mu.RUnlock()
	if item == nil {
		s.log.Debug("delete of unknown checklist item ignored", "card_id", cardID, "id", itemID)
		return nil
	}

	gone, delErr := s.deleteAll(ctx, plan)

	s.mu.Lock()
	changed := s.prune(gone)
	s.mu.Unlock()

	if len(gone) > 0 {
		s.notify(Event{Kind: EventDeleted, Table: gateway.ChecklistItems, ID: itemID})
	}
	return s.settle(ctx, delErr, changed)
}
