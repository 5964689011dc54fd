package store

import (
	"context"
	"errors"
	"maps"

	"github.com/CrowderSoup/taskboard/database"
	"github.com/CrowderSoup/taskboard/gateway"
)

type deletion struct {
	table gateway.Table
	id    string
}

// Deletion plans list children before their parents so a gateway without
// cascading deletes never sees a dangling reference.

func planBoard(b *database.Board) []deletion {
	var plan []deletion
	for _, l := range b.Lists {
		plan = append(plan, planList(l)...)
	}
	return append(plan, deletion{gateway.Boards, b.ID})
}

func planList(l *database.List) []deletion {
	var plan []deletion
	for _, c := range l.Cards {
		plan = append(plan, planCard(c)...)
	}
	return append(plan, deletion{gateway.Lists, l.ID})
}

func planCard(c *database.Card) []deletion {
	var plan []deletion
	seen := make(map[string]bool, len(c.Checklist))
	for _, root := range Roots(c.Checklist) {
		for _, d := range planItem(c.Checklist, root) {
			seen[d.id] = true
			plan = append(plan, d)
		}
	}
	// Items whose parent is missing are unreachable from the roots.
	for _, it := range c.Checklist {
		if !seen[it.ID] {
			plan = append(plan, deletion{gateway.ChecklistItems, it.ID})
		}
	}
	return append(plan, deletion{gateway.Cards, c.ID})
}

func planItem(items []*database.ChecklistItem, item *database.ChecklistItem) []deletion {
	var plan []deletion
	for _, child := range Children(items, item.ID) {
		plan = append(plan, planItem(items, child)...)
	}
	return append(plan, deletion{gateway.ChecklistItems, item.ID})
}

// deleteAll runs plan in order and stops at the first failure. A row the
// gateway no longer has counts as deleted. The returned set holds every id
// that is gone remotely.
func (s *Store) deleteAll(ctx context.Context, plan []deletion) (map[string]bool, error) {
	done := make(map[string]bool, len(plan))
	for _, d := range plan {
		err := s.gw.Delete(ctx, d.table, d.id)
		if err != nil && !errors.Is(err, gateway.ErrNotFound) {
			s.log.Error("failed to delete row", "table", d.table, "id", d.id, "error", err)
			return done, persistErr("delete", d.table, d.id, err)
		}
		done[d.id] = true
	}
	return done, nil
}

// prune drops every entity in gone from the local tree and closes the gaps
// left in each sibling set it shrank. It returns the new positions by table.
// Requires s.mu.
func (s *Store) prune(gone map[string]bool) map[gateway.Table]map[string]int {
	changed := make(map[gateway.Table]map[string]int)
	note := func(table gateway.Table, c map[string]int) {
		if len(c) == 0 {
			return
		}
		if changed[table] == nil {
			changed[table] = make(map[string]int, len(c))
		}
		maps.Copy(changed[table], c)
	}
	if len(gone) == 0 {
		return changed
	}

	var shrunk bool
	if s.boards, shrunk = filterGone(s.boards, gone); shrunk {
		note(gateway.Boards, Renumber(s.boards))
	}
	for _, b := range s.boards {
		if b.Lists, shrunk = filterGone(b.Lists, gone); shrunk {
			note(gateway.Lists, Renumber(b.Lists))
		}
		for _, l := range b.Lists {
			if l.Cards, shrunk = filterGone(l.Cards, gone); shrunk {
				note(gateway.Cards, Renumber(l.Cards))
			}
			for _, c := range l.Cards {
				if c.Checklist, shrunk = filterGone(c.Checklist, gone); shrunk {
					note(gateway.ChecklistItems, renumberChecklist(c.Checklist))
				}
			}
		}
	}
	return changed
}

func filterGone[T Sibling](items []T, gone map[string]bool) ([]T, bool) {
	out := items[:0:0]
	for _, it := range items {
		if !gone[it.GetID()] {
			out = append(out, it)
		}
	}
	return out, len(out) != len(items)
}

// renumberChecklist renumbers each (parent) sibling set of a card's items.
func renumberChecklist(items []*database.ChecklistItem) map[string]int {
	changed := make(map[string]int)
	seen := make(map[string]bool)
	for _, it := range items {
		parent := ""
		if it.ParentID != nil {
			parent = *it.ParentID
		}
		if seen[parent] {
			continue
		}
		seen[parent] = true
		maps.Copy(changed, Renumber(Children(items, parent)))
	}
	return changed
}

// positionPatches turns a renumber result into gateway patches.
func positionPatches(changed map[string]int) map[string]gateway.Row {
	patches := make(map[string]gateway.Row, len(changed))
	for id, p := range changed {
		patches[id] = gateway.Row{"position": p}
	}
	return patches
}

// writePositions persists the survivors' positions after a delete. The local
// tree is already renumbered; on failure the remote order is still the same,
// only with a gap.
func (s *Store) writePositions(ctx context.Context, changed map[gateway.Table]map[string]int) error {
	for _, table := range gateway.Tables {
		if len(changed[table]) == 0 {
			continue
		}
		if _, err := gateway.UpdateAll(ctx, s.gw, table, positionPatches(changed[table])); err != nil {
			s.log.Error("failed to renumber siblings", "table", table, "error", err)
			return persistErr("update", table, "", err)
		}
	}
	return nil
}

// settle finishes a delete: the position writes are attempted even when the
// delete itself stopped part way, and the delete error wins.
func (s *Store) settle(ctx context.Context, delErr error, changed map[gateway.Table]map[string]int) error {
	posErr := s.writePositions(ctx, changed)
	if delErr != nil {
		return delErr
	}
	return posErr
}
