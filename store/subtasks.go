package store

import (
	"cmp"
	"slices"
	"time"

	"github.com/CrowderSoup/taskboard/database"
)

// Children returns the items directly under parentID, ordered by position.
// An empty parentID selects the roots.
func Children(items []*database.ChecklistItem, parentID string) []*database.ChecklistItem {
	var out []*database.ChecklistItem
	for _, it := range items {
		if it.HasParent(parentID) {
			out = append(out, it)
		}
	}
	slices.SortStableFunc(out, func(a, b *database.ChecklistItem) int {
		return cmp.Compare(a.Position, b.Position)
	})
	return out
}

// Roots returns the top-level items, ordered by position.
func Roots(items []*database.ChecklistItem) []*database.ChecklistItem {
	return Children(items, "")
}

// Walk visits the forest depth first, parents before children. Returning
// false from fn skips that item's subtree.
func Walk(items []*database.ChecklistItem, fn func(item *database.ChecklistItem, depth int) bool) {
	var visit func(parentID string, depth int)
	visit = func(parentID string, depth int) {
		for _, it := range Children(items, parentID) {
			if fn(it, depth) {
				visit(it.ID, depth+1)
			}
		}
	}
	visit("", 0)
}

// Descendants returns every item below id, parents before children.
func Descendants(items []*database.ChecklistItem, id string) []*database.ChecklistItem {
	var out []*database.ChecklistItem
	for _, child := range Children(items, id) {
		out = append(out, child)
		out = append(out, Descendants(items, child.ID)...)
	}
	return out
}

// Progress counts completed items over every item of the card, at any depth.
func Progress(card *database.Card) (completed, total int) {
	for _, it := range card.Checklist {
		total++
		if it.Completed {
			completed++
		}
	}
	return completed, total
}

// DueCard is a card with a due date plus where it lives.
type DueCard struct {
	Card    *database.Card
	ListID  string
	BoardID string
}

// CardsDueBetween returns copies of the cards due within [from, to],
// soonest first.
func (s *Store) CardsDueBetween(from, to time.Time) []DueCard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []DueCard
	for _, b := range s.boards {
		for _, l := range b.Lists {
			for _, c := range l.Cards {
				if c.DueDate == nil || c.DueDate.Before(from) || c.DueDate.After(to) {
					continue
				}
				out = append(out, DueCard{Card: c.Clone(), ListID: l.ID, BoardID: b.ID})
			}
		}
	}
	slices.SortStableFunc(out, func(a, b DueCard) int {
		return a.Card.DueDate.Compare(*b.Card.DueDate)
	})
	return out
}
