package store

import (
	"context"
	"slices"

	"github.com/CrowderSoup/taskboard/gateway"
)

// orderSnapshot remembers a sibling slice and its positions so an optimistic
// reorder can be undone.
type orderSnapshot[T Sibling] struct {
	items []T
	pos   map[string]int
}

func snapshotOrder[T Sibling](items []T) orderSnapshot[T] {
	pos := make(map[string]int, len(items))
	for _, it := range items {
		pos[it.GetID()] = it.GetPosition()
	}
	return orderSnapshot[T]{items: slices.Clone(items), pos: pos}
}

// restore resets positions and returns the original slice order.
func (o orderSnapshot[T]) restore() []T {
	for _, it := range o.items {
		it.SetPosition(o.pos[it.GetID()])
	}
	return o.items
}

// persistOrder writes patches for a reorder that is already applied locally.
// On failure it calls rollback, then puts back the rows that had already
// been written using their entries in previous.
func (s *Store) persistOrder(ctx context.Context, table gateway.Table, patches, previous map[string]gateway.Row, rollback func()) error {
	written, err := gateway.UpdateAll(ctx, s.gw, table, patches)
	if err == nil {
		return nil
	}
	s.log.Error("failed to persist order, rolling back", "table", table, "error", err)

	s.mu.Lock()
	rollback()
	s.mu.Unlock()
	s.notify(Event{Kind: EventRolledBack, Table: table})

	if len(written) > 0 {
		undo := make(map[string]gateway.Row, len(written))
		for _, id := range written {
			undo[id] = previous[id]
		}
		if _, cerr := gateway.UpdateAll(context.WithoutCancel(ctx), s.gw, table, undo); cerr != nil {
			s.log.Error("failed to restore persisted order", "table", table, "error", cerr)
		}
	}
	return persistErr("update", table, "", err)
}
