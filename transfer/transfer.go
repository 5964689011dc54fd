package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/CrowderSoup/taskboard/database"
	"github.com/CrowderSoup/taskboard/store"
)

// Source is read by Export.
type Source interface {
	Boards() []*database.Board
	Notes() []database.Note
}

// Target is written by Import through its ordinary create operations.
type Target interface {
	Source
	CreateBoard(ctx context.Context, name string) (*database.Board, error)
	DeleteBoard(ctx context.Context, id string) error
	CreateList(ctx context.Context, boardID, name string) (*database.List, error)
	CreateCard(ctx context.Context, listID, title, description string, dueDate *time.Time) (*database.Card, error)
	AddChecklistItem(ctx context.Context, cardID, text, parentID string) (*database.ChecklistItem, error)
	ToggleChecklistItem(ctx context.Context, cardID, itemID string) error
	CreateNote(ctx context.Context, title, content string) (*database.Note, error)
	DeleteNote(ctx context.Context, id string) error
}

// Export dumps the live tree.
func Export(src Source, now time.Time) *Document {
	doc := &Document{
		Version:    Version,
		ExportedAt: now.UTC(),
		Boards:     []Board{},
	}
	for _, b := range src.Boards() {
		board := Board{Name: b.Name}
		for _, l := range b.Lists {
			list := List{Name: l.Name}
			for _, c := range l.Cards {
				list.Cards = append(list.Cards, Card{
					Title:       c.Title,
					Description: c.Description,
					DueDate:     c.DueDate,
					Checklist:   exportItems(c.Checklist, ""),
				})
			}
			board.Lists = append(board.Lists, list)
		}
		doc.Boards = append(doc.Boards, board)
	}
	for _, n := range src.Notes() {
		doc.Notes = append(doc.Notes, Note{Title: n.Title, Content: n.Content})
	}
	return doc
}

func exportItems(items []*database.ChecklistItem, parentID string) []Item {
	var out []Item
	for _, it := range store.Children(items, parentID) {
		out = append(out, Item{
			Text:      it.Text,
			Completed: it.Completed,
			Children:  exportItems(items, it.ID),
		})
	}
	return out
}

// Options controls Import.
type Options struct {
	// Replace deletes every existing board and note first. Otherwise the
	// document is merged in after the existing data.
	Replace bool
	Logger  *slog.Logger
}

// Stats counts what Import created.
type Stats struct {
	Boards int
	Lists  int
	Cards  int
	Items  int
	Notes  int
}

// Import rebuilds doc top-down, one entity at a time. A failure part way
// through leaves whatever was already created in place.
func Import(ctx context.Context, dst Target, doc *Document, opts Options) (Stats, error) {
	var stats Stats
	if err := doc.Validate(); err != nil {
		return stats, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	if opts.Replace {
		if err := clearAll(ctx, dst); err != nil {
			return stats, err
		}
	}

	for _, b := range doc.Boards {
		board, err := dst.CreateBoard(ctx, b.Name)
		if err != nil {
			return stats, fmt.Errorf("failed to import board %q: %w", b.Name, err)
		}
		stats.Boards++
		for _, l := range b.Lists {
			list, err := dst.CreateList(ctx, board.ID, l.Name)
			if err != nil {
				return stats, fmt.Errorf("failed to import list %q: %w", l.Name, err)
			}
			stats.Lists++
			for _, c := range l.Cards {
				card, err := dst.CreateCard(ctx, list.ID, c.Title, c.Description, c.DueDate)
				if err != nil {
					return stats, fmt.Errorf("failed to import card %q: %w", c.Title, err)
				}
				stats.Cards++
				n, err := importItems(ctx, dst, card.ID, "", c.Checklist)
				stats.Items += n
				if err != nil {
					return stats, err
				}
			}
		}
	}

	// Notes are prepended on create, so the oldest goes in first.
	for i := len(doc.Notes) - 1; i >= 0; i-- {
		n := doc.Notes[i]
		if _, err := dst.CreateNote(ctx, n.Title, n.Content); err != nil {
			return stats, fmt.Errorf("failed to import note %q: %w", n.Title, err)
		}
		stats.Notes++
	}

	log.Info("import finished", "boards", stats.Boards, "lists", stats.Lists, "cards", stats.Cards, "items", stats.Items, "notes", stats.Notes)
	return stats, nil
}

func importItems(ctx context.Context, dst Target, cardID, parentID string, items []Item) (int, error) {
	created := 0
	for _, it := range items {
		item, err := dst.AddChecklistItem(ctx, cardID, it.Text, parentID)
		if err != nil {
			return created, fmt.Errorf("failed to import checklist item %q: %w", it.Text, err)
		}
		created++
		if it.Completed {
			if err := dst.ToggleChecklistItem(ctx, cardID, item.ID); err != nil {
				return created, fmt.Errorf("failed to complete checklist item %q: %w", it.Text, err)
			}
		}
		n, err := importItems(ctx, dst, cardID, item.ID, it.Children)
		created += n
		if err != nil {
			return created, err
		}
	}
	return created, nil
}

func clearAll(ctx context.Context, dst Target) error {
	for _, b := range dst.Boards() {
		if err := dst.DeleteBoard(ctx, b.ID); err != nil {
			return fmt.Errorf("failed to clear board %q: %w", b.Name, err)
		}
	}
	for _, n := range dst.Notes() {
		if err := dst.DeleteNote(ctx, n.ID); err != nil {
			return fmt.Errorf("failed to clear note %q: %w", n.Title, err)
		}
	}
	return nil
}
