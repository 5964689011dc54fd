package database

import "time"

// Board is the top-level container of lists.
type Board struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Position int     `json:"position"`
	Lists    []*List `json:"lists"`
}

// List is an ordered column of cards within a board.
type List struct {
	ID       string  `json:"id"`
	BoardID  string  `json:"board_id"`
	Name     string  `json:"name"`
	Position int     `json:"position"`
	Cards    []*Card `json:"cards"`
}

// Card is a task within a list.
type Card struct {
	ID          string           `json:"id"`
	ListID      string           `json:"list_id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	DueDate     *time.Time       `json:"due_date,omitempty"`
	Position    int              `json:"position"`
	Checklist   []*ChecklistItem `json:"checklist"`
}

// ChecklistItem is a subtask of a card. Items with a ParentID form a forest
// under the card; positions are scoped to (CardID, ParentID).
type ChecklistItem struct {
	ID        string  `json:"id"`
	CardID    string  `json:"card_id"`
	ParentID  *string `json:"parent_id"`
	Text      string  `json:"text"`
	Completed bool    `json:"completed"`
	Position  int     `json:"position"`
}

// Note is a free-standing note.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (b *Board) GetID() string { return b.ID }
func (b *Board) GetPosition() int { return b.Position }
func (b *Board) SetPosition(p int) { b.Position = p }
func (l *List) GetID() string { return l.ID }
func (l *List) GetPosition() int { return l.Position }
func (l *List) SetPosition(p int) { l.Position = p }
func (c *Card) GetID() string { return c.ID }
func (c *Card) GetPosition() int { return c.Position }
func (c *Card) SetPosition(p int) { c.Position = p }
func (i *ChecklistItem) GetID() string { return i.ID }
func (i *ChecklistItem) GetPosition() int { return i.Position }
func (i *ChecklistItem) SetPosition(p int) { i.Position = p }

// IsRoot reports whether the item has no parent.
func (i *ChecklistItem) IsRoot() bool {
	return i.ParentID == nil || *i.ParentID == ""
}

// HasParent reports whether the item hangs directly under parentID. An empty
// parentID means the root level.
func (i *ChecklistItem) HasParent(parentID string) bool {
	if parentID == "" {
		return i.IsRoot()
	}
	return i.ParentID != nil && *i.ParentID == parentID
}

// Clone returns a deep copy of the board and everything under it.
func (b *Board) Clone() *Board {
	out := *b
	out.Lists = make([]*List, len(b.Lists))
	for i, l := range b.Lists {
		out.Lists[i] = l.Clone()
	}
	return &out
}

// Clone returns a deep copy of the list and its cards.
func (l *List) Clone() *List {
	out := *l
	out.Cards = make([]*Card, len(l.Cards))
	for i, c := range l.Cards {
		out.Cards[i] = c.Clone()
	}
	return &out
}

// Clone returns a deep copy of the card and its checklist.
func (c *Card) Clone() *Card {
	out := *c
	if c.DueDate != nil {
		d := *c.DueDate
		out.DueDate = &d
	}
	out.Checklist = make([]*ChecklistItem, len(c.Checklist))
	for i, item := range c.Checklist {
		out.Checklist[i] = item.Clone()
	}
	return &out
}

// Clone returns a copy of the item.
func (i *ChecklistItem) Clone() *ChecklistItem {
	out := *i
	if i.ParentID != nil {
		p := *i.ParentID
		out.ParentID = &p
	}
	return &out
}
