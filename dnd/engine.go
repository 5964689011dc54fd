// Package dnd turns drag gestures on one board into list and card reorders.
package dnd

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/CrowderSoup/taskboard/database"
)

// State is the engine's gesture state.
type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "idle"
}

// Kind is what is being dragged.
type Kind string

const (
	KindNone Kind = ""
	KindList Kind = "list"
	KindCard Kind = "card"
)

// Store is the part of the board store the engine drives.
type Store interface {
	Board(id string) (*database.Board, bool)
	ReorderLists(ctx context.Context, boardID string, oldIndex, newIndex int) error
	ReorderCards(ctx context.Context, sourceListID, destListID string, oldIndex, destIndex int) error
}

// Engine tracks a single drag gesture at a time on one board.
type Engine struct {
	store   Store
	boardID string
	log     *slog.Logger

	mu       sync.Mutex
	state    State
	activeID string
	kind     Kind
	overID   string
}

// New returns an idle engine for boardID.
func New(store Store, boardID string, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: store, boardID: boardID, log: log}
}

// State returns the current state, the dragged id and its kind.
func (e *Engine) State() (State, string, Kind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.activeID, e.kind
}

// Over returns the id currently hovered, or "".
func (e *Engine) Over() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.overID
}

// Start begins dragging activeID. The id is a card when any list of the
// board holds it and a list when it names one. Unknown ids leave the engine
// idle and Start reports false.
func (e *Engine) Start(activeID string) bool {
	board, ok := e.store.Board(e.boardID)
	if !ok {
		e.log.Debug("drag on unknown board", "board_id", e.boardID)
		return false
	}
	kind := KindNone
	if list, _ := cardLocation(board, activeID); list != nil {
		kind = KindCard
	} else if listIndex(board, activeID) >= 0 {
		kind = KindList
	}
	if kind == KindNone {
		e.log.Debug("drag of unknown item", "id", activeID)
		return false
	}

	e.mu.Lock()
	e.state = Dragging
	e.activeID = activeID
	e.kind = kind
	e.overID = ""
	e.mu.Unlock()
	return true
}

// Hover records the id under the pointer. It changes nothing in the store.
func (e *Engine) Hover(overID string) {
	e.mu.Lock()
	if e.state == Dragging {
		e.overID = overID
	}
	e.mu.Unlock()
}

// Cancel abandons the gesture.
func (e *Engine) Cancel() {
	e.mu.Lock()
	e.reset()
	e.mu.Unlock()
}

func (e *Engine) reset() {
	e.state = Idle
	e.activeID = ""
	e.kind = KindNone
	e.overID = ""
}

// Drop ends the gesture over overID and applies the resulting reorder. An
// empty overID is a cancel. The engine is idle again when Drop returns.
func (e *Engine) Drop(ctx context.Context, overID string) error {
	e.mu.Lock()
	state, activeID, kind := e.state, e.activeID, e.kind
	e.reset()
	e.mu.Unlock()

	if state != Dragging || overID == "" {
		return nil
	}
	board, ok := e.store.Board(e.boardID)
	if !ok {
		return nil
	}

	switch kind {
	case KindList:
		return e.dropList(ctx, board, activeID, overID)
	case KindCard:
		return e.dropCard(ctx, board, activeID, overID)
	}
	return nil
}

func (e *Engine) dropList(ctx context.Context, board *database.Board, activeID, overID string) error {
	oldIndex := listIndex(board, activeID)
	newIndex := listIndex(board, overID)
	if newIndex < 0 {
		// Dropping a list on one of its cards lands on that card's list.
		if list, _ := cardLocation(board, overID); list != nil {
			newIndex = listIndex(board, list.ID)
		}
	}
	if oldIndex < 0 || newIndex < 0 {
		e.log.Debug("list drop target not found", "id", activeID, "over", overID)
		return nil
	}
	if oldIndex == newIndex {
		return nil
	}
	return e.store.ReorderLists(ctx, board.ID, oldIndex, newIndex)
}

func (e *Engine) dropCard(ctx context.Context, board *database.Board, activeID, overID string) error {
	source, oldIndex := cardLocation(board, activeID)
	if source == nil {
		e.log.Debug("dragged card vanished", "id", activeID)
		return nil
	}
	dest, newIndex := cardLocation(board, overID)
	if dest == nil {
		i := listIndex(board, overID)
		if i < 0 {
			e.log.Debug("card drop target not found", "id", activeID, "over", overID)
			return nil
		}
		dest = board.Lists[i]
		newIndex = len(dest.Cards)
	}
	return e.store.ReorderCards(ctx, source.ID, dest.ID, oldIndex, newIndex)
}

func listIndex(board *database.Board, id string) int {
	return slices.IndexFunc(board.Lists, func(l *database.List) bool { return l.ID == id })
}

// cardLocation returns the list holding card id and the card's index in it.
func cardLocation(board *database.Board, id string) (*database.List, int) {
	for _, l := range board.Lists {
		if i := slices.IndexFunc(l.Cards, func(c *database.Card) bool { return c.ID == id }); i >= 0 {
			return l, i
		}
	}
	return nil, -1
}
