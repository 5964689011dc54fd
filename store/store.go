// Package store keeps the in-memory board tree and the free notes list in step
// with a remote gateway.
//
// Creates and field updates are applied locally only after the gateway
// confirms them. Reorders and moves are applied locally first, then persisted;
// a failed write restores the previous order. Deletes walk the subtree bottom
// up and prune exactly the rows the gateway confirmed.
package store

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/CrowderSoup/taskboard/database"
	"github.com/CrowderSoup/taskboard/gateway"
)

// EventKind says what happened to the tree.
type EventKind string

const (
	EventLoading       EventKind = "loading"
	EventLoaded        EventKind = "loaded"
	EventCreated       EventKind = "created"
	EventUpdated       EventKind = "updated"
	EventDeleted       EventKind = "deleted"
	EventMoved         EventKind = "moved"
	EventRolledBack    EventKind = "rolled_back"
	EventActiveChanged EventKind = "active_changed"
)

// Event is delivered to observers after each local change.
type Event struct {
	Kind  EventKind
	Table gateway.Table
	ID    string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Store is the single source of truth for one session's boards and notes.
type Store struct {
	gw    gateway.Gateway
	log   *slog.Logger
	locks *keyedLocks

	// loadMu is held for reading by every mutation and for writing while
	// Load replaces the tree.
	loadMu sync.RWMutex

	mu      sync.RWMutex
	boards  []*database.Board
	notes   []*database.Note
	active  string
	loading bool
	err     error

	obsMu     sync.Mutex
	observers map[int]func(Event)
	nextObs   int
}

// New returns an empty store backed by gw. A nil gw yields an unconfigured
// store whose operations fail with ErrNotConfigured.
func New(gw gateway.Gateway, opts ...Option) *Store {
	s := &Store{
		gw:        gw,
		log:       slog.Default(),
		locks:     newKeyedLocks(),
		observers: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn for every subsequent event. Call the returned
// function to stop receiving events.
func (s *Store) Subscribe(fn func(Event)) (cancel func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()
	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// notify must be called without s.mu held.
func (s *Store) notify(events ...Event) {
	s.obsMu.Lock()
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.observers[id])
	}
	s.obsMu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// IsConfigured reports whether the store has a gateway.
func (s *Store) IsConfigured() bool { return s.gw != nil }

// IsLoading reports whether a Load is in progress.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the error from the last Load, if any.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Load replaces the local tree with the gateway's contents. Every level is
// re-sorted by position; the server's ordering is not trusted.
func (s *Store) Load(ctx context.Context) error {
	if s.gw == nil {
		s.mu.Lock()
		s.err = ErrNotConfigured
		s.mu.Unlock()
		return ErrNotConfigured
	}

	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()
	s.notify(Event{Kind: EventLoading})

	s.loadMu.Lock()
	boards, notes, err := s.fetch(ctx)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.err = err
		s.mu.Unlock()
		s.loadMu.Unlock()
		s.log.Error("failed to load boards", "error", err)
		s.notify(Event{Kind: EventLoaded})
		return err
	}
	s.err = nil
	s.boards = boards
	s.notes = notes
	if s.active == "" || s.boardIndex(s.active) < 0 {
		s.active = ""
		if len(boards) > 0 {
			s.active = boards[0].ID
		}
	}
	s.mu.Unlock()
	s.loadMu.Unlock()

	s.log.Debug("boards loaded", "boards", len(boards), "notes", len(notes))
	s.notify(Event{Kind: EventLoaded})
	return nil
}

func (s *Store) fetch(ctx context.Context) ([]*database.Board, []*database.Note, error) {
	var (
		boards []*database.Board
		lists  []*database.List
		cards  []*database.Card
		items  []*database.ChecklistItem
		notes  []*database.Note
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		boards, err = selectAll[database.Board](gctx, s.gw, gateway.Boards)
		return err
	})
	g.Go(func() (err error) {
		lists, err = selectAll[database.List](gctx, s.gw, gateway.Lists)
		return err
	})
	g.Go(func() (err error) {
		cards, err = selectAll[database.Card](gctx, s.gw, gateway.Cards)
		return err
	})
	g.Go(func() (err error) {
		items, err = selectAll[database.ChecklistItem](gctx, s.gw, gateway.ChecklistItems)
		return err
	})
	g.Go(func() (err error) {
		rows, err := s.gw.Select(gctx, gateway.Notes, gateway.Query{
			OrderBy: []gateway.Order{{Column: "created_at", Desc: true}},
		})
		if err != nil {
			return persistErr("select", gateway.Notes, "", err)
		}
		notes, err = decodePtrs[database.Note](rows)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	byPosition := func(a, b Sibling) int { return cmp.Compare(a.GetPosition(), b.GetPosition()) }
	cardsByID := make(map[string]*database.Card, len(cards))
	for _, c := range cards {
		c.Checklist = []*database.ChecklistItem{}
		cardsByID[c.ID] = c
	}
	for _, it := range items {
		if c, ok := cardsByID[it.CardID]; ok {
			c.Checklist = append(c.Checklist, it)
		} else {
			s.log.Debug("dropping orphan checklist item", "id", it.ID, "card_id", it.CardID)
		}
	}
	listsByID := make(map[string]*database.List, len(lists))
	for _, l := range lists {
		l.Cards = []*database.Card{}
		listsByID[l.ID] = l
	}
	for _, c := range cards {
		slices.SortStableFunc(c.Checklist, func(a, b *database.ChecklistItem) int { return byPosition(a, b) })
		if l, ok := listsByID[c.ListID]; ok {
			l.Cards = append(l.Cards, c)
		} else {
			s.log.Debug("dropping orphan card", "id", c.ID, "list_id", c.ListID)
		}
	}
	boardsByID := make(map[string]*database.Board, len(boards))
	for _, b := range boards {
		b.Lists = []*database.List{}
		boardsByID[b.ID] = b
	}
	for _, l := range lists {
		slices.SortStableFunc(l.Cards, func(a, b *database.Card) int { return byPosition(a, b) })
		if b, ok := boardsByID[l.BoardID]; ok {
			b.Lists = append(b.Lists, l)
		} else {
			s.log.Debug("dropping orphan list", "id", l.ID, "board_id", l.BoardID)
		}
	}
	for _, b := range boards {
		slices.SortStableFunc(b.Lists, func(x, y *database.List) int { return byPosition(x, y) })
	}
	slices.SortStableFunc(boards, func(x, y *database.Board) int { return byPosition(x, y) })
	slices.SortStableFunc(notes, func(x, y *database.Note) int { return y.CreatedAt.Compare(x.CreatedAt) })
	return boards, notes, nil
}

func selectAll[T any](ctx context.Context, gw gateway.Gateway, table gateway.Table) ([]*T, error) {
	rows, err := gw.Select(ctx, table, gateway.Query{OrderBy: gateway.ByPosition})
	if err != nil {
		return nil, persistErr("select", table, "", err)
	}
	return decodePtrs[T](rows)
}

func decodePtrs[T any](rows []gateway.Row) ([]*T, error) {
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		rec := new(T)
		if err := gateway.Decode(row, rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Boards returns a deep copy of every board in order.
func (s *Store) Boards() []*database.Board {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*database.Board, len(s.boards))
	for i, b := range s.boards {
		out[i] = b.Clone()
	}
	return out
}

// Board returns a copy of the board with id.
func (s *Store) Board(id string) (*database.Board, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.boardIndex(id); i >= 0 {
		return s.boards[i].Clone(), true
	}
	return nil, false
}

// List returns a copy of the list with id.
func (s *Store) List(id string) (*database.List, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, l := s.findList(id); l != nil {
		return l.Clone(), true
	}
	return nil, false
}

// Card returns a copy of the card with id.
func (s *Store) Card(id string) (*database.Card, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, c := s.findCard(id); c != nil {
		return c.Clone(), true
	}
	return nil, false
}

// Notes returns copies of all notes, newest first.
func (s *Store) Notes() []database.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]database.Note, len(s.notes))
	for i, n := range s.notes {
		out[i] = *n
	}
	return out
}

// ActiveBoard returns the active board id, or "" when there is none.
func (s *Store) ActiveBoard() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetActiveBoard makes id the active board. Unknown ids are ignored.
func (s *Store) SetActiveBoard(id string) {
	s.mu.Lock()
	if id != "" && s.boardIndex(id) < 0 {
		s.mu.Unlock()
		s.log.Debug("ignoring unknown active board", "id", id)
		return
	}
	s.active = id
	s.mu.Unlock()
	s.notify(Event{Kind: EventActiveChanged, Table: gateway.Boards, ID: id})
}

// The find helpers require s.mu.

func (s *Store) boardIndex(id string) int {
	return indexOf(s.boards, id)
}

func (s *Store) findList(id string) (*database.Board, *database.List) {
	for _, b := range s.boards {
		for _, l := range b.Lists {
			if l.ID == id {
				return b, l
			}
		}
	}
	return nil, nil
}

func (s *Store) findCard(id string) (*database.List, *database.Card) {
	for _, b := range s.boards {
		for _, l := range b.Lists {
			for _, c := range l.Cards {
				if c.ID == id {
					return l, c
				}
			}
		}
	}
	return nil, nil
}

// lockFor acquires the container locks named by keys, recomputing them after
// acquisition in case the tree moved underneath. keys runs under s.mu.
func (s *Store) lockFor(keys func() []string) (unlock func()) {
	read := func() []string {
		s.mu.RLock()
		defer s.mu.RUnlock()
		k := keys()
		slices.Sort(k)
		return slices.Compact(k)
	}
	for {
		want := read()
		unlock = s.lock(want...)
		if slices.Equal(want, read()) {
			return unlock
		}
		unlock()
	}
}

func (s *Store) ready() error {
	if s.gw == nil {
		return ErrNotConfigured
	}
	return nil
}
