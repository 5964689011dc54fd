package store

import (
	"slices"
	"sync"

	"github.com/CrowderSoup/taskboard/database"
)

// keyedLocks serializes mutations per container. Keys are always acquired in
// sorted order so two operations sharing containers cannot deadlock.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*refLock)}
}

func (k *keyedLocks) lock(keys ...string) (unlock func()) {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*refLock, 0, len(keys))
	for _, key := range keys {
		k.mu.Lock()
		l, ok := k.locks[key]
		if !ok {
			l = &refLock{}
			k.locks[key] = l
		}
		l.refs++
		k.mu.Unlock()

		l.mu.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.locks, keys[i])
			}
			k.mu.Unlock()
		}
	}
}

const (
	boardsKey = "boards"
	notesKey  = "notes"
)

func boardKey(id string) string { return "board:" + id }
func listKey(id string) string { return "list:" + id }
func cardKey(id string) string { return "card:" + id }

// lock acquires the container locks for keys. Load waits for every holder
// to finish and blocks new ones until the tree has been replaced.
func (s *Store) lock(keys ...string) (unlock func()) {
	s.loadMu.RLock()
	release := s.locks.lock(keys...)
	return func() {
		release()
		s.loadMu.RUnlock()
	}
}

// listKeys names a list and every card in it, so a delete excludes creates
// under any of them.
func listKeys(l *database.List) []string {
	keys := []string{listKey(l.ID)}
	for _, c := range l.Cards {
		keys = append(keys, cardKey(c.ID))
	}
	return keys
}
