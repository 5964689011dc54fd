package store

// Sibling is an entity that occupies a dense position among its siblings.
type Sibling interface {
	GetID() string
	GetPosition() int
	SetPosition(int)
}

// Reorder returns a copy of items with the element at oldIndex moved to
// newIndex. newIndex is clamped to the valid range. It reports false, and
// returns items unchanged, when there is nothing to move.
func Reorder[T any](items []T, oldIndex, newIndex int) ([]T, bool) {
	if oldIndex < 0 || oldIndex >= len(items) {
		return items, false
	}
	newIndex = clamp(newIndex, 0, len(items)-1)
	if oldIndex == newIndex {
		return items, false
	}
	out, moved := removeAt(items, oldIndex)
	return insertAt(out, newIndex, moved), true
}

// Renumber assigns position = index to every element and returns the ids
// whose position changed, mapped to their new position.
func Renumber[T Sibling](items []T) map[string]int {
	changed := make(map[string]int)
	for i, item := range items {
		if item.GetPosition() != i {
			item.SetPosition(i)
			changed[item.GetID()] = i
		}
	}
	return changed
}

// insertAt returns a new slice with v inserted at index, clamped to
// [0, len(items)].
func insertAt[T any](items []T, index int, v T) []T {
	index = clamp(index, 0, len(items))
	out := make([]T, 0, len(items)+1)
	out = append(out, items[:index]...)
	out = append(out, v)
	return append(out, items[index:]...)
}

// removeAt returns a new slice without the element at index, plus that
// element. index must be in range.
func removeAt[T any](items []T, index int) ([]T, T) {
	v := items[index]
	out := make([]T, 0, len(items)-1)
	out = append(out, items[:index]...)
	return append(out, items[index+1:]...), v
}

func indexOf[T Sibling](items []T, id string) int {
	for i, item := range items {
		if item.GetID() == id {
			return i
		}
	}
	return -1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
