package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/CrowderSoup/taskboard/database"
)

func cardsAt(ids ...string) []*database.Card {
	out := make([]*database.Card, len(ids))
	for i, id := range ids {
		out[i] = &database.Card{ID: id, Position: i}
	}
	return out
}

func ids[T Sibling](items []T) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.GetID()
	}
	return out
}

func positions[T Sibling](items []T) []int {
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.GetPosition()
	}
	return out
}

func TestReorder(t *testing.T) {
	tests := []struct {
		name     string
		old, new int
		want     []string
		moved    bool
	}{
		{"forward", 0, 2, []string{"b", "c", "a", "d"}, true},
		{"backward", 3, 1, []string{"a", "d", "b", "c"}, true},
		{"same index", 2, 2, []string{"a", "b", "c", "d"}, false},
		{"clamped high", 0, 99, []string{"b", "c", "d", "a"}, true},
		{"clamped low", 2, -5, []string{"c", "a", "b", "d"}, true},
		{"old out of range", 7, 0, []string{"a", "b", "c", "d"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := cardsAt("a", "b", "c", "d")
			got, moved := Reorder(items, tt.old, tt.new)
			if moved != tt.moved {
				t.Errorf("moved = %v, want %v", moved, tt.moved)
			}
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"a", "b", "c", "d"}, ids(items)); diff != "" {
				t.Errorf("input slice modified (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReorderNoopKeepsPositions(t *testing.T) {
	items := cardsAt("a", "b", "c")
	got, moved := Reorder(items, 1, 1)
	if moved {
		t.Fatal("expected no move")
	}
	if changed := Renumber(got); len(changed) != 0 {
		t.Errorf("renumber after no-op changed %v", changed)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, positions(got)); diff != "" {
		t.Errorf("positions mismatch (-want +got):\n%s", diff)
	}
}

func TestRenumber(t *testing.T) {
	items := []*database.List{
		{ID: "x", Position: 0},
		{ID: "y", Position: 4},
		{ID: "z", Position: 4},
	}
	changed := Renumber(items)
	if diff := cmp.Diff(map[string]int{"y": 1, "z": 2}, changed); diff != "" {
		t.Errorf("changed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, positions(items)); diff != "" {
		t.Errorf("positions mismatch (-want +got):\n%s", diff)
	}
}

func TestInsertRemoveAt(t *testing.T) {
	items := cardsAt("a", "b")
	got := insertAt(items, 10, &database.Card{ID: "z"})
	if diff := cmp.Diff([]string{"a", "b", "z"}, ids(got)); diff != "" {
		t.Errorf("insertAt clamp (-want +got):\n%s", diff)
	}
	got = insertAt(items, 0, &database.Card{ID: "z"})
	if diff := cmp.Diff([]string{"z", "a", "b"}, ids(got)); diff != "" {
		t.Errorf("insertAt head (-want +got):\n%s", diff)
	}
	rest, v := removeAt(items, 0)
	if v.ID != "a" {
		t.Errorf("removeAt returned %q", v.ID)
	}
	if diff := cmp.Diff([]string{"b"}, ids(rest)); diff != "" {
		t.Errorf("removeAt rest (-want +got):\n%s", diff)
	}
}

func TestSubtaskTree(t *testing.T) {
	p := func(s string) *string { return &s }
	items := []*database.ChecklistItem{
		{ID: "b", Position: 1},
		{ID: "a", Position: 0},
		{ID: "a2", ParentID: p("a"), Position: 1},
		{ID: "a1", ParentID: p("a"), Position: 0},
		{ID: "a1x", ParentID: p("a1"), Position: 0},
	}

	if diff := cmp.Diff([]string{"a", "b"}, ids(Roots(items))); diff != "" {
		t.Errorf("roots (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a1", "a2"}, ids(Children(items, "a"))); diff != "" {
		t.Errorf("children (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a1", "a1x", "a2"}, ids(Descendants(items, "a"))); diff != "" {
		t.Errorf("descendants (-want +got):\n%s", diff)
	}

	var walked []string
	var depths []int
	Walk(items, func(it *database.ChecklistItem, depth int) bool {
		walked = append(walked, it.ID)
		depths = append(depths, depth)
		return it.ID != "a1"
	})
	if diff := cmp.Diff([]string{"a", "a1", "a2", "b"}, walked); diff != "" {
		t.Errorf("walk order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 1, 0}, depths); diff != "" {
		t.Errorf("walk depths (-want +got):\n%s", diff)
	}
}

func TestProgressCountsEveryDepth(t *testing.T) {
	p := func(s string) *string { return &s }
	card := &database.Card{Checklist: []*database.ChecklistItem{
		{ID: "a", Completed: true},
		{ID: "a1", ParentID: p("a")},
		{ID: "a1x", ParentID: p("a1"), Completed: true},
	}}
	done, total := Progress(card)
	if done != 2 || total != 3 {
		t.Errorf("Progress = %d/%d, want 2/3", done, total)
	}
}
