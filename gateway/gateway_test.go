package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type record struct {
	ID       string     `json:"id"`
	ParentID *string    `json:"parent_id"`
	Position int        `json:"position"`
	Done     bool       `json:"done"`
	Due      *time.Time `json:"due"`
	Created  time.Time  `json:"created"`
}

func TestDecode(t *testing.T) {
	parent := "p1"
	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		row  Row
		want record
	}{
		{
			name: "json numbers and dates",
			row:  Row{"id": "a", "parent_id": "p1", "position": float64(3), "done": true, "due": "2026-05-01", "created": "2026-01-02T03:04:05Z"},
			want: record{ID: "a", ParentID: &parent, Position: 3, Done: true, Due: &due, Created: created},
		},
		{
			name: "sqlite timestamp and nulls",
			row:  Row{"id": "b", "parent_id": nil, "position": int64(0), "due": nil, "created": "2026-01-02 03:04:05"},
			want: record{ID: "b", Created: created},
		},
		{
			name: "extra columns ignored",
			row:  Row{"id": "c", "owner": "someone@example.com", "position": 1},
			want: record{ID: "c", Position: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got record
			if err := Decode(tt.row, &got); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeBadTime(t *testing.T) {
	var got record
	if err := Decode(Row{"id": "x", "created": "yesterday"}, &got); err == nil {
		t.Fatal("Decode() accepted an unparseable time")
	}
}

func TestMemorySelect(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, row := range []Row{
		{"card_id": "c", "parent_id": nil, "position": 1},
		{"card_id": "c", "parent_id": nil, "position": 0},
		{"card_id": "c", "parent_id": "x", "position": 0},
		{"card_id": "d", "parent_id": nil, "position": 0},
	} {
		if _, err := m.Insert(ctx, ChecklistItems, row); err != nil {
			t.Fatal(err)
		}
	}

	roots, err := m.Select(ctx, ChecklistItems, Query{
		Filter:  map[string]any{"card_id": "c", "parent_id": nil},
		OrderBy: ByPosition,
	})
	if err != nil {
		t.Fatal(err)
	}
	var got []int
	for _, r := range roots {
		got = append(got, r["position"].(int))
	}
	if diff := cmp.Diff([]int{0, 1}, got); diff != "" {
		t.Errorf("roots (-want +got):\n%s", diff)
	}

	desc, err := m.Select(ctx, ChecklistItems, Query{OrderBy: []Order{{Column: "card_id", Desc: true}}})
	if err != nil {
		t.Fatal(err)
	}
	if desc[0]["card_id"] != "d" {
		t.Errorf("first row card_id = %v, want d", desc[0]["card_id"])
	}

	if _, err := m.Select(ctx, Table("users"), Query{}); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("Select(users) error = %v, want ErrUnknownTable", err)
	}
}

func TestMemoryInsertStampsNotes(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.now = func() time.Time { return time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC) }

	note, err := m.Insert(ctx, Notes, Row{"id": "ignored", "title": "t"})
	if err != nil {
		t.Fatal(err)
	}
	if note.ID() == "" || note.ID() == "ignored" {
		t.Errorf("id = %q, want a generated id", note.ID())
	}
	if note["created_at"] != "2026-07-01T12:00:00Z" {
		t.Errorf("created_at = %v", note["created_at"])
	}

	board, err := m.Insert(ctx, Boards, Row{"name": "b"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := board["created_at"]; ok {
		t.Error("boards should not be stamped")
	}
}

func TestMemoryUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	row, _ := m.Insert(ctx, Lists, Row{"name": "a", "position": 0})

	if err := m.Update(ctx, Lists, row.ID(), Row{"name": "b", "id": "hijack"}); err != nil {
		t.Fatal(err)
	}
	rows := m.Rows(Lists)
	if rows[0]["name"] != "b" || rows[0].ID() != row.ID() {
		t.Errorf("row = %v", rows[0])
	}
	if err := m.Update(ctx, Lists, "missing", Row{"name": "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
	if err := m.Delete(ctx, Lists, row.ID()); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, Lists, row.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}

	want := []Call{
		{Op: OpInsert, Table: Lists},
		{Op: OpUpdate, Table: Lists, ID: row.ID()},
		{Op: OpUpdate, Table: Lists, ID: "missing"},
		{Op: OpDelete, Table: Lists, ID: row.ID()},
		{Op: OpDelete, Table: Lists, ID: row.ID()},
	}
	if diff := cmp.Diff(want, m.Calls()); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
}

func TestMemoryUpdateBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a, _ := m.Insert(ctx, Cards, Row{"position": 0})
	b, _ := m.Insert(ctx, Cards, Row{"position": 1})

	err := m.UpdateBatch(ctx, Cards, map[string]Row{
		a.ID():    {"position": 1},
		"missing": {"position": 0},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateBatch() error = %v, want ErrNotFound", err)
	}
	if got := m.Rows(Cards)[0]["position"]; got != 0 {
		t.Errorf("position after failed batch = %v, want 0", got)
	}

	if err := m.UpdateBatch(ctx, Cards, map[string]Row{a.ID(): {"position": 1}, b.ID(): {"position": 0}}); err != nil {
		t.Fatal(err)
	}
	rows := m.Rows(Cards)
	if rows[0]["position"] != 1 || rows[1]["position"] != 0 {
		t.Errorf("rows = %v", rows)
	}
}

func TestMemoryFail(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("boom")
	m.Fail = func(op Op, table Table, id string) error {
		if op == OpInsert && table == Boards {
			return boom
		}
		return nil
	}
	if _, err := m.Insert(ctx, Boards, Row{"name": "x"}); !errors.Is(err, boom) {
		t.Errorf("Insert() error = %v, want boom", err)
	}
	if len(m.Rows(Boards)) != 0 {
		t.Error("failed insert left a row behind")
	}
	if _, err := m.Insert(ctx, Lists, Row{"name": "x"}); err != nil {
		t.Errorf("Insert(lists) error = %v", err)
	}
}

// single hides UpdateBatch.
type single struct{ Gateway }

func TestUpdateAllFallsBackToSingleUpdates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a, _ := m.Insert(ctx, Lists, Row{"position": 0})
	b, _ := m.Insert(ctx, Lists, Row{"position": 1})

	m.Fail = func(op Op, table Table, id string) error {
		if op == OpUpdate && id == b.ID() {
			return errors.New("nope")
		}
		return nil
	}
	patches := map[string]Row{a.ID(): {"position": 1}, b.ID(): {"position": 0}}

	written, err := UpdateAll(ctx, single{m}, Lists, patches)
	if err == nil {
		t.Fatal("UpdateAll() succeeded, want error")
	}
	for _, id := range written {
		if id != a.ID() {
			t.Errorf("written contains %q, only %q could succeed", id, a.ID())
		}
	}

	written, err = UpdateAll(ctx, m, Lists, patches)
	if err == nil || len(written) != 0 {
		t.Errorf("batched UpdateAll() = %v, %v; want nothing written and an error", written, err)
	}

	m.Fail = nil
	written, err = UpdateAll(ctx, m, Lists, patches)
	if err != nil || len(written) != 2 {
		t.Errorf("UpdateAll() = %v, %v", written, err)
	}
}

func TestParseTime(t *testing.T) {
	for _, s := range []string{"2026-03-01T10:00:00Z", "2026-03-01T10:00:00.5+02:00", "2026-03-01 10:00:00", "2026-03-01"} {
		if _, err := ParseTime(s); err != nil {
			t.Errorf("ParseTime(%q) error = %v", s, err)
		}
	}
	if _, err := ParseTime("03/01/2026"); err == nil {
		t.Error("ParseTime accepted a US date")
	}
}
