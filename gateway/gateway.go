// Package gateway defines the ordered-row persistence contract the board store
// talks to, plus the helpers that turn untyped rows into typed records.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Table names a collection in the remote store.
type Table string

const (
	Boards         Table = "boards"
	Lists          Table = "lists"
	Cards          Table = "cards"
	ChecklistItems Table = "checklist_items"
	Notes          Table = "notes"
)

// Tables lists every table in parent-before-child order.
var Tables = []Table{Boards, Lists, Cards, ChecklistItems, Notes}

// Valid reports whether t is a known table.
func (t Table) Valid() bool {
	for _, known := range Tables {
		if t == known {
			return true
		}
	}
	return false
}

// Stamped reports whether rows of t get a server-assigned created_at.
func (t Table) Stamped() bool {
	return t == Notes
}

// ErrNotFound is returned when a row id does not exist.
var ErrNotFound = errors.New("row not found")

// ErrUnknownTable is returned for table names outside Tables.
var ErrUnknownTable = errors.New("unknown table")

// Row is a single untyped record as it travels over the wire.
type Row map[string]any

// ID returns the row's id column, or "" when absent.
func (r Row) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Order sorts a Select by one column.
type Order struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc,omitempty"`
}

// Query narrows a Select. Filter columns are matched for equality; a nil
// value matches NULL.
type Query struct {
	Filter  map[string]any `json:"filter,omitempty"`
	OrderBy []Order        `json:"order_by,omitempty"`
}

// Change describes one committed write. Servers broadcast changes to the
// owner's watchers.
type Change struct {
	Op    Op     `json:"op"`
	Table Table  `json:"table"`
	ID    string `json:"id,omitempty"`
}

// ByPosition is the ordering every sibling set is fetched with.
var ByPosition = []Order{{Column: "position"}}

// Gateway is the remote persistence contract. Implementations never cascade
// deletes: callers remove children first.
type Gateway interface {
	Select(ctx context.Context, table Table, q Query) ([]Row, error)
	Insert(ctx context.Context, table Table, row Row) (Row, error)
	Update(ctx context.Context, table Table, id string, patch Row) error
	Delete(ctx context.Context, table Table, id string) error
}

// BatchUpdater is implemented by gateways that can apply several patches to
// one table atomically.
type BatchUpdater interface {
	UpdateBatch(ctx context.Context, table Table, patches map[string]Row) error
}

// UpdateAll applies patches through BatchUpdater when gw supports it and
// falls back to one Update per row otherwise. The returned slice lists the
// ids that were written before a failure.
func UpdateAll(ctx context.Context, gw Gateway, table Table, patches map[string]Row) ([]string, error) {
	if len(patches) == 0 {
		return nil, nil
	}
	if b, ok := gw.(BatchUpdater); ok {
		if err := b.UpdateBatch(ctx, table, patches); err != nil {
			return nil, err
		}
		written := make([]string, 0, len(patches))
		for id := range patches {
			written = append(written, id)
		}
		return written, nil
	}
	written := make([]string, 0, len(patches))
	for id, patch := range patches {
		if err := gw.Update(ctx, table, id, patch); err != nil {
			return written, err
		}
		written = append(written, id)
	}
	return written, nil
}

// DateLayout is the calendar-date form due dates may be sent in.
const DateLayout = "2006-01-02"

// FormatTime renders t the way timestamps are stored in rows.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Decode converts a row into the typed record pointed to by out. Numbers that
// arrive as float64 (JSON) are narrowed and timestamps are parsed from
// RFC 3339 or calendar-date strings.
func Decode(row Row, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook:       mapstructure.DecodeHookFuncType(stringToTimeHook),
	})
	if err != nil {
		return fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(row)); err != nil {
		return fmt.Errorf("failed to decode %s row: %w", row.ID(), err)
	}
	return nil
}

// DecodeAll decodes each row into a new T.
func DecodeAll[T any](rows []Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var rec T
		if err := Decode(row, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ParseTime accepts RFC 3339 timestamps, SQLite's "YYYY-MM-DD HH:MM:SS" and
// calendar dates.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

var timeType = reflect.TypeOf(time.Time{})

func stringToTimeHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != timeType {
		return data, nil
	}
	s, _ := data.(string)
	if s == "" {
		return time.Time{}, nil
	}
	return ParseTime(s)
}
