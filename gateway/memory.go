package gateway

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Op names a gateway call.
type Op string

const (
	OpSelect Op = "select"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Memory is an in-process Gateway. It backs tests and offline sessions.
type Memory struct {
	mu     sync.RWMutex
	tables map[Table][]Row
	calls  []Call

	// Fail, when set, is consulted before every call; a non-nil result is
	// returned to the caller and the call has no effect.
	Fail func(op Op, table Table, id string) error

	newID func() string
	now   func() time.Time
}

// Call records one gateway call made against a Memory.
type Call struct {
	Op    Op
	Table Table
	ID    string
}

// NewMemory returns an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		tables: make(map[Table][]Row),
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// Calls returns every call made so far, in order.
func (m *Memory) Calls() []Call {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.calls)
}

// ResetCalls forgets recorded calls.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Rows returns a copy of every row in table, in insertion order.
func (m *Memory) Rows(table Table) []Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Row, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		out = append(out, r.Clone())
	}
	return out
}

func (m *Memory) record(op Op, table Table, id string) error {
	m.calls = append(m.calls, Call{Op: op, Table: table, ID: id})
	if !table.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if m.Fail != nil {
		return m.Fail(op, table, id)
	}
	return nil
}

func (m *Memory) Select(ctx context.Context, table Table, q Query) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpSelect, table, ""); err != nil {
		return nil, err
	}
	var out []Row
	for _, r := range m.tables[table] {
		if matches(r, q.Filter) {
			out = append(out, r.Clone())
		}
	}
	if len(q.OrderBy) > 0 {
		slices.SortStableFunc(out, func(a, b Row) int {
			for _, o := range q.OrderBy {
				c := compareValues(a[o.Column], b[o.Column])
				if o.Desc {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
	}
	return out, nil
}

func (m *Memory) Insert(ctx context.Context, table Table, row Row) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpInsert, table, ""); err != nil {
		return nil, err
	}
	stored := row.Clone()
	stored["id"] = m.newID()
	if table.Stamped() {
		if _, ok := stored["created_at"]; !ok {
			stored["created_at"] = FormatTime(m.now())
		}
	}
	m.tables[table] = append(m.tables[table], stored)
	return stored.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, table Table, id string, patch Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpUpdate, table, id); err != nil {
		return err
	}
	return m.update(table, id, patch)
}

func (m *Memory) update(table Table, id string, patch Row) error {
	i := m.index(table, id)
	if i < 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		m.tables[table][i][k] = v
	}
	return nil
}

// UpdateBatch applies all patches or none.
func (m *Memory) UpdateBatch(ctx context.Context, table Table, patches map[string]Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range patches {
		if err := m.record(OpUpdate, table, id); err != nil {
			return err
		}
		if m.index(table, id) < 0 {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
		}
	}
	for id, patch := range patches {
		if err := m.update(table, id, patch); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, table Table, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpDelete, table, id); err != nil {
		return err
	}
	i := m.index(table, id)
	if i < 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
	}
	m.tables[table] = slices.Delete(m.tables[table], i, i+1)
	return nil
}

func (m *Memory) index(table Table, id string) int {
	return slices.IndexFunc(m.tables[table], func(r Row) bool { return r.ID() == id })
}

func matches(r Row, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := r[k]
		if want == nil {
			if ok && got != nil {
				return false
			}
			continue
		}
		if !ok || compareValues(got, want) != 0 {
			return false
		}
	}
	return true
}

// compareValues orders the scalar types rows carry. Mismatched types compare
// by their printed form.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if an, ok := number(a); ok {
		if bn, ok := number(b); ok {
			return cmp.Compare(an, bn)
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			default:
				return 1
			}
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
