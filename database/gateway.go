package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/CrowderSoup/taskboard/gateway"
)

// ErrUnknownColumn is returned when a row names a column the table lacks.
var ErrUnknownColumn = errors.New("unknown column")

var columns = map[gateway.Table][]string{
	gateway.Boards:         {"id", "name", "position"},
	gateway.Lists:          {"id", "board_id", "name", "position"},
	gateway.Cards:          {"id", "list_id", "title", "description", "due_date", "position"},
	gateway.ChecklistItems: {"id", "card_id", "parent_id", "text", "completed", "position"},
	gateway.Notes:          {"id", "title", "content", "created_at"},
}

var boolColumns = map[string]bool{"completed": true}

// ErrUnknownParent is returned when a row references a parent the owner
// does not have.
var ErrUnknownParent = errors.New("unknown parent")

// parentColumns maps each reference column to the table it points into.
var parentColumns = map[string]gateway.Table{
	"board_id":  gateway.Boards,
	"list_id":   gateway.Lists,
	"card_id":   gateway.Cards,
	"parent_id": gateway.ChecklistItems,
}

// Gateway implements gateway.Gateway over SQLite for a single owner. Every
// statement is scoped by the owner column.
type Gateway struct {
	db    *sql.DB
	owner string
	sq    sq.StatementBuilderType
	newID func() string
	now   func() time.Time
}

func newGateway(db *sql.DB, owner string) *Gateway {
	return &Gateway{
		db:    db,
		owner: owner,
		sq:    sq.StatementBuilder.PlaceholderFormat(sq.Question),
		newID: uuid.NewString,
		now:   time.Now,
	}
}

var (
	_ gateway.Gateway      = (*Gateway)(nil)
	_ gateway.BatchUpdater = (*Gateway)(nil)
)

func checkColumns(table gateway.Table, keys []string) error {
	known, ok := columns[table]
	if !ok {
		return fmt.Errorf("%w: %s", gateway.ErrUnknownTable, table)
	}
	for _, k := range keys {
		if !slices.Contains(known, k) {
			return fmt.Errorf("%w %q for %s", ErrUnknownColumn, k, table)
		}
	}
	return nil
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// storable converts row values into what the driver accepts.
func storable(v any) any {
	switch t := v.(type) {
	case time.Time:
		return gateway.FormatTime(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return gateway.FormatTime(*t)
	case *string:
		if t == nil {
			return nil
		}
		return *t
	}
	return v
}

func (g *Gateway) Select(ctx context.Context, table gateway.Table, q gateway.Query) ([]gateway.Row, error) {
	if err := checkColumns(table, keysOf(q.Filter)); err != nil {
		return nil, err
	}
	where := sq.Eq{"owner": g.owner}
	for k, v := range q.Filter {
		where[k] = storable(v)
	}
	query := g.sq.Select(columns[table]...).From(string(table)).Where(where)
	for _, o := range q.OrderBy {
		if err := checkColumns(table, []string{o.Column}); err != nil {
			return nil, err
		}
		if o.Desc {
			query = query.OrderBy(o.Column + " DESC")
		} else {
			query = query.OrderBy(o.Column + " ASC")
		}
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}
	rows, err := g.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]gateway.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	var out []gateway.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(gateway.Row, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if boolColumns[col] {
				if n, ok := v.(int64); ok {
					v = n != 0
				}
			}
			row[col] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}

func (g *Gateway) Insert(ctx context.Context, table gateway.Table, row gateway.Row) (gateway.Row, error) {
	values := row.Clone()
	delete(values, "id")
	if err := checkColumns(table, keysOf(values)); err != nil {
		return nil, err
	}
	if err := g.checkParents(ctx, g.db, values); err != nil {
		return nil, err
	}
	id := g.newID()
	values["id"] = id
	values["owner"] = g.owner
	if table.Stamped() {
		if _, ok := values["created_at"]; !ok {
			values["created_at"] = g.now()
		}
	}

	cols := keysOf(values)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = storable(values[c])
	}
	stmt, sqlArgs, err := g.sq.Insert(string(table)).Columns(cols...).Values(args...).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert: %w", err)
	}
	if _, err := g.db.ExecContext(ctx, stmt, sqlArgs...); err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	created, err := g.Select(ctx, table, gateway.Query{Filter: map[string]any{"id": id}})
	if err != nil {
		return nil, err
	}
	if len(created) != 1 {
		return nil, fmt.Errorf("%w: %s/%s after insert", gateway.ErrNotFound, table, id)
	}
	return created[0], nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkParents verifies that every parent a row references belongs to the
// gateway's owner. NULL references are left to the schema.
func (g *Gateway) checkParents(ctx context.Context, db execer, values gateway.Row) error {
	for _, col := range keysOf(values) {
		table, ok := parentColumns[col]
		if !ok || values[col] == nil {
			continue
		}
		id, ok := values[col].(string)
		if !ok {
			return fmt.Errorf("%w: %s is not an id", ErrUnknownParent, col)
		}
		stmt, args, err := g.sq.Select("1").From(string(table)).
			Where(sq.Eq{"id": id, "owner": g.owner}).ToSql()
		if err != nil {
			return fmt.Errorf("failed to build parent lookup: %w", err)
		}
		var one int
		err = db.QueryRowContext(ctx, stmt, args...).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s %s", ErrUnknownParent, col, id)
		}
		if err != nil {
			return fmt.Errorf("failed to look up %s/%s: %w", table, id, err)
		}
	}
	return nil
}

func (g *Gateway) update(ctx context.Context, db execer, table gateway.Table, id string, patch gateway.Row) error {
	values := patch.Clone()
	delete(values, "id")
	if err := checkColumns(table, keysOf(values)); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	if err := g.checkParents(ctx, db, values); err != nil {
		return err
	}
	set := make(map[string]any, len(values))
	for k, v := range values {
		set[k] = storable(v)
	}
	stmt, args, err := g.sq.Update(string(table)).SetMap(set).
		Where(sq.Eq{"id": id, "owner": g.owner}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}
	res, err := db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", table, id, err)
	}
	return requireAffected(res, table, id)
}

func requireAffected(res sql.Result, table gateway.Table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", gateway.ErrNotFound, table, id)
	}
	return nil
}

func (g *Gateway) Update(ctx context.Context, table gateway.Table, id string, patch gateway.Row) error {
	return g.update(ctx, g.db, table, id, patch)
}

// UpdateBatch applies every patch in one transaction.
func (g *Gateway) UpdateBatch(ctx context.Context, table gateway.Table, patches map[string]gateway.Row) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range keysOfRows(patches) {
		if err := g.update(ctx, tx, table, id, patches[id]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func keysOfRows(m map[string]gateway.Row) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (g *Gateway) Delete(ctx context.Context, table gateway.Table, id string) error {
	if _, ok := columns[table]; !ok {
		return fmt.Errorf("%w: %s", gateway.ErrUnknownTable, table)
	}
	stmt, args, err := g.sq.Delete(string(table)).Where(sq.Eq{"id": id, "owner": g.owner}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	res, err := g.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", table, id, err)
	}
	return requireAffected(res, table, id)
}
