package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"
)

// MemoryPath opens a private in-memory database. Used by tests.
const MemoryPath = ":memory:"

var schema = []struct {
	name string
	ddl  string
}{
	{"users", `CREATE TABLE IF NOT EXISTS users (
		email TEXT PRIMARY KEY,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`},
	{"boards", `CREATE TABLE IF NOT EXISTS boards (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL REFERENCES users(email),
		name TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0
	)`},
	{"lists", `CREATE TABLE IF NOT EXISTS lists (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL REFERENCES users(email),
		board_id TEXT NOT NULL REFERENCES boards(id),
		name TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0
	)`},
	{"cards", `CREATE TABLE IF NOT EXISTS cards (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL REFERENCES users(email),
		list_id TEXT NOT NULL REFERENCES lists(id),
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		due_date TEXT,
		position INTEGER NOT NULL DEFAULT 0
	)`},
	{"checklist_items", `CREATE TABLE IF NOT EXISTS checklist_items (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL REFERENCES users(email),
		card_id TEXT NOT NULL REFERENCES cards(id),
		parent_id TEXT REFERENCES checklist_items(id),
		text TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL DEFAULT 0
	)`},
	{"notes", `CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL REFERENCES users(email),
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`},
	{"lists_board", `CREATE INDEX IF NOT EXISTS idx_lists_board ON lists(board_id, position)`},
	{"cards_list", `CREATE INDEX IF NOT EXISTS idx_cards_list ON cards(list_id, position)`},
	{"checklist_card", `CREATE INDEX IF NOT EXISTS idx_checklist_card ON checklist_items(card_id, parent_id, position)`},
}

// DB is the SQLite handle plus the file lock that keeps a second server
// process off the same database.
type DB struct {
	*sql.DB
	lock *flock.Flock
}

// InitDB opens (creating if needed) the database at path and applies the
// schema. The file is locked for the lifetime of the returned DB.
func InitDB(path string) (*DB, error) {
	var lock *flock.Flock
	if path != MemoryPath {
		lock = flock.New(path + ".lock")
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to lock database: %w", err)
		}
		if !locked {
			return nil, fmt.Errorf("database %s is in use by another process", path)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on")
	if err != nil {
		unlock(lock)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt.ddl); err != nil {
			db.Close()
			unlock(lock)
			return nil, fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}

	slog.Info("database initialized", "path", path)
	return &DB{DB: db, lock: lock}, nil
}

// Close closes the database and releases the file lock.
func (d *DB) Close() error {
	err := d.DB.Close()
	unlock(d.lock)
	return err
}

func unlock(lock *flock.Flock) {
	if lock == nil {
		return
	}
	if err := lock.Unlock(); err != nil {
		slog.Warn("failed to release database lock", "error", err)
	}
}

// DataService handles per-user database operations.
type DataService struct {
	db *sql.DB
}

func NewDataService(db *DB) *DataService {
	return &DataService{db: db.DB}
}

// EnsureUser creates the user row if it does not exist yet.
func (s *DataService) EnsureUser(ctx context.Context, email string) error {
	row := s.db.QueryRowContext(ctx, "SELECT email FROM users WHERE email = ?", email)
	var existing string
	err := row.Scan(&existing)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to query user: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "INSERT INTO users (email) VALUES (?)", email); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Gateway returns the row gateway scoped to one user's data.
func (s *DataService) Gateway(email string) *Gateway {
	return newGateway(s.db, email)
}
