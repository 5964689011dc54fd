package store

import (
	"errors"
	"fmt"

	"github.com/CrowderSoup/taskboard/gateway"
)

// ErrNotFound is returned by create operations whose parent is not in the
// local tree. Other operations treat unknown ids as a no-op.
var ErrNotFound = errors.New("not found")

// ErrNotConfigured is returned when the store has no gateway.
var ErrNotConfigured = errors.New("store has no gateway configured")

// PersistenceError reports a failed remote call.
type PersistenceError struct {
	Op    string
	Table gateway.Table
	ID    string
	Err   error
}

func (e *PersistenceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Table, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ValidationError reports input rejected before any remote call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func persistErr(op string, table gateway.Table, id string, err error) error {
	return &PersistenceError{Op: op, Table: table, ID: id, Err: err}
}
