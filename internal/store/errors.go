package store

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrDuplicate matches every DuplicateError via errors.Is.
var ErrDuplicate = errors.New("duplicate id")

// ErrNotFound is returned by updates and deletes that touched no row.
var ErrNotFound = errors.New("not found")

const pgUniqueViolation = "23505"

// DuplicateError reports a uniqueness conflict on a table's caller-assigned
// id. Conflicts on any other column are not duplicates.
type DuplicateError struct {
	Table string
	ID    string
	Err   error
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Table, e.ID)
}

func (e *DuplicateError) Unwrap() error { return e.Err }

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// classifyInsert converts a uniqueness violation on table.id into a
// DuplicateError and returns any other error unchanged.
func classifyInsert(table, id string, err error) error {
	if err == nil {
		return nil
	}
	if isIDConflict(table, err) {
		return &DuplicateError{Table: table, ID: id, Err: err}
	}
	return err
}

func isIDConflict(table string, err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT:
			return slices.Contains(sqliteConflictColumns(se.Error()), table+".id")
		}
		return false
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == pgUniqueViolation && pe.ConstraintName == table+"_pkey"
	}
	return false
}

// sqliteConflictColumns extracts the "table.column" list from a message
// such as "UNIQUE constraint failed: blobs.id (1555)".
func sqliteConflictColumns(msg string) []string {
	_, rest, ok := strings.Cut(msg, "UNIQUE constraint failed: ")
	if !ok {
		return nil
	}
	if i := strings.Index(rest, " ("); i >= 0 {
		rest = rest[:i]
	}
	cols := strings.Split(rest, ",")
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	return cols
}
