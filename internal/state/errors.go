package state

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/leapstack-labs/leapgov/pkg/core"
)

const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique or primary key violation
// from either backend.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// writeError maps a failed write to the core error taxonomy.
func writeError(op string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s: %v", core.ErrConflict, op, err)
	}
	return core.StorageError(op, err)
}
