// Package shared holds helpers used by more than one storage backend.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// IsSQLiteBusyError reports whether err is SQLITE_BUSY, raised when another
// connection holds the write lock.
func IsSQLiteBusyError(err error) bool {
	return sqliteCode(err) == sqlite3.SQLITE_BUSY ||
		(err != nil && strings.Contains(err.Error(), "SQLITE_BUSY"))
}

// IsSQLiteLockedError reports whether err is SQLITE_LOCKED or a
// "database is locked" message.
func IsSQLiteLockedError(err error) bool {
	return sqliteCode(err) == sqlite3.SQLITE_LOCKED ||
		(err != nil && strings.Contains(err.Error(), "database is locked"))
}

// IsSQLiteConflictError reports whether a write lost a lock race and may be retried.
func IsSQLiteConflictError(err error) bool {
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}

// sqliteCode returns the primary result code of a driver error, or -1.
func sqliteCode(err error) int {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return -1
	}
	return se.Code() & 0xff
}
