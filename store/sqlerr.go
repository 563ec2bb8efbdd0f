package store

import (
	"errors"
	"strings"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// IsBusyConflict reports whether err is a lock conflict worth retrying.
func IsBusyConflict(err error) bool {
	if err == nil {
		return false
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}

	s := strings.ToLower(err.Error())
	return strings.Contains(s, "database is locked") ||
		strings.Contains(s, "database table is locked")
}

// IsConstraint reports whether err is a constraint violation
// (unique, foreign key, check).
func IsConstraint(err error) bool {
	if err == nil {
		return false
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}

	return strings.Contains(strings.ToLower(err.Error()), "constraint")
}

// IsUniqueConstraint reports whether err is specifically a unique or
// primary key violation.
func IsUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}

	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique constraint")
}
