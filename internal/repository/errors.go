// Package repository holds the SQL-backed credential and session stores.
// Repositories hold no business rules: they run single-row queries and
// translate driver errors into the sentinels below so higher layers never
// see sql.ErrNoRows or driver-specific codes.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup or single-row write matches no row.
var ErrNotFound = errors.New("not found")

// ErrUsernameTaken and ErrEmailTaken are returned when an insert or update
// violates the username or email uniqueness constraint.
var (
	ErrUsernameTaken = errors.New("username already exists")
	ErrEmailTaken    = errors.New("email already exists")
)

// ErrConflict is returned for any other unique constraint violation, such
// as a duplicate token digest.
var ErrConflict = errors.New("conflict")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// uniqueViolation maps a unique-constraint violation to one of the
// sentinels above.  It returns nil for any other error.
func uniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var target string
	var me *mysql.MySQLError
	switch {
	case errors.As(err, &me) && me.Number == mysqlDuplicateEntry:
		// Duplicate entry 'alice' for key 'principals.uq_principals_username'
		_, target, _ = strings.Cut(me.Message, "for key")
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		// UNIQUE constraint failed: principals.username
		_, target, _ = strings.Cut(err.Error(), "UNIQUE constraint failed")
	default:
		return nil
	}
	switch {
	case strings.Contains(target, "username"):
		return ErrUsernameTaken
	case strings.Contains(target, "email"):
		return ErrEmailTaken
	default:
		return ErrConflict
	}
}
