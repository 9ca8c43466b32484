package repository

import (
	"database/sql"
	"strconv"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when the id does not resolve to a row.
	ErrNotFound = errors.New("record not found")
	// ErrStale is returned when a compare-and-swap lost against a concurrent
	// writer. Callers re-read and re-validate.
	ErrStale = errors.New("record changed concurrently")
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func nullString(s *string) interface{} {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
