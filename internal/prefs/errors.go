package prefs

import "errors"

var (
	// ErrEmptyKey is returned when a preference key is empty.
	ErrEmptyKey = errors.New("prefs: empty key")

	// ErrNilDB is returned when constructing a SQLiteStore without a database.
	ErrNilDB = errors.New("prefs: nil database")
)
