package bridge

import (
	"errors"
	"fmt"
)

// ErrInvalidName matches every *InvalidNameError via errors.Is.
var ErrInvalidName = errors.New("bridge: invalid database name")

// ErrNotFound matches every *NotFoundError via errors.Is.
var ErrNotFound = errors.New("bridge: database file not found")

// InvalidNameError is returned for database names that are not plain file
// names.
type InvalidNameError struct {
	Name string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("File %s contains a path separator", e.Name)
}

func (e *InvalidNameError) Is(target error) bool { return target == ErrInvalidName }

// NotFoundError is returned when the named database has not been
// provisioned. No open is attempted.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return "Database file not found: " + e.Name
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
