package startup

import "errors"

var (
	// ErrAlreadyStarted is returned when Start is called more than once.
	ErrAlreadyStarted = errors.New("startup: task already started")

	// ErrNotFailed is returned by Retry when the task is not in StateFailed.
	ErrNotFailed = errors.New("startup: task is not in failed state")

	// ErrNegativeVersion is returned for a negative running version code.
	ErrNegativeVersion = errors.New("startup: version code must not be negative")
)
