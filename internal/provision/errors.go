package provision

import (
	"errors"
	"fmt"
)

// ErrProvisionFailed matches every *Error via errors.Is.
var ErrProvisionFailed = errors.New("provision: failed")

// Error reports the step and file at which a provisioning pass stopped.
type Error struct {
	// Op is the step that failed: "list", "mkdir", "open", "create",
	// "copy", "sync", "close" or "rename".
	Op string

	// File is the asset name, empty for folder-level steps.
	File string

	Err error
}

func (e *Error) Error() string {
	if e.File == "" {
		return fmt.Sprintf("provision: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("provision: %s %s: %v", e.Op, e.File, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports true for ErrProvisionFailed.
func (e *Error) Is(target error) bool {
	return target == ErrProvisionFailed
}
