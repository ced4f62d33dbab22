package memory

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when no entry is stored under the requested
// key. Keys here are logical memory keys, not the prefixed state keys.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("memory entry not found: %s", e.Key)
}

// InvalidArgumentError is returned when an argument fails validation
// before any storage call is made. Never retried.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsInvalidArgument returns true if the error is an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var target *InvalidArgumentError
	return errors.As(err, &target)
}
