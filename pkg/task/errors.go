package task

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when no task is stored under the requested id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.ID)
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

// InvalidTransitionError is returned when a status change is not allowed
// from the task's current status. Terminal tasks accept no writes at all,
// so a non-status update against one also carries this error, with From
// and To equal.
type InvalidTransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	if e.From.Terminal() && e.From == e.To {
		return fmt.Sprintf("task %s: status %q is terminal and the record is frozen", e.ID, e.From)
	}
	return fmt.Sprintf("task %s: invalid status transition %q -> %q", e.ID, e.From, e.To)
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

// IsInvalidTransition returns true if the error is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}
