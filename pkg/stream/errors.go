package stream

import (
	"errors"
	"fmt"
)

// BackendUnavailableError is returned when a backend operation keeps
// failing after the bounded retry budget is spent. The caller may retry at
// its own pace.
type BackendUnavailableError struct {
	Op  string
	Err error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("backend unavailable during %s: %v", e.Op, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}

// InvalidArgumentError is returned when an argument fails validation
// before reaching the backend. Never retried.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// GroupNotFoundError is returned when a consumer-group operation names a
// group that was never created on the stream.
type GroupNotFoundError struct {
	Stream string
	Group  string
}

func (e *GroupNotFoundError) Error() string {
	return fmt.Sprintf("consumer group %s does not exist on stream %s", e.Group, e.Stream)
}

// IsBackendUnavailable returns true if the error is a BackendUnavailableError.
func IsBackendUnavailable(err error) bool {
	var target *BackendUnavailableError
	return errors.As(err, &target)
}

// IsInvalidArgument returns true if the error is an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var target *InvalidArgumentError
	return errors.As(err, &target)
}

// IsGroupNotFound returns true if the error is a GroupNotFoundError.
func IsGroupNotFound(err error) bool {
	var target *GroupNotFoundError
	return errors.As(err, &target)
}
