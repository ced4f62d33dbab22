package state

import (
	"errors"
	"fmt"
)

// NotFoundError indicates the requested entry does not exist or has
// expired. Delete of an absent key is a no-op success and never returns
// this.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("state entry not found: %s", e.Key)
}

// InvalidKeyError indicates a key that fails validation before any
// backend call. Never retried.
type InvalidKeyError struct {
	Key    string
	Reason string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid state key %q: %s", e.Key, e.Reason)
}

// StorageUnavailableError indicates the backend stayed unreachable through
// the whole retry budget.
type StorageUnavailableError struct {
	Op    string
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Cause
}

// SerializationError indicates a value could not be marshaled or
// unmarshaled.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsInvalidKey returns true if the error is an InvalidKeyError.
func IsInvalidKey(err error) bool {
	var target *InvalidKeyError
	return errors.As(err, &target)
}

// IsUnavailable returns true if the error is a StorageUnavailableError.
func IsUnavailable(err error) bool {
	var target *StorageUnavailableError
	return errors.As(err, &target)
}
