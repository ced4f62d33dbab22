package naming

import (
	"errors"
	"fmt"
)

// InvalidNameError is returned when a stream identifier fails grammar
// validation. It is deterministic and must never be retried.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid stream name %q: %s (expected %q or legacy %q)",
		e.Name, e.Reason, CanonicalGrammar, LegacyGrammar)
}

// IsInvalidNameError returns true if the error is an InvalidNameError.
func IsInvalidNameError(err error) bool {
	var e *InvalidNameError
	return errors.As(err, &e)
}
