package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/novaops/redstream/pkg/memory"
	"github.com/novaops/redstream/pkg/naming"
	"github.com/novaops/redstream/pkg/state"
	"github.com/novaops/redstream/pkg/stream"
	"github.com/novaops/redstream/pkg/task"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// Common error codes
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeTooManyRequests    = "TOO_MANY_REQUESTS"
	ErrCodeInternalServer     = "INTERNAL_SERVER_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"
)

// UnavailableMessage is the body sent when the backing store cannot be
// reached. Deliberately generic: retry counts and connection details
// stay server-side.
const UnavailableMessage = "service unavailable, retry later"

// DomainStatus maps an error from the broker packages onto an HTTP
// status code and error code. Unknown errors map to 500.
func DomainStatus(err error) (int, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeGatewayTimeout
	case naming.IsInvalidNameError(err),
		stream.IsInvalidArgument(err),
		state.IsInvalidKey(err),
		memory.IsInvalidArgument(err),
		task.IsInvalidArgument(err):
		return http.StatusBadRequest, ErrCodeValidationFailed
	case task.IsInvalidTransition(err):
		return http.StatusConflict, ErrCodeConflict
	case stream.IsGroupNotFound(err),
		state.IsNotFound(err),
		memory.IsNotFound(err),
		task.IsNotFound(err):
		return http.StatusNotFound, ErrCodeNotFound
	case stream.IsBackendUnavailable(err), state.IsUnavailable(err):
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternalServer
	}
}

// DomainError writes err as a standard error envelope. Client errors
// carry the domain error text so callers can fix their request; 5xx
// responses get a generic message so internals do not leak.
func DomainError(w http.ResponseWriter, err error, requestID string) {
	status, code := DomainStatus(err)
	message := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		message = UnavailableMessage
	case http.StatusInternalServerError:
		message = "internal server error"
	case http.StatusGatewayTimeout:
		message = "request timed out"
	}
	Error(w, status, code, message, requestID)
}
