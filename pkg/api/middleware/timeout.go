package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/novaops/redstream/pkg/api/response"
)

// Timeout returns a middleware that bounds request handling time. When
// the deadline passes before the handler finishes, the client gets a
// 504 and the handler's context is cancelled so blocking reads unwind.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			done := make(chan struct{})

			go func() {
				next.ServeHTTP(w, r.WithContext(ctx))
				close(done)
			}()

			select {
			case <-done:
				return
			case <-ctx.Done():
				requestID := GetRequestID(r.Context())
				if requestID == "" {
					requestID = "unknown"
				}

				response.Error(w,
					http.StatusGatewayTimeout,
					response.ErrCodeGatewayTimeout,
					"request timed out",
					requestID,
				)
			}
		})
	}
}
