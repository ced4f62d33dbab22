package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// MetricsRecorder is the slice of the metrics manager the HTTP layer
// needs. The context carries the active trace span so recordings can be
// exemplar-linked.
type MetricsRecorder interface {
	RecordHTTPRequest(ctx context.Context, method, path, status string, duration time.Duration)
	IncActiveConnections()
	DecActiveConnections()
}

// Metrics returns a middleware that records request count, latency and
// in-flight connections for every route.
func Metrics(recorder MetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder.IncActiveConnections()
			defer recorder.DecActiveConnections()

			// Wrap response writer to capture status code
			wrapped := &metricsResponseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// Record even when the handler panics, then re-panic so the
			// recovery middleware can answer the client.
			defer func() {
				if err := recover(); err != nil {
					wrapped.statusCode = http.StatusInternalServerError
					recorder.RecordHTTPRequest(r.Context(), r.Method, metricPath(r),
						strconv.Itoa(wrapped.statusCode), time.Since(start))
					panic(err)
				}
			}()

			next.ServeHTTP(wrapped, r)

			recorder.RecordHTTPRequest(r.Context(), r.Method, metricPath(r),
				strconv.Itoa(wrapped.statusCode), time.Since(start))
		})
	}
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status code.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// metricPath returns a bounded-cardinality path label: the matched chi
// route pattern when there is one, a normalized literal path otherwise.
// The route context is filled in during routing, so this must run after
// next.ServeHTTP.
func metricPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := strings.TrimSpace(rc.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return normalizePath(r.URL.Path)
}

// normalizePath collapses identifier-shaped segments so unmatched paths
// do not explode the label space. Task ids (ULIDs), UUIDs and numeric
// ids become ":id"; stream names, which contain colons, become ":name".
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		switch {
		case isULID(part):
			parts[i] = ":id"
		case len(part) == 36 && strings.Count(part, "-") == 4:
			parts[i] = ":id"
		case strings.Contains(part, ":"):
			parts[i] = ":name"
		default:
			if _, err := strconv.Atoi(part); err == nil && len(part) > 0 {
				parts[i] = ":id"
			}
		}
	}
	return strings.Join(parts, "/")
}

// isULID reports whether s has the shape of a 26-character Crockford
// base32 ULID, the id format the task registry issues.
func isULID(s string) bool {
	if len(s) != 26 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'A' && c <= 'Z':
			// Crockford base32 excludes these four letters.
			if c == 'I' || c == 'L' || c == 'O' || c == 'U' {
				return false
			}
		default:
			return false
		}
	}
	return true
}
