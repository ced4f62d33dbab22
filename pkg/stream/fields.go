package stream

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Conventional fields carried by audit and operator messages. The gateway
// does not enforce them; the memory bank, task registry, and CLI stamp
// them on everything they publish.
const (
	// FieldTimestamp is the publish instant in epoch milliseconds.
	FieldTimestamp = "_timestamp"
	// FieldSource is the logical producer identifier.
	FieldSource = "_source"
	// FieldTraceID is an opaque correlation token.
	FieldTraceID = "_trace_id"
)

// Stamp returns a copy of fields with the conventional fields filled in
// where absent: _timestamp from the wall clock, _source from the producer
// name, _trace_id from the active trace or a fresh random token.
func Stamp(ctx context.Context, fields map[string]string, source string) map[string]string {
	out := make(map[string]string, len(fields)+3)
	for k, v := range fields {
		out[k] = v
	}

	if _, ok := out[FieldTimestamp]; !ok {
		out[FieldTimestamp] = strconv.FormatInt(time.Now().UnixMilli(), 10)
	}
	if _, ok := out[FieldSource]; !ok && source != "" {
		out[FieldSource] = source
	}
	if _, ok := out[FieldTraceID]; !ok {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			out[FieldTraceID] = sc.TraceID().String()
		} else {
			out[FieldTraceID] = uuid.NewString()
		}
	}
	return out
}
