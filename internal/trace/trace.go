// Package trace provides per-request trace identifiers and structured span
// emission for the triage pipeline. Spans are observability-only: they are
// fire-and-forget, never retried, and their loss never affects a request.
package trace

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Recorder issues trace ids and emits timestamped span records to the log
// stream. The zero value is not usable; construct with New.
type Recorder struct {
	logger log.Logger
}

// New creates a Recorder that emits spans through the given logger.
func New(logger log.Logger) *Recorder {
	if logger == nil {
		logger = log.Nop()
	}
	return &Recorder{logger: logger}
}

// Start returns a fresh trace id. ULIDs carry 80 bits of entropy plus a
// timestamp, so collisions are negligible and ids sort by creation time.
func (r *Recorder) Start() string {
	return ulid.Make().String()
}

// Span emits one structured span record correlated by trace id. It never
// fails the caller: panics from bad metadata are swallowed, and emission is
// best-effort. Extra metadata is passed as alternating key/value pairs.
func (r *Recorder) Span(ctx context.Context, traceID, name string, kv ...any) {
	defer func() {
		_ = recover()
	}()

	fields := make([]any, 0, len(kv)+6)
	fields = append(fields,
		"trace_id", traceID,
		"span_name", name,
		"ts", time.Now().UTC().Format(time.RFC3339Nano),
	)
	fields = append(fields, kv...)

	r.logger.Info(ctx, "span", fields...)

	// Mirror the span onto the active otel span, if any, so log-stream spans
	// and distributed traces stay correlatable.
	if span := oteltrace.SpanFromContext(ctx); span != nil && span.IsRecording() {
		span.AddEvent(name, oteltrace.WithAttributes(
			attribute.String("carepath.trace_id", traceID),
		))
	}
}
