package mux

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type ctxKey int

const base ctxKey = 1

// BaseValues are set on every routed request.
type BaseValues struct {
	TraceID    string
	Route      string // the registered pattern, e.g. "GET /v1/jobs/{id}"
	JobID      string // set by handlers that address a download job
	Now        time.Time
	Tracer     trace.Tracer
	StatusCode int
}

func values(ctx context.Context) (*BaseValues, bool) {
	v, ok := ctx.Value(base).(*BaseValues)
	return v, ok
}

// SetStatusCode records the response status for the logging and
// metrics middleware.
func SetStatusCode(ctx context.Context, statusCode int) {
	if v, ok := values(ctx); ok {
		v.StatusCode = statusCode
	}
}

// SetJob tags the request with the job it reads or changes, so the
// request log can be joined with the scheduler's job log.
func SetJob(ctx context.Context, jobID string) {
	if v, ok := values(ctx); ok {
		v.JobID = jobID
	}
}

// GetValues returns the request's BaseValues. Outside a routed request it
// returns fresh values with the nil trace id and a no-op tracer.
func GetValues(ctx context.Context) *BaseValues {
	if v, ok := values(ctx); ok {
		return v
	}

	return &BaseValues{
		TraceID: uuid.Nil.String(),
		Tracer:  noop.NewTracerProvider().Tracer(""),
		Now:     time.Now(),
	}
}

// GetTraceID returns the request's trace id, or the nil uuid outside
// a routed request.
func GetTraceID(ctx context.Context) string {
	if v, ok := values(ctx); ok {
		return v.TraceID
	}

	return uuid.Nil.String()
}

// AddSpan starts a span on the request's tracer tagged with the route.
// Outside a routed request it returns ctx and its current span.
func AddSpan(ctx context.Context, spanName string, keyValues ...attribute.KeyValue) (context.Context, trace.Span) {
	v, ok := values(ctx)
	if !ok || v.Tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := v.Tracer.Start(ctx, spanName, trace.WithAttributes(attribute.String("http.route", v.Route)))
	span.SetAttributes(keyValues...)

	return ctx, span
}

func setValues(ctx context.Context, v *BaseValues) context.Context {
	return context.WithValue(ctx, base, v)
}
