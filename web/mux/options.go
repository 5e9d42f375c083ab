package mux

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type Option func(*options)

type options struct {
	tracer trace.Tracer
	logger *slog.Logger
	mw     []Middleware
}

// WithMiddleware sets the app-wide middleware. The first one given is
// outermost: Logger, Metrics, Errors, Panics is the usual order, so that
// Errors has answered before Metrics records the status.
func WithMiddleware(mw ...Middleware) Option {
	return func(opts *options) {
		opts.mw = append(opts.mw, mw...)
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(opts *options) {
		opts.tracer = tracer
	}
}

// WithLogger sets the logger for errors no middleware handled.
func WithLogger(log *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = log
	}
}
