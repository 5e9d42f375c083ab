package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/adamwoolhether/downloader/web/mux"
)

// ErrPanic wraps a panic recovered from a handler.
var ErrPanic = errors.New("handler panicked")

// Panics turns a panic in a route's handler into an error naming the route
// and carrying the stack, which Errors then answers as a 500.
func Panics() mux.Middleware {
	m := func(handler mux.Handler) mux.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) (err error) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				err = fmt.Errorf("%w in %s: %v\n%s", ErrPanic, mux.GetValues(ctx).Route, rec, debug.Stack())
			}()

			return handler(ctx, w, r)
		}

		return h
	}

	return m
}
