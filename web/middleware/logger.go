package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/adamwoolhether/downloader/web/mux"
)

// Logger logs the start and end of every request with its trace id, and
// the job id when a handler set one. Server errors complete at error level.
func Logger(log *slog.Logger) mux.Middleware {
	m := func(handler mux.Handler) mux.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			v := mux.GetValues(ctx)

			path := r.URL.Path
			if r.URL.RawQuery != "" {
				path += "?" + r.URL.RawQuery
			}

			reqLog := log.With("trace_id", v.TraceID, "method", r.Method, "path", path)
			reqLog.Debug("request started", "remoteaddr", r.RemoteAddr)

			err := handler(ctx, w, r)

			level := slog.LevelInfo
			if v.StatusCode >= http.StatusInternalServerError {
				level = slog.LevelError
			}

			attrs := []any{"status", v.StatusCode, "since", time.Since(v.Now).String()}
			if v.JobID != "" {
				attrs = append(attrs, "job", v.JobID)
			}
			reqLog.Log(ctx, level, "request completed", attrs...)

			return err
		}

		return h
	}

	return m
}
