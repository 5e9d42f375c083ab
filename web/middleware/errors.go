package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path"

	"github.com/adamwoolhether/downloader/web"
	"github.com/adamwoolhether/downloader/web/errs"
	"github.com/adamwoolhether/downloader/web/mux"
)

// Errors answers handler errors. Field errors become 422, *errs.Error
// keeps its code, anything else is logged and answered as a bare 500.
func Errors(log *slog.Logger) mux.Middleware {
	m := func(handler mux.Handler) mux.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)
			if err == nil {
				return nil
			}

			if fieldErr, ok := errors.AsType[errs.FieldErrors](err); ok {
				return web.RespondJSON(ctx, w, http.StatusUnprocessableEntity, fieldErr)
			}

			appErr, ok := errors.AsType[*errs.Error](err)
			if !ok {
				appErr = errs.NewInternal(err)
			}

			level := slog.LevelWarn
			if appErr.Code >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			log.Log(ctx, level, "request failed",
				"trace_id", mux.GetTraceID(ctx),
				"status", appErr.Code,
				"error", err,
				"source_err_file", path.Base(appErr.FileName),
				"source_err_func", path.Base(appErr.FuncName),
			)

			if appErr.IsInternal() {
				// Copy so a shared error value is never mutated.
				out := *appErr
				out.Message = http.StatusText(appErr.Code)
				appErr = &out
			}

			return web.RespondError(ctx, w, appErr)
		}

		return h
	}

	return m
}
