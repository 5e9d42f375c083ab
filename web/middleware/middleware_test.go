package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/adamwoolhether/downloader/web"
	"github.com/adamwoolhether/downloader/web/errs"
	"github.com/adamwoolhether/downloader/web/middleware"
	"github.com/adamwoolhether/downloader/web/mux"
)

var discard = slog.New(slog.DiscardHandler)

func serve(t *testing.T, app *mux.App, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	w := httptest.NewRecorder()
	app.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestErrors(t *testing.T) {
	tests := map[string]struct {
		err      error
		wantCode int
		wantBody string
	}{
		"no error": {
			wantCode: http.StatusOK,
			wantBody: `{"ok":true}`,
		},
		"app error": {
			err:      errs.New(http.StatusNotFound, errors.New("job not found")),
			wantCode: http.StatusNotFound,
			wantBody: `{"code":404,"message":"job not found"}`,
		},
		"wrapped app error": {
			err:      fmt.Errorf("handler: %w", errs.New(http.StatusConflict, errors.New("running"))),
			wantCode: http.StatusConflict,
			wantBody: `{"code":409,"message":"running"}`,
		},
		"internal error": {
			err:      errs.NewInternal(errors.New("secret disk error")),
			wantCode: http.StatusInternalServerError,
			wantBody: `{"code":500,"message":"Internal Server Error"}`,
		},
		"plain error": {
			err:      errors.New("secret failure"),
			wantCode: http.StatusInternalServerError,
			wantBody: `{"code":500,"message":"Internal Server Error"}`,
		},
		"field errors": {
			err:      errs.NewFieldsError("url", errors.New("required")),
			wantCode: http.StatusUnprocessableEntity,
			wantBody: `[{"field":"url","error":"required"}]`,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			app := mux.New(mux.WithMiddleware(middleware.Errors(discard)))
			app.Get("/", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
				if tc.err != nil {
					return tc.err
				}
				return web.RespondJSON(ctx, w, http.StatusOK, map[string]bool{"ok": true})
			})

			w := serve(t, app, http.MethodGet, "/")

			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantCode)
			}
			if got := w.Body.String(); got != tc.wantBody {
				t.Fatalf("body = %s, want %s", got, tc.wantBody)
			}
		})
	}
}

func TestErrors_InternalNotMutated(t *testing.T) {
	shared := errs.NewInternal(errors.New("secret"))

	app := mux.New(mux.WithMiddleware(middleware.Errors(discard)))
	app.Get("/", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return shared
	})

	serve(t, app, http.MethodGet, "/")

	if shared.Message != "secret" {
		t.Fatalf("shared error message changed to %q", shared.Message)
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	app := mux.New(mux.WithMiddleware(middleware.Logger(log), middleware.Errors(discard)))
	app.Post("/items", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.RespondJSON(ctx, w, http.StatusCreated, "ok")
	})

	serve(t, app, http.MethodPost, "/items?dry=1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}

	var done map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &done); err != nil {
		t.Fatal(err)
	}

	if done["msg"] != "request completed" || done["path"] != "/items?dry=1" || done["method"] != "POST" {
		t.Fatalf("unexpected completion log: %v", done)
	}
	if done["status"] != float64(http.StatusCreated) {
		t.Fatalf("status = %v, want %d", done["status"], http.StatusCreated)
	}
	if id, _ := done["trace_id"].(string); id == "" {
		t.Fatal("trace_id should be logged")
	}
}

func TestLogger_JobAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	app := mux.New(mux.WithMiddleware(middleware.Logger(log), middleware.Errors(discard), middleware.Panics()))
	app.Get("/jobs/{id}", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		mux.SetJob(ctx, r.PathValue("id"))
		return web.RespondJSON(ctx, w, http.StatusOK, "ok")
	})
	app.Get("/boom", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		panic("boom")
	})

	serve(t, app, http.MethodGet, "/jobs/42")
	serve(t, app, http.MethodGet, "/boom")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}

	var job, boom map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &job); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &boom); err != nil {
		t.Fatal(err)
	}

	if job["job"] != "42" || job["level"] != "INFO" {
		t.Errorf("job request log = %v, want job 42 at INFO", job)
	}
	if _, ok := boom["job"]; ok || boom["level"] != "ERROR" {
		t.Errorf("failed request log = %v, want no job at ERROR", boom)
	}
}

func TestPanics(t *testing.T) {
	handler := middleware.Panics()(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		panic("something broke")
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	err := handler(r.Context(), httptest.NewRecorder(), r)

	if !errors.Is(err, middleware.ErrPanic) {
		t.Fatalf("expected ErrPanic, got: %v", err)
	}
	if !strings.Contains(err.Error(), "something broke") || !strings.Contains(err.Error(), "goroutine") {
		t.Fatalf("error should carry the value and stack: %s", err)
	}

	ok := middleware.Panics()(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return nil
	})
	if err := ok(r.Context(), httptest.NewRecorder(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPanics_AnsweredAs500(t *testing.T) {
	app := mux.New(mux.WithMiddleware(middleware.Errors(discard), middleware.Panics()))
	app.Get("/", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		panic("boom")
	})

	if w := serve(t, app, http.MethodGet, "/"); w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := middleware.NewHTTPMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}

	app := mux.New(mux.WithMiddleware(middleware.Metrics(m), middleware.Errors(discard)))
	app.Get("/jobs/{id}", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if r.PathValue("id") == "missing" {
			return errs.New(http.StatusNotFound, errors.New("not found"))
		}
		return web.RespondJSON(ctx, w, http.StatusOK, "ok")
	})

	serve(t, app, http.MethodGet, "/jobs/a")
	serve(t, app, http.MethodGet, "/jobs/b")
	serve(t, app, http.MethodGet, "/jobs/missing")

	expected := `
# HELP downloader_http_requests_total HTTP requests by route and status code.
# TYPE downloader_http_requests_total counter
downloader_http_requests_total{code="200",route="GET /jobs/{id}"} 2
downloader_http_requests_total{code="404",route="GET /jobs/{id}"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "downloader_http_requests_total"); err != nil {
		t.Fatal(err)
	}

	if _, err := middleware.NewHTTPMetrics(reg); err == nil {
		t.Fatal("registering twice should fail")
	}
}
