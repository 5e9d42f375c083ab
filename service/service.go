// Package service exposes the batch scheduler over HTTP.
//
//	POST   /v1/jobs             submit downloads, 202 with the job
//	GET    /v1/jobs             list jobs, optionally ?status=running
//	GET    /v1/jobs/{id}        job with its tasks
//	GET    /v1/jobs/{id}/report summary of a finished job, 409 while running
//	DELETE /v1/jobs/{id}        cancel a job
//	GET    /healthz             liveness
//	GET    /metrics             Prometheus exposition
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/downloader/batch"
	"github.com/adamwoolhether/downloader/report"
	"github.com/adamwoolhether/downloader/web"
	"github.com/adamwoolhether/downloader/web/errs"
	"github.com/adamwoolhether/downloader/web/middleware"
	"github.com/adamwoolhether/downloader/web/mux"
)

var ErrJobNotFound = errors.New("job not found")

// Config wires the service's dependencies. Only Scheduler is required;
// /metrics is served when Gatherer is set.
type Config struct {
	Scheduler *batch.Scheduler
	Jobs      *Registry
	Logger    *slog.Logger
	Tracer    trace.Tracer
	Metrics   *middleware.HTTPMetrics
	Gatherer  prometheus.Gatherer
}

type handlers struct {
	sched *batch.Scheduler
	jobs  *Registry
	log   *slog.Logger
}

// Routes builds the HTTP API.
func Routes(cfg Config) (*mux.App, error) {
	if cfg.Scheduler == nil {
		return nil, errors.New("scheduler must not be nil")
	}
	if cfg.Jobs == nil {
		cfg.Jobs = NewRegistry(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// Metrics sits outside Errors so it sees the status clients get.
	mw := []mux.Middleware{middleware.Logger(cfg.Logger)}
	if cfg.Metrics != nil {
		mw = append(mw, middleware.Metrics(cfg.Metrics))
	}
	mw = append(mw, middleware.Errors(cfg.Logger), middleware.Panics())

	opts := []mux.Option{mux.WithMiddleware(mw...), mux.WithLogger(cfg.Logger)}
	if cfg.Tracer != nil {
		opts = append(opts, mux.WithTracer(cfg.Tracer))
	}
	app := mux.New(opts...)

	h := handlers{sched: cfg.Scheduler, jobs: cfg.Jobs, log: cfg.Logger}

	app.Get("/healthz", h.health)
	if cfg.Gatherer != nil {
		app.HandleRaw(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	v1 := app.Mount("v1")
	v1.Post("/jobs", h.submit)
	v1.Get("/jobs", h.list)
	v1.Get("/jobs/{id}", h.get)
	v1.Get("/jobs/{id}/report", h.report)
	v1.Delete("/jobs/{id}", h.cancel)

	return app, nil
}

func (h handlers) health(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.RespondJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h handlers) submit(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req SubmitRequest
	if err := web.Decode(r, &req); err != nil {
		if errs.IsFieldErrors(err) {
			return err
		}
		return errs.New(http.StatusBadRequest, err)
	}

	ctx, span := mux.AddSpan(ctx, "service.submit", attribute.Int("downloads", len(req.Downloads)))
	defer span.End()

	// Jobs outlive the request; Registry.Shutdown stops them.
	job, err := h.sched.Submit(context.WithoutCancel(ctx), req.specs())
	if err != nil {
		return specErrors(err)
	}

	h.jobs.Add(job)
	mux.SetJob(ctx, job.ID.String())

	return web.RespondJSON(ctx, w, http.StatusAccepted, toJob(job, true))
}

func (h handlers) list(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	status := batch.Status(web.QueryString(r, "status"))

	out := []Job{}
	for _, job := range h.jobs.List() {
		j := toJob(job, false)
		if status != "" && j.Status != status {
			continue
		}
		out = append(out, j)
	}

	return web.RespondJSON(ctx, w, http.StatusOK, out)
}

func (h handlers) get(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	job, err := h.lookup(r)
	if err != nil {
		return err
	}

	return web.RespondJSON(ctx, w, http.StatusOK, toJob(job, true))
}

func (h handlers) report(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	job, err := h.lookup(r)
	if err != nil {
		return err
	}

	if !job.Finished() {
		return errs.Newf(http.StatusConflict, "job %s is still running", job.ID)
	}

	return web.RespondJSON(ctx, w, http.StatusOK, report.Summarize(job.Results(), job.Elapsed()))
}

func (h handlers) cancel(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	job, err := h.lookup(r)
	if err != nil {
		return err
	}

	job.Cancel()
	h.log.Info("job cancel requested", "job", job.ID, "trace_id", mux.GetTraceID(ctx))

	return web.RespondJSON(ctx, w, http.StatusAccepted, toJob(job, false))
}

func (h handlers) lookup(r *http.Request) (*batch.Job, error) {
	id, err := web.ParamUUID(r, "id")
	if err != nil {
		return nil, errs.New(http.StatusBadRequest, err)
	}
	mux.SetJob(r.Context(), id.String())

	job, ok := h.jobs.Get(id)
	if !ok {
		return nil, errs.Newf(http.StatusNotFound, "%w: %s", ErrJobNotFound, id)
	}

	return job, nil
}

// specErrors maps scheduler validation failures onto request fields.
func specErrors(err error) error {
	if errors.Is(err, batch.ErrNoDownloads) {
		return errs.NewFieldsError("downloads", err)
	}

	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		return errs.NewInternal(err)
	}

	var fields errs.FieldErrors
	for _, e := range joined.Unwrap() {
		se, ok := errors.AsType[*batch.SpecError](e)
		if !ok {
			return errs.NewInternal(err)
		}
		fields = append(fields, errs.FieldError{
			Field: fmt.Sprintf("downloads[%d].%s", se.Index, se.Field),
			Err:   se.Err.Error(),
		})
	}

	return fields
}
