package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/adamwoolhether/downloader/client"
	"github.com/adamwoolhether/downloader/client/download"
	"github.com/adamwoolhether/downloader/client/retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Downloader streams one URL to disk. *client.Client satisfies it.
type Downloader interface {
	Download(req *http.Request, expCode int, destPath string, opts ...download.Option) (download.Stats, error)
}

// Scheduler runs jobs of downloads with bounded concurrency and retries.
// The concurrency bound and destination names are shared by every job it
// runs.
type Scheduler struct {
	dl        Downloader
	dir       string
	dests     *destinations
	slots     *download.Queue
	policy    retry.Policy
	dlOpts    []download.Option
	observer  Observer
	publisher Publisher
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New constructs a Scheduler that downloads through dl.
func New(dl Downloader, optFns ...Option) (*Scheduler, error) {
	if dl == nil {
		return nil, errors.New("downloader must not be nil")
	}

	opts := options{
		dir:    "downloads",
		policy: retry.DefaultPolicy,
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying scheduler option: %w", err)
		}
	}

	s := Scheduler{
		dl:        dl,
		dir:       opts.dir,
		dests:     newDestinations(opts.dir),
		slots:     download.NewQueue(opts.concurrency),
		policy:    opts.policy,
		dlOpts:    opts.dlOpts,
		observer:  Observers(opts.observers...),
		publisher: opts.publisher,
		logger:    opts.logger,
		tracer:    opts.tracer,
	}

	return &s, nil
}

// Dir returns the directory downloads are written to.
func (s *Scheduler) Dir() string {
	return s.dir
}

// Submit validates specs and starts downloading them in the background.
// The job lives as long as ctx; pass a context that outlives the caller
// when the job must keep running after Submit returns.
func (s *Scheduler) Submit(ctx context.Context, specs []Spec) (*Job, error) {
	if len(specs) == 0 {
		return nil, ErrNoDownloads
	}

	paths := make([]string, len(specs))
	sums := make([]*checksum, len(specs))

	var errs []error
	for i, spec := range specs {
		if err := validateURL(spec.URL); err != nil {
			errs = append(errs, &SpecError{Index: i, Field: "url", Err: err})
		}

		sum, err := parseChecksum(spec.Checksum)
		if err != nil {
			errs = append(errs, &SpecError{Index: i, Field: "checksum", Err: err})
		}
		sums[i] = sum

		p, err := s.dests.resolve(spec)
		if err != nil {
			errs = append(errs, &SpecError{Index: i, Field: "dest", Err: err})
		}
		paths[i] = p
	}
	if len(errs) > 0 {
		s.dests.release(paths...)
		return nil, errors.Join(errs...)
	}

	for _, p := range paths {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			s.dests.release(paths...)
			return nil, fmt.Errorf("creating download directory: %w", err)
		}
	}

	// Every job's queue draws from the same slots.
	ctx, cancel := context.WithCancelCause(ctx)
	queue := s.slots.Fork()
	job := newJob(paths, specs, queue, cancel)

	s.logger.Info("job submitted", "job", job.ID, "downloads", len(specs), "dir", s.dir)

	handles := make([]*download.Result, len(specs))
	for i := range specs {
		handles[i] = queue.Start(ctx, func(ctx context.Context) error {
			return s.runTask(ctx, job, i, sums[i])
		}, nil)
	}

	go func() {
		defer cancel(nil)

		// Tasks that never got a slot still need a result.
		for i, h := range handles {
			err := h.Err()
			if err == nil {
				continue
			}
			if cause := context.Cause(ctx); cause != nil && errors.Is(err, context.Canceled) {
				err = cause
			}
			s.finish(job, i, Result{Status: StatusCancelled, Kind: client.FailureCancelled, Err: err})
		}

		s.dests.release(paths...)
		job.end()
		s.logger.Info("job finished", "job", job.ID, "status", job.Status(), "elapsed", job.Elapsed())
	}()

	return job, nil
}

// Run submits specs and waits for every download to finish.
func (s *Scheduler) Run(ctx context.Context, specs []Spec) ([]Result, error) {
	job, err := s.Submit(ctx, specs)
	if err != nil {
		return nil, err
	}

	<-job.Done()

	return job.Results(), job.Err()
}

func (s *Scheduler) runTask(ctx context.Context, job *Job, i int, sum *checksum) error {
	task := job.task(i)

	ctx, span := s.tracer.Start(ctx, "batch.download", trace.WithAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("task.id", task.ID.String()),
		attribute.String("url", task.URL),
	))
	defer span.End()

	start := time.Now()
	task = job.update(i, func(t *Task) {
		t.Status = StatusRunning
		t.Started = start
	})
	s.observer.TaskStarted(task)

	progress := download.WithProgressFunc(func(p download.Progress) {
		job.update(i, func(t *Task) { t.Bytes = p.Transferred })
	})

	var stats download.Stats
	var lastErr error
	attempts, err := retry.Do(ctx, s.policy, client.IsRetryable, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			retried := job.update(i, func(t *Task) {
				t.Attempts = attempt
				t.Error = lastErr.Error()
			})
			s.logger.Warn("retrying download", "url", task.URL, "attempt", attempt, "error", lastErr)
			s.observer.TaskRetried(retried, lastErr)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, http.NoBody)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}

		opts := append(slices.Clone(s.dlOpts), progress)
		if sum != nil {
			opts = append(opts, sum.option())
		}

		stats, lastErr = s.dl.Download(req, http.StatusOK, task.Dest, opts...)
		return lastErr
	})

	r := Result{
		Bytes:    stats.Total,
		Duration: time.Since(start),
		Attempts: attempts,
		Resumed:  stats.Resumed,
		Err:      err,
	}

	if err == nil && !stats.Skipped && s.publisher != nil {
		loc, perr := s.publisher.Publish(ctx, s.objectKey(task.Dest), task.Dest)
		if perr != nil {
			err = fmt.Errorf("publishing: %w", perr)
			r.Err = err
		}
		r.Location = loc
	}

	r.Kind = client.Classify(err)
	switch {
	case err == nil && stats.Skipped:
		r.Status = StatusSkipped
	case err == nil:
		r.Status = StatusCompleted
	case r.Kind == client.FailureCancelled || ctx.Err() != nil:
		r.Status = StatusCancelled
		r.Kind = client.FailureCancelled
		if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) {
			r.Err = fmt.Errorf("%w: %w", cause, err)
		}
	default:
		r.Status = StatusFailed
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, r.Kind.String())
	}
	span.SetAttributes(attribute.String("status", r.Status.String()), attribute.Int64("bytes", r.Bytes))

	s.finish(job, i, r)

	return err
}

func (s *Scheduler) finish(job *Job, i int, r Result) {
	r, ok := job.finish(i, r)
	if !ok {
		return
	}

	switch r.Status {
	case StatusFailed:
		s.logger.Error("download failed", "url", r.URL, "dest", r.Dest, "kind", r.Kind, "attempts", r.Attempts, "error", r.Err)
	case StatusCancelled:
		s.logger.Info("download cancelled", "url", r.URL, "dest", r.Dest)
	default:
		s.logger.Info("download finished", "url", r.URL, "dest", r.Dest, "status", r.Status, "bytes", r.Bytes, "duration", r.Duration)
	}

	s.observer.TaskFinished(r)
}

// objectKey is dest relative to the download directory, with forward
// slashes.
func (s *Scheduler) objectKey(dest string) string {
	rel, err := filepath.Rel(s.dir, dest)
	if err != nil {
		rel = filepath.Base(dest)
	}
	return filepath.ToSlash(rel)
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("must not be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}

	return nil
}
