package batch

import (
	"errors"
	"log/slog"

	"github.com/adamwoolhether/downloader/client/download"
	"github.com/adamwoolhether/downloader/client/retry"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Scheduler.
type Option func(*options) error

type options struct {
	dir         string
	concurrency int
	policy      retry.Policy
	dlOpts      []download.Option
	observers   []Observer
	publisher   Publisher
	logger      *slog.Logger
	tracer      trace.Tracer
}

// WithDir sets the directory files are written to. Defaults to "downloads".
func WithDir(dir string) Option {
	return func(o *options) error {
		if dir == "" {
			return errors.New("dir must not be empty")
		}
		o.dir = dir
		return nil
	}
}

// WithConcurrency bounds how many downloads of a job run at once.
// n <= 0 means unlimited.
func WithConcurrency(n int) Option {
	return func(o *options) error {
		o.concurrency = n
		return nil
	}
}

// WithRetry replaces retry.DefaultPolicy.
func WithRetry(p retry.Policy) Option {
	return func(o *options) error {
		if err := p.Validate(); err != nil {
			return err
		}
		o.policy = p
		return nil
	}
}

// WithDownloadOptions applies opts to every download. They are shared by
// concurrent tasks, so per-file state such as download.WithChecksum belongs
// in Spec.Checksum instead.
func WithDownloadOptions(opts ...download.Option) Option {
	return func(o *options) error {
		o.dlOpts = append(o.dlOpts, opts...)
		return nil
	}
}

// WithObserver registers an Observer. It may be given more than once.
func WithObserver(ob Observer) Option {
	return func(o *options) error {
		if ob == nil {
			return errors.New("observer must not be nil")
		}
		o.observers = append(o.observers, ob)
		return nil
	}
}

// WithPublisher hands every completed file to p.
func WithPublisher(p Publisher) Option {
	return func(o *options) error {
		if p == nil {
			return errors.New("publisher must not be nil")
		}
		o.publisher = p
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		o.tracer = tracer
		return nil
	}
}
