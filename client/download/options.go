package download

import (
	"errors"
	"hash"
	"strings"
	"time"
)

// Option defines optional settings for downloading files.
//
// WithChecksum enables checksum validation of the downloaded file.
// h is a hash.Hash instance (e.g. sha256.New()), and expected is the
// hex-encoded expected checksum string. The hash is reset before each
// write, so an Option must not be shared by concurrent downloads.
//
// WithProgress enables periodic download progress logging via the
// logger supplied to Handle.
//
// WithSkipExisting causes Handle to return nil immediately when
// the destination file already exists, avoiding a redundant download.
type Option func(*options) error

type options struct {
	checksum     *checksumVerifier
	progress     bool
	progressFn   func(Progress)
	skipExisting bool
	resume       bool
	maxSize      int64
	inactivity   time.Duration
	batchSize    *int
	queue        *Queue
}

func WithChecksum(h hash.Hash, expected string) Option {
	return func(opts *options) error {
		if h == nil {
			return errors.New("hash must not be nil")
		}

		if expected == "" {
			return errors.New("expected checksum must not be empty")
		}

		opts.checksum = &checksumVerifier{hash: h, expected: strings.ToLower(expected)}
		return nil
	}
}

func WithProgress() Option {
	return func(opts *options) error {
		opts.progress = true
		return nil
	}
}

// WithProgressFunc calls fn with the transfer state at most once per
// second and once more when the body is exhausted.
func WithProgressFunc(fn func(Progress)) Option {
	return func(opts *options) error {
		if fn == nil {
			return errors.New("progress func must not be nil")
		}
		opts.progressFn = fn
		return nil
	}
}

func WithSkipExisting() Option {
	return func(opts *options) error {
		opts.skipExisting = true
		return nil
	}
}

// WithResume streams into "<dest>.part" and keeps that file when a
// transfer fails, so the next attempt can continue with a Range request.
func WithResume() Option {
	return func(opts *options) error {
		opts.resume = true
		return nil
	}
}

// WithMaxSize rejects files larger than n bytes.
func WithMaxSize(n int64) Option {
	return func(opts *options) error {
		if n <= 0 {
			return errors.New("max size must be greater than zero")
		}
		opts.maxSize = n
		return nil
	}
}

// WithInactivityTimeout aborts the transfer with ErrStalled when no
// data arrives for d.
func WithInactivityTimeout(d time.Duration) Option {
	return func(opts *options) error {
		if d <= 0 {
			return errors.New("inactivity timeout must be greater than zero")
		}
		opts.inactivity = d
		return nil
	}
}

// WithBatch activates batch mode by creating a download queue with the given
// concurrency limit. If maxConcurrent <= 0, concurrency is unlimited.
// It only affects async downloads.
func WithBatch(maxConcurrent int) Option {
	return func(opts *options) error {
		opts.batchSize = &maxConcurrent
		return nil
	}
}

// withBatch joins an existing queue, used by Result.Add.
func withBatch(q *Queue) Option {
	return func(opts *options) error {
		opts.queue = q
		return nil
	}
}

func applyOptions(optFns []Option) (options, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return options{}, err
		}
	}

	if opts.queue != nil && opts.batchSize != nil {
		return options{}, errors.New("WithBatch cannot be used when adding to an existing batch")
	}

	return opts, nil
}

// QueueFor returns the queue an async download should run on: the
// batch it is being added to, or a new queue sized by WithBatch.
func QueueFor(optFns ...Option) (*Queue, error) {
	opts, err := applyOptions(optFns)
	if err != nil {
		return nil, err
	}

	if opts.queue != nil {
		return opts.queue, nil
	}

	var limit int
	if opts.batchSize != nil {
		limit = *opts.batchSize
	}

	return NewQueue(limit), nil
}
