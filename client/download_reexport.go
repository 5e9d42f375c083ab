package client

import (
	"hash"
	"time"

	"github.com/adamwoolhether/downloader/client/download"
)

// ————————————————————————————————————————————————————————————————————
// Type aliases – re-export user-facing types from [download].
// ————————————————————————————————————————————————————————————————————

type (
	// DownloadOption configures a single download.
	DownloadOption = download.Option

	// DownloadStats describes a finished download.
	DownloadStats = download.Stats

	// DownloadError wraps a sentinel error with additional detail.
	DownloadError = download.Error

	// DownloadResult represents an in-flight or completed async download.
	DownloadResult = download.Result
)

// ————————————————————————————————————————————————————————————————————
// Sentinel errors
// ————————————————————————————————————————————————————————————————————

var (
	// ErrContentLengthMismatch indicates the byte count did not match Content-Length.
	ErrContentLengthMismatch = download.ErrContentLengthMismatch

	// ErrChecksumMismatch indicates the file checksum did not match the expected value.
	ErrChecksumMismatch = download.ErrChecksumMismatch

	// ErrDownloadCancelled indicates the download was cancelled via context.
	ErrDownloadCancelled = download.ErrDownloadCancelled

	// ErrGroupShutdown indicates the download queue was shut down.
	ErrGroupShutdown = download.ErrGroupShutdown

	// ErrFileTooLarge indicates the file exceeded the WithMaxSize limit.
	ErrFileTooLarge = download.ErrFileTooLarge

	// ErrStalled indicates no data arrived within the inactivity timeout.
	ErrStalled = download.ErrStalled
)

// ————————————————————————————————————————————————————————————————————
// Download option forwarding functions
// ————————————————————————————————————————————————————————————————————

// WithChecksum enables checksum validation of the downloaded file.
// h is a [hash.Hash] instance (e.g. sha256.New()), and expected is the
// hex-encoded expected checksum string.
func WithChecksum(h hash.Hash, expected string) DownloadOption {
	return download.WithChecksum(h, expected)
}

// WithProgress enables periodic download progress logging.
func WithProgress() DownloadOption { return download.WithProgress() }

// WithSkipExisting causes a download to succeed immediately, without a
// request, when the destination file already exists.
func WithSkipExisting() DownloadOption { return download.WithSkipExisting() }

// WithResume keeps a partial file on failure and continues it with a Range request.
func WithResume() DownloadOption { return download.WithResume() }

// WithMaxSize rejects files larger than n bytes.
func WithMaxSize(n int64) DownloadOption { return download.WithMaxSize(n) }

// WithInactivityTimeout aborts a download when no data arrives for d.
func WithInactivityTimeout(d time.Duration) DownloadOption {
	return download.WithInactivityTimeout(d)
}

// WithProgressFunc calls fn with the transfer state while downloading.
func WithProgressFunc(fn func(download.Progress)) DownloadOption {
	return download.WithProgressFunc(fn)
}

// WithBatch activates batch mode by creating a download queue with the given
// concurrency limit. If maxConcurrent <= 0, concurrency is unlimited.
func WithBatch(maxConcurrent int) DownloadOption { return download.WithBatch(maxConcurrent) }
