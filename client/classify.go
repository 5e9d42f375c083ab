package client

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"os"

	"github.com/adamwoolhether/downloader/client/download"
)

// FailureKind groups download errors by where they came from.
type FailureKind int

const (
	FailureNone       FailureKind = iota
	FailureServer                 // server answered with an unexpected status
	FailureConnection             // transport, stalled or truncated transfer
	FailureIntegrity              // checksum mismatch
	FailureLocal                  // file system or size limit
	FailureCancelled
)

var failureKindNames = map[FailureKind]string{
	FailureNone:       "none",
	FailureServer:     "server",
	FailureConnection: "connection",
	FailureIntegrity:  "integrity",
	FailureLocal:      "local",
	FailureCancelled:  "cancelled",
}

func (k FailureKind) String() string {
	if name, ok := failureKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText lets a FailureKind render by name in JSON and logs.
func (k FailureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Classify reports which kind of failure err represents.
// Errors that match nothing more specific, such as invalid options,
// count as local failures.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}

	if errors.Is(err, download.ErrDownloadCancelled) ||
		errors.Is(err, download.ErrGroupShutdown) ||
		errors.Is(err, context.Canceled) {
		return FailureCancelled
	}

	if _, ok := errors.AsType[*UnexpectedStatusError](err); ok {
		return FailureServer
	}

	if errors.Is(err, download.ErrChecksumMismatch) {
		return FailureIntegrity
	}

	if errors.Is(err, download.ErrFileTooLarge) {
		return FailureLocal
	}
	if _, ok := errors.AsType[*fs.PathError](err); ok {
		return FailureLocal
	}
	if _, ok := errors.AsType[*os.LinkError](err); ok {
		return FailureLocal
	}

	if isConnection(err) {
		return FailureConnection
	}

	return FailureLocal
}

func isConnection(err error) bool {
	if errors.Is(err, download.ErrStalled) ||
		errors.Is(err, download.ErrContentLengthMismatch) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if _, ok := errors.AsType[*url.Error](err); ok {
		return true
	}
	if _, ok := errors.AsType[net.Error](err); ok {
		return true
	}

	return false
}

// IsRetryable reports whether another attempt at the same download
// could succeed: connection failures, truncated bodies, and server
// statuses that signal a temporary condition.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case FailureConnection:
		return true
	case FailureServer:
		if use, ok := errors.AsType[*UnexpectedStatusError](err); ok {
			return retryableStatus(use.StatusCode)
		}
	}

	return false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}

	return code >= http.StatusInternalServerError
}
