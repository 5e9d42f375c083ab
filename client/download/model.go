package download

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrContentLengthMismatch = errors.New("content length mismatch")
	ErrChecksumMismatch      = errors.New("checksum mismatch")
	ErrDownloadCancelled     = errors.New("download cancelled")
	ErrGroupShutdown         = errors.New("download queue shut down")
	ErrFileTooLarge          = errors.New("file exceeds size limit")
	ErrStalled               = errors.New("no data received within inactivity timeout")
)

// Error wraps one of the package sentinels with detail about
// the failed transfer.
type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Stats describes a finished write to disk.
type Stats struct {
	Bytes    int64         // bytes written during this attempt
	Total    int64         // bytes in the destination, including a resumed prefix
	Duration time.Duration // time spent streaming
	Resumed  bool
	Skipped  bool
	Checksum string // hex digest, set when WithChecksum was used
}

// Progress is handed to the func registered with WithProgressFunc.
// Total is -1 when the server did not declare a length.
type Progress struct {
	Transferred int64
	Total       int64
	Elapsed     time.Duration
}
