package batch

import (
	"errors"
	"fmt"
	"time"

	"github.com/adamwoolhether/downloader/client"
	"github.com/google/uuid"
)

var (
	ErrNoDownloads  = errors.New("no downloads requested")
	ErrJobCancelled = errors.New("job cancelled")
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusSkipped   Status = "skipped" // destination already existed
)

func (s Status) String() string {
	return string(s)
}

// IsFinished returns true once the task can no longer change state.
func (s Status) IsFinished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled || s == StatusSkipped
}

// Spec is one requested download.
type Spec struct {
	URL      string `json:"url"`
	Dest     string `json:"dest,omitempty"`     // file name relative to the job directory
	Checksum string `json:"checksum,omitempty"` // "sha256:<hex>", "sha1:<hex>" or "md5:<hex>"
}

// SpecError reports which Spec of a submission is invalid.
type SpecError struct {
	Index int
	Field string
	Err   error
}

func (e *SpecError) Error() string {
	return fmt.Sprintf("download %d: %s: %v", e.Index, e.Field, e.Err)
}

func (e *SpecError) Unwrap() error {
	return e.Err
}

// Task is the scheduler's view of one download.
type Task struct {
	ID       uuid.UUID `json:"id"`
	URL      string    `json:"url"`
	Dest     string    `json:"dest"`
	Status   Status    `json:"status"`
	Attempts int       `json:"attempts"`
	Bytes    int64     `json:"bytes"`
	Created  time.Time `json:"created"`
	Started  time.Time `json:"started,omitzero"`
	Finished time.Time `json:"finished,omitzero"`
	Error    string    `json:"error,omitempty"`
}

// Result is the outcome of one Task.
type Result struct {
	TaskID   uuid.UUID
	URL      string
	Dest     string
	Status   Status
	Bytes    int64
	Duration time.Duration
	Attempts int
	Resumed  bool
	Location string // where a Publisher put the file, if configured
	Kind     client.FailureKind
	Err      error
}

// OK reports whether the file is on disk.
func (r Result) OK() bool {
	return r.Status == StatusCompleted || r.Status == StatusSkipped
}
