package batch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/adamwoolhether/downloader/client/download"
	"github.com/google/uuid"
)

// Job is one submission of downloads. All methods are safe for
// concurrent use.
type Job struct {
	ID      uuid.UUID
	Created time.Time

	mu       sync.Mutex
	tasks    []Task
	results  []Result
	finished []bool
	ended    time.Time

	done   chan struct{}
	cancel context.CancelCauseFunc
	queue  *download.Queue
}

func newJob(dests []string, specs []Spec, queue *download.Queue, cancel context.CancelCauseFunc) *Job {
	now := time.Now()
	j := Job{
		ID:       uuid.New(),
		Created:  now,
		tasks:    make([]Task, len(specs)),
		results:  make([]Result, len(specs)),
		finished: make([]bool, len(specs)),
		done:     make(chan struct{}),
		cancel:   cancel,
		queue:    queue,
	}

	for i, spec := range specs {
		j.tasks[i] = Task{
			ID:      uuid.New(),
			URL:     spec.URL,
			Dest:    dests[i],
			Status:  StatusPending,
			Created: now,
		}
	}

	return &j
}

// Tasks returns a snapshot of every task in submission order.
func (j *Job) Tasks() []Task {
	j.mu.Lock()
	defer j.mu.Unlock()

	return slices.Clone(j.tasks)
}

// Done is closed once every task has a result.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Finished reports whether Done is closed.
func (j *Job) Finished() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the job is finished or ctx ends, and returns
// the results gathered so far.
func (j *Job) Wait(ctx context.Context) ([]Result, error) {
	select {
	case <-j.done:
		return j.Results(), nil
	case <-ctx.Done():
		return j.Results(), ctx.Err()
	}
}

// Elapsed is the time from submission until the last task finished,
// or until now while the job is running.
func (j *Job) Elapsed() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.ended.IsZero() {
		return time.Since(j.Created)
	}
	return j.ended.Sub(j.Created)
}

// Results returns the results of finished tasks in submission order.
func (j *Job) Results() []Result {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Result, 0, len(j.results))
	for i, r := range j.results {
		if j.finished[i] {
			out = append(out, r)
		}
	}
	return out
}

// Cancel stops running downloads and marks pending ones cancelled.
func (j *Job) Cancel() {
	j.queue.Shutdown()
	j.cancel(ErrJobCancelled)
}

// Err joins the errors of every task that did not succeed.
func (j *Job) Err() error {
	var errs []error
	for _, r := range j.Results() {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.URL, r.Err))
		}
	}
	return errors.Join(errs...)
}

// Status summarises the job: running until done, then failed or
// cancelled if any task was, otherwise completed.
func (j *Job) Status() Status {
	if !j.Finished() {
		return StatusRunning
	}

	status := StatusCompleted
	for _, r := range j.Results() {
		switch r.Status {
		case StatusFailed:
			return StatusFailed
		case StatusCancelled:
			status = StatusCancelled
		}
	}
	return status
}

func (j *Job) end() {
	j.mu.Lock()
	j.ended = time.Now()
	j.mu.Unlock()

	close(j.done)
}

func (j *Job) task(i int) Task {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.tasks[i]
}

func (j *Job) update(i int, fn func(*Task)) Task {
	j.mu.Lock()
	defer j.mu.Unlock()

	fn(&j.tasks[i])
	return j.tasks[i]
}

// finish records r for task i and returns it with the task's identity
// filled in. It reports false if the task already had a result, so every
// task is finished exactly once.
func (j *Job) finish(i int, r Result) (Result, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.finished[i] {
		return Result{}, false
	}

	t := &j.tasks[i]
	t.Status = r.Status
	t.Bytes = r.Bytes
	t.Attempts = r.Attempts
	t.Finished = time.Now()
	if r.Err != nil {
		t.Error = r.Err.Error()
	}

	r.TaskID = t.ID
	r.URL = t.URL
	r.Dest = t.Dest

	j.results[i] = r
	j.finished[i] = true

	return r, true
}
