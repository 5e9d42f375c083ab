package service

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/adamwoolhether/downloader/batch"
)

// Registry keeps submitted jobs in memory. Running jobs are always kept;
// once more than retain jobs have finished, the oldest finished ones are
// forgotten.
type Registry struct {
	retain int

	mu    sync.RWMutex
	jobs  map[uuid.UUID]*batch.Job
	order []uuid.UUID
}

// NewRegistry returns a Registry keeping at most retain finished jobs.
// A retain of zero or less keeps every job.
func NewRegistry(retain int) *Registry {
	return &Registry{
		retain: retain,
		jobs:   make(map[uuid.UUID]*batch.Job),
	}
}

func (r *Registry) Add(job *batch.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[job.ID] = job
	r.order = append(r.order, job.ID)
	r.prune()
}

// prune drops the oldest finished jobs beyond retain. r.mu must be held.
func (r *Registry) prune() {
	if r.retain <= 0 {
		return
	}

	var finished int
	for _, id := range r.order {
		if r.jobs[id].Finished() {
			finished++
		}
	}

	excess := finished - r.retain
	if excess <= 0 {
		return
	}

	r.order = slices.DeleteFunc(r.order, func(id uuid.UUID) bool {
		if excess == 0 || !r.jobs[id].Finished() {
			return false
		}
		excess--
		delete(r.jobs, id)
		return true
	})
}

func (r *Registry) Get(id uuid.UUID) (*batch.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	return job, ok
}

// List returns jobs newest first.
func (r *Registry) List() []*batch.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*batch.Job, 0, len(r.order))
	for _, id := range slices.Backward(r.order) {
		out = append(out, r.jobs[id])
	}
	return out
}

// Shutdown cancels every job and waits until they have all finished or
// ctx ends.
func (r *Registry) Shutdown(ctx context.Context) error {
	jobs := r.List()

	for _, job := range jobs {
		job.Cancel()
	}

	for _, job := range jobs {
		select {
		case <-job.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}
