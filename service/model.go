package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/adamwoolhether/downloader/batch"
)

// SubmitRequest is the body of POST /v1/jobs.
type SubmitRequest struct {
	Downloads []DownloadRequest `json:"downloads" validate:"required,min=1,max=1000,dive"`
}

type DownloadRequest struct {
	URL      string `json:"url" validate:"required,http_url"`
	Dest     string `json:"dest,omitempty" validate:"omitempty,max=255"`
	Checksum string `json:"checksum,omitempty"`
}

func (sr SubmitRequest) specs() []batch.Spec {
	specs := make([]batch.Spec, len(sr.Downloads))
	for i, d := range sr.Downloads {
		specs[i] = batch.Spec{URL: d.URL, Dest: d.Dest, Checksum: d.Checksum}
	}
	return specs
}

// Job is the API view of a batch.Job.
type Job struct {
	ID        uuid.UUID    `json:"id"`
	Status    batch.Status `json:"status"`
	Created   time.Time    `json:"created"`
	ElapsedMS int64        `json:"elapsed_ms"`
	Total     int          `json:"total"`
	Finished  int          `json:"finished"`
	Tasks     []batch.Task `json:"tasks,omitempty"`
}

func toJob(job *batch.Job, withTasks bool) Job {
	tasks := job.Tasks()

	out := Job{
		ID:        job.ID,
		Status:    job.Status(),
		Created:   job.Created,
		ElapsedMS: job.Elapsed().Milliseconds(),
		Total:     len(tasks),
	}

	for _, t := range tasks {
		if t.Status.IsFinished() {
			out.Finished++
		}
	}

	if withTasks {
		out.Tasks = tasks
	}

	return out
}
