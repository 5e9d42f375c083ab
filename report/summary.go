package report

import (
	"encoding/json"
	"time"

	"github.com/adamwoolhether/downloader/batch"
	"github.com/adamwoolhether/downloader/client"
	"github.com/google/uuid"
)

// Summary aggregates the results of one run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Cancelled int
	Bytes     int64 // bytes on disk for completed downloads
	Elapsed   time.Duration
	Results   []batch.Result
}

// OK reports whether every download ended with its file on disk.
func (s Summary) OK() bool {
	return s.Failed == 0 && s.Cancelled == 0
}

// Summarize counts results by status.
func Summarize(results []batch.Result, elapsed time.Duration) Summary {
	s := Summary{
		Total:   len(results),
		Elapsed: elapsed,
		Results: results,
	}

	for _, r := range results {
		switch r.Status {
		case batch.StatusCompleted:
			s.Succeeded++
			s.Bytes += r.Bytes
		case batch.StatusSkipped:
			s.Skipped++
		case batch.StatusCancelled:
			s.Cancelled++
		default:
			s.Failed++
		}
	}

	return s
}

type resultJSON struct {
	TaskID     uuid.UUID          `json:"task_id"`
	URL        string             `json:"url"`
	Dest       string             `json:"dest"`
	Status     batch.Status       `json:"status"`
	Bytes      int64              `json:"bytes"`
	DurationMS int64              `json:"duration_ms"`
	Attempts   int                `json:"attempts"`
	Resumed    bool               `json:"resumed,omitempty"`
	Location   string             `json:"location,omitempty"`
	Kind       client.FailureKind `json:"kind,omitzero"`
	Error      string             `json:"error,omitempty"`
}

type summaryJSON struct {
	OK        bool         `json:"ok"`
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Cancelled int          `json:"cancelled"`
	Bytes     int64        `json:"bytes"`
	ElapsedMS int64        `json:"elapsed_ms"`
	Results   []resultJSON `json:"results"`
}

// MarshalJSON renders durations in milliseconds and errors as strings.
func (s Summary) MarshalJSON() ([]byte, error) {
	out := summaryJSON{
		OK:        s.OK(),
		Total:     s.Total,
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
		Skipped:   s.Skipped,
		Cancelled: s.Cancelled,
		Bytes:     s.Bytes,
		ElapsedMS: s.Elapsed.Milliseconds(),
		Results:   make([]resultJSON, len(s.Results)),
	}

	for i, r := range s.Results {
		out.Results[i] = resultJSON{
			TaskID:     r.TaskID,
			URL:        r.URL,
			Dest:       r.Dest,
			Status:     r.Status,
			Bytes:      r.Bytes,
			DurationMS: r.Duration.Milliseconds(),
			Attempts:   r.Attempts,
			Resumed:    r.Resumed,
			Location:   r.Location,
			Kind:       r.Kind,
		}
		if r.Err != nil {
			out.Results[i].Error = r.Err.Error()
		}
	}

	return json.Marshal(out)
}
