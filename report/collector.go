package report

import (
	"sync"
	"time"

	"github.com/adamwoolhether/downloader/batch"
)

// Collector is a batch.Observer that keeps every finished result.
type Collector struct {
	mu      sync.Mutex
	start   time.Time
	results []batch.Result
}

func NewCollector() *Collector {
	return &Collector{start: time.Now()}
}

func (c *Collector) TaskStarted(batch.Task) {}

func (c *Collector) TaskRetried(batch.Task, error) {}

func (c *Collector) TaskFinished(r batch.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results = append(c.results, r)
}

// Summary returns the results seen so far in the order they finished.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	results := make([]batch.Result, len(c.results))
	copy(results, c.results)

	return Summarize(results, time.Since(c.start))
}
