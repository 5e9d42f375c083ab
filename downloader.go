// Package downloader fetches many URLs at once. It ties together the
// client, batch and report packages for callers that only need files
// on disk and a summary; use those packages directly for anything more.
package downloader

import (
	"context"
	"time"

	"github.com/adamwoolhether/downloader/batch"
	"github.com/adamwoolhether/downloader/client"
	"github.com/adamwoolhether/downloader/report"
)

// NewClient instantiates a new *client.Client with the provided options.
// If not specified, the default http.Client and http.Transport are used.
func NewClient(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}

// Fetch downloads urls into dir with a default client and returns the
// summary of the run. opts are applied after the directory, so they may
// replace it. The error joins every failed download.
func Fetch(ctx context.Context, dir string, urls []string, opts ...batch.Option) (report.Summary, error) {
	c, err := NewClient()
	if err != nil {
		return report.Summary{}, err
	}

	s, err := batch.New(c, append([]batch.Option{batch.WithDir(dir)}, opts...)...)
	if err != nil {
		return report.Summary{}, err
	}

	specs := make([]batch.Spec, len(urls))
	for i, u := range urls {
		specs[i] = batch.Spec{URL: u}
	}

	start := time.Now()
	results, err := s.Run(ctx, specs)

	return report.Summarize(results, time.Since(start)), err
}
