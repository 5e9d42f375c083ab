// Package download streams HTTP response bodies to disk with optional
// checksum validation, resume support and progress reporting.
//
// # Single Download
//
// [Handle] writes the response body to a temporary file alongside the
// destination path, then atomically renames it on success:
//
//	err := download.Handle(ctx, resp.Body, resp.ContentLength, destPath, logger,
//		download.WithChecksum(sha256.New(), expectedHex),
//	)
//
// # Resuming
//
// With [WithResume], a [Plan] reports how much of a previous attempt is
// on disk. Send [Plan.RangeHeader] with the request and pass
// resumed=true to [Plan.Write] when the server answers 206:
//
//	p, err := download.NewPlan(destPath, download.WithResume())
//	if h := p.RangeHeader(); h != "" {
//		req.Header.Set("Range", h)
//	}
//	...
//	stats, err := p.Write(ctx, resp.Body, resp.ContentLength,
//		resp.StatusCode == http.StatusPartialContent, logger)
//
// # Batches
//
// A [Queue] runs [WorkFunc]s with a concurrency limit and joins their
// errors. Each call to [Queue.Start] returns a [Result] handle.
//
// Most callers should use the higher-level
// [github.com/adamwoolhether/downloader/client] package, which invokes
// these internally, or the [github.com/adamwoolhether/downloader/batch]
// scheduler for many URLs at once.
package download
