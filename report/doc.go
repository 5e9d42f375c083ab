// Package report presents the outcome of batch downloads.
//
// [Collector] and [Metrics] observe a running job; [Summarize] folds a
// finished job's results. A [Summary] renders as text with [WriteText]
// or as JSON with [WriteJSON]:
//
//	✓ https://example.com/a.iso -> downloads/a.iso (4.0 MiB, 1.2s)
//	✗ Server error: https://example.com/b.iso: unexpected status code: 404
//	2 downloads: 1 succeeded, 1 failed, 0 skipped, 0 cancelled (4.0 MiB in 1.2s)
package report
