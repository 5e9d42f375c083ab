// Package client is the HTTP half of a transfer: it sends the request,
// checks the status and hands the body to the download package, which
// owns everything on disk.
//
// A Client is built once and shared by every transfer:
//
//	c, err := client.Build(
//		client.WithUserAgent("downloader/1.0"),
//		client.WithThrottle(4, 2),
//	)
//
// [Client.Download] fetches one file. Options from the download package
// choose checksum verification, resume, a size cap or a stall timeout:
//
//	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
//	stats, err := c.Download(req, http.StatusOK, "downloads/iso.img",
//		client.WithResume(),
//		client.WithInactivityTimeout(30*time.Second),
//	)
//
// When a transfer fails, [Classify] says whose fault it was and
// [IsRetryable] whether trying again is worthwhile. The batch package
// uses both to drive its retries.
//
// [Client.Do] with [Request] and [URL] is a small JSON helper, used to
// talk to the downloader service itself. [Client.DownloadAsync] with
// [WithBatch] runs ad hoc concurrent downloads without a scheduler.
package client
