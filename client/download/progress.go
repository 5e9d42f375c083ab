package download

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

// progressWriter is an io.Writer, reporting download progress at
// most once per second to a logger, a callback, or both.
type progressWriter struct {
	w           io.Writer
	logger      *slog.Logger
	fn          func(Progress)
	transferred int64
	total       int64
	startTime   time.Time
	lastLog     time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.transferred += int64(n)

	if time.Since(pw.lastLog) >= time.Second {
		pw.lastLog = time.Now()
		pw.report("downloading")
	}

	if pw.total >= 0 && pw.transferred == pw.total {
		pw.report("download complete")
	}

	return n, err
}

func (pw *progressWriter) report(msg string) {
	elapsed := time.Since(pw.startTime)

	if pw.fn != nil {
		pw.fn(Progress{Transferred: pw.transferred, Total: pw.total, Elapsed: elapsed})
	}

	if pw.logger == nil {
		return
	}

	progress := "unknown"
	if pw.total > 0 {
		progress = fmt.Sprintf("%.1f%%", float64(pw.transferred)/float64(pw.total)*100)
	}

	attrs := []any{
		"progress", progress,
		"elapsed", elapsed.Round(time.Millisecond),
		"transferred", pw.transferred,
		"total", pw.total,
		"mbps", fmt.Sprintf("%.2f", float64(pw.transferred)/elapsed.Seconds()/(1024*1024)),
	}
	pw.logger.Info(msg, attrs...)
}
