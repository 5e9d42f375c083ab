package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/adamwoolhether/downloader/batch"
	"github.com/adamwoolhether/downloader/client"
	"github.com/fatih/color"
)

// TextOption configures text output.
type TextOption func(*textOptions)

type textOptions struct {
	color bool
}

// WithColor colours the status marks. Pass !color.NoColor to follow
// the terminal.
func WithColor(enabled bool) TextOption {
	return func(o *textOptions) {
		o.color = enabled
	}
}

type palette struct {
	ok, bad, warn *color.Color
}

func newPalette(optFns []TextOption) palette {
	var o textOptions
	for _, opt := range optFns {
		opt(&o)
	}

	p := palette{
		ok:   color.New(color.FgGreen),
		bad:  color.New(color.FgRed),
		warn: color.New(color.FgYellow),
	}
	for _, c := range []*color.Color{p.ok, p.bad, p.warn} {
		if o.color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return p
}

// line formats a single result.
func (p palette) line(r batch.Result) string {
	switch r.Status {
	case batch.StatusCompleted:
		s := fmt.Sprintf("%s %s -> %s (%s, %s)", p.ok.Sprint("✓"), r.URL, r.Dest, FormatBytes(r.Bytes), r.Duration.Round(time.Millisecond))
		if r.Resumed {
			s += " resumed"
		}
		if r.Location != "" {
			s += " published to " + r.Location
		}
		return s
	case batch.StatusSkipped:
		return fmt.Sprintf("%s %s -> %s (already exists)", p.warn.Sprint("-"), r.URL, r.Dest)
	case batch.StatusCancelled:
		return "Download was cancelled: " + r.URL
	}

	var label string
	switch r.Kind {
	case client.FailureServer:
		label = "Server error"
	case client.FailureConnection:
		label = "Connection error"
	case client.FailureIntegrity:
		label = "Integrity error"
	default:
		label = "Local error"
	}

	return fmt.Sprintf("%s %s: %s: %v", p.bad.Sprint("✗"), label, r.URL, r.Err)
}

func totals(s Summary) string {
	return fmt.Sprintf("%d downloads: %d succeeded, %d failed, %d skipped, %d cancelled (%s in %s)",
		s.Total, s.Succeeded, s.Failed, s.Skipped, s.Cancelled, FormatBytes(s.Bytes), s.Elapsed.Round(time.Millisecond))
}

// WriteText writes one line per result followed by a totals line.
func WriteText(w io.Writer, s Summary, opts ...TextOption) error {
	p := newPalette(opts)

	for _, r := range s.Results {
		if _, err := fmt.Fprintln(w, p.line(r)); err != nil {
			return err
		}
	}

	return WriteTotals(w, s)
}

// WriteTotals writes only the totals line, for output that already
// printed each result through a Printer.
func WriteTotals(w io.Writer, s Summary) error {
	_, err := fmt.Fprintln(w, totals(s))
	return err
}

// WriteJSON writes s as indented JSON.
func WriteJSON(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// Printer is a batch.Observer that writes a line as each download
// finishes or is retried.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
	p  palette
}

func NewPrinter(w io.Writer, opts ...TextOption) *Printer {
	return &Printer{w: w, p: newPalette(opts)}
}

func (p *Printer) TaskStarted(batch.Task) {}

func (p *Printer) TaskRetried(t batch.Task, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "%s Retrying %s (attempt %d): %v\n", p.p.warn.Sprint("↻"), t.URL, t.Attempts, err)
}

func (p *Printer) TaskFinished(r batch.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.w, p.p.line(r))
}

// FormatBytes renders n with a binary unit, e.g. "1.5 KiB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
