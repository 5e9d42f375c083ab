//go:build integration

package e2e_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/adamwoolhether/downloader/batch"
	"github.com/adamwoolhether/downloader/client"
	"github.com/adamwoolhether/downloader/client/download"
	"github.com/adamwoolhether/downloader/client/retry"
	"github.com/adamwoolhether/downloader/report"
	"github.com/adamwoolhether/downloader/service"
	"github.com/adamwoolhether/downloader/web/errs"
	"github.com/adamwoolhether/downloader/web/middleware"
	"github.com/adamwoolhether/downloader/web/mux"
	"github.com/adamwoolhether/downloader/web/server"
)

// -------------------------------------------------------------------------
// Origin
// -------------------------------------------------------------------------

// origin serves the files the downloader fetches.
type origin struct {
	url string

	flakyHits atomic.Int32
	inFlight  atomic.Int32
	peak      atomic.Int32
	release   chan struct{}
	once      sync.Once
}

var payload = bytes.Repeat([]byte("0123456789abcdef"), 4096)

func newOrigin(t *testing.T) *origin {
	t.Helper()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	o := origin{release: make(chan struct{})}

	app := mux.New(
		mux.WithMiddleware(middleware.Errors(log), middleware.Panics()),
		mux.WithLogger(log),
	)

	app.HandleRaw(http.MethodGet, "/files/{name}", http.HandlerFunc(o.file))
	app.Get("/missing/{name}", func(context.Context, http.ResponseWriter, *http.Request) error {
		return errs.Newf(http.StatusNotFound, "no such file")
	})
	app.Get("/flaky/{name}", o.flaky)
	app.Get("/slow/{name}", o.slow)
	app.Get("/busy/{name}", o.busy)

	srv := httptest.NewServer(app)
	t.Cleanup(func() {
		o.unblock()
		srv.Close()
	})
	o.url = srv.URL

	return &o
}

func (o *origin) unblock() {
	o.once.Do(func() { close(o.release) })
}

func (o *origin) file(w http.ResponseWriter, r *http.Request) {
	http.ServeContent(w, r, r.PathValue("name"), time.Time{}, bytes.NewReader(payload))
}

// flaky fails twice with 503 before serving the file.
func (o *origin) flaky(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if o.flakyHits.Add(1) <= 2 {
		return errs.Newf(http.StatusServiceUnavailable, "try again")
	}

	o.file(w, r)
	return nil
}

// slow blocks until released or the request ends.
func (o *origin) slow(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	select {
	case <-o.release:
	case <-ctx.Done():
		return nil
	}

	o.file(w, r)
	return nil
}

// busy records how many requests overlap.
func (o *origin) busy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	n := o.inFlight.Add(1)
	defer o.inFlight.Add(-1)

	for {
		p := o.peak.Load()
		if n <= p || o.peak.CompareAndSwap(p, n) {
			break
		}
	}

	time.Sleep(20 * time.Millisecond)

	o.file(w, r)
	return nil
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

var fastRetry = retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, Multiplier: 2}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newScheduler(t *testing.T, dir string, opts ...batch.Option) *batch.Scheduler {
	t.Helper()

	c, err := client.Build(client.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	base := []batch.Option{
		batch.WithDir(dir),
		batch.WithRetry(fastRetry),
		batch.WithLogger(quietLogger()),
	}

	s, err := batch.New(c, append(base, opts...)...)
	if err != nil {
		t.Fatalf("building scheduler: %v", err)
	}

	return s
}

func specs(urls ...string) []batch.Spec {
	out := make([]batch.Spec, len(urls))
	for i, u := range urls {
		out[i] = batch.Spec{URL: u}
	}
	return out
}

func byURL(results []batch.Result) map[string]batch.Result {
	out := make(map[string]batch.Result, len(results))
	for _, r := range results {
		out[r.URL] = r
	}
	return out
}

func assertFile(t *testing.T, path string) {
	t.Helper()

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("%s: got %d bytes, want the %d byte payload", path, len(got), len(payload))
	}
}

// -------------------------------------------------------------------------
// Tests
// -------------------------------------------------------------------------

func TestE2E_BatchDownload(t *testing.T) {
	o := newOrigin(t)
	dir := t.TempDir()
	collector := report.NewCollector()

	s := newScheduler(t, dir, batch.WithObserver(collector), batch.WithConcurrency(2))

	results, err := s.Run(t.Context(), specs(
		o.url+"/files/a.bin",
		o.url+"/files/b.bin?version=2",
		o.url+"/files/a.bin",
	))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	for _, name := range []string{"a.bin", "b.bin", "a (1).bin"} {
		assertFile(t, filepath.Join(dir, name))
	}

	summary := collector.Summary()
	if !summary.OK() || summary.Succeeded != 3 || summary.Bytes != int64(3*len(payload)) {
		t.Fatalf("summary = %+v", summary)
	}

	var text bytes.Buffer
	if err := report.WriteText(&text, report.Summarize(results, summary.Elapsed)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text.String(), "3 downloads: 3 succeeded, 0 failed, 0 skipped, 0 cancelled (192.0 KiB") {
		t.Fatalf("report:\n%s", text.String())
	}
}

func TestE2E_FailureClassification(t *testing.T) {
	o := newOrigin(t)
	dir := t.TempDir()

	// A listener that is closed straight away refuses connections.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	refused := "http://" + ln.Addr().String() + "/file.bin"
	ln.Close()

	s := newScheduler(t, dir)

	results, err := s.Run(t.Context(), specs(
		o.url+"/files/ok.bin",
		o.url+"/missing/gone.bin",
		refused,
	))
	if err == nil {
		t.Fatal("run: expected an error")
	}

	got := byURL(results)

	if r := got[o.url+"/files/ok.bin"]; r.Status != batch.StatusCompleted {
		t.Errorf("ok.bin: status = %s, err = %v", r.Status, r.Err)
	}

	missing := got[o.url+"/missing/gone.bin"]
	if missing.Status != batch.StatusFailed || missing.Kind != client.FailureServer || missing.Attempts != 1 {
		t.Errorf("gone.bin: status = %s, kind = %s, attempts = %d", missing.Status, missing.Kind, missing.Attempts)
	}
	if !errors.Is(missing.Err, client.ErrUnexpectedStatusCode) {
		t.Errorf("gone.bin: err = %v, want %v", missing.Err, client.ErrUnexpectedStatusCode)
	}

	conn := got[refused]
	if conn.Status != batch.StatusFailed || conn.Kind != client.FailureConnection || conn.Attempts != fastRetry.MaxAttempts {
		t.Errorf("refused: status = %s, kind = %s, attempts = %d", conn.Status, conn.Kind, conn.Attempts)
	}
	if !errors.Is(conn.Err, retry.ErrExhausted) {
		t.Errorf("refused: err = %v, want %v", conn.Err, retry.ErrExhausted)
	}

	if _, err := os.Stat(filepath.Join(dir, "gone.bin")); !os.IsNotExist(err) {
		t.Errorf("gone.bin left on disk: %v", err)
	}
}

func TestE2E_TransientFailureRetried(t *testing.T) {
	o := newOrigin(t)
	dir := t.TempDir()

	var buf bytes.Buffer
	s := newScheduler(t, dir, batch.WithObserver(report.NewPrinter(&buf)))

	results, err := s.Run(t.Context(), specs(o.url+"/flaky/data.bin"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if results[0].Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", results[0].Attempts)
	}
	assertFile(t, filepath.Join(dir, "data.bin"))

	if n := strings.Count(buf.String(), "↻ Retrying "+o.url+"/flaky/data.bin"); n != 2 {
		t.Fatalf("printed %d retries, want 2:\n%s", n, buf.String())
	}
}

func TestE2E_ResumeAndSkip(t *testing.T) {
	o := newOrigin(t)
	dir := t.TempDir()

	half := len(payload) / 2
	if err := os.WriteFile(filepath.Join(dir, "part.bin.part"), payload[:half], 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "done.bin"), []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := newScheduler(t, dir, batch.WithDownloadOptions(download.WithResume(), download.WithSkipExisting()))

	results, err := s.Run(t.Context(), specs(o.url+"/files/part.bin", o.url+"/files/done.bin"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	got := byURL(results)

	part := got[o.url+"/files/part.bin"]
	if part.Status != batch.StatusCompleted || !part.Resumed {
		t.Fatalf("part.bin: status = %s, resumed = %t", part.Status, part.Resumed)
	}
	assertFile(t, filepath.Join(dir, "part.bin"))

	if done := got[o.url+"/files/done.bin"]; done.Status != batch.StatusSkipped {
		t.Fatalf("done.bin: status = %s", done.Status)
	}
	if b, _ := os.ReadFile(filepath.Join(dir, "done.bin")); string(b) != "keep me" {
		t.Fatalf("done.bin was overwritten: %q", b)
	}
}

func TestE2E_ConcurrencyLimit(t *testing.T) {
	o := newOrigin(t)

	s := newScheduler(t, t.TempDir(), batch.WithConcurrency(2))

	var urls []string
	for i := range 6 {
		urls = append(urls, fmt.Sprintf("%s/busy/%d.bin", o.url, i))
	}

	if _, err := s.Run(t.Context(), specs(urls...)); err != nil {
		t.Fatalf("run: %v", err)
	}

	if peak := o.peak.Load(); peak > 2 {
		t.Fatalf("origin saw %d concurrent downloads, want at most 2", peak)
	}
}

func TestE2E_Cancel(t *testing.T) {
	o := newOrigin(t)

	s := newScheduler(t, t.TempDir(), batch.WithConcurrency(1))

	job, err := s.Submit(t.Context(), specs(o.url+"/slow/a.bin", o.url+"/slow/b.bin"))
	if err != nil {
		t.Fatal(err)
	}

	job.Cancel()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	results, err := job.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}

	for _, r := range results {
		if r.Status != batch.StatusCancelled {
			t.Errorf("%s: status = %s, want %s", r.URL, r.Status, batch.StatusCancelled)
		}
	}

	var buf bytes.Buffer
	if err := report.WriteText(&buf, report.Summarize(results, job.Elapsed())); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Download was cancelled: "+o.url+"/slow/a.bin") {
		t.Fatalf("report:\n%s", buf.String())
	}
}

func TestE2E_Service(t *testing.T) {
	o := newOrigin(t)
	dir := t.TempDir()

	reg := prometheus.NewRegistry()
	transfers, err := report.NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}

	s := newScheduler(t, dir, batch.WithObserver(transfers))
	jobs := service.NewRegistry(0)

	app, err := service.Routes(service.Config{Scheduler: s, Jobs: jobs, Logger: quietLogger(), Gatherer: reg})
	if err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	srv := server.New(app, server.WithListener(ln), server.WithLogger(quietLogger()), server.WithShutdownFunc(jobs.Shutdown))

	ctx, stop := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	base := &url.URL{Scheme: "http", Host: ln.Addr().String()}
	c, err := client.Build(client.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}

	body := service.SubmitRequest{Downloads: []service.DownloadRequest{
		{URL: o.url + "/files/a.bin"},
		{URL: o.url + "/files/b.bin", Dest: "nested/b.bin"},
	}}
	req, err := c.Request(t.Context(), base.JoinPath("v1", "jobs"), http.MethodPost, client.WithPayload(body))
	if err != nil {
		t.Fatal(err)
	}

	var job service.Job
	if err := c.Do(req, http.StatusAccepted, client.WithDestination(&job)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for job.Status == batch.StatusRunning {
		if time.Now().After(deadline) {
			t.Fatalf("job %s still running", job.ID)
		}
		time.Sleep(10 * time.Millisecond)

		req, err := c.Request(t.Context(), base.JoinPath("v1", "jobs", job.ID.String()), http.MethodGet)
		if err != nil {
			t.Fatal(err)
		}
		if err := c.Do(req, http.StatusOK, client.WithDestination(&job)); err != nil {
			t.Fatalf("get job: %v", err)
		}
	}

	if job.Status != batch.StatusCompleted {
		t.Fatalf("job status = %s", job.Status)
	}
	assertFile(t, filepath.Join(dir, "a.bin"))
	assertFile(t, filepath.Join(dir, "nested", "b.bin"))

	metricsPath := filepath.Join(t.TempDir(), "metrics.txt")
	req, err = c.Request(t.Context(), base.JoinPath("metrics"), http.MethodGet)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Download(req, http.StatusOK, metricsPath); err != nil {
		t.Fatalf("scraping metrics: %v", err)
	}
	exposition, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(exposition), `downloader_transfers_total{status="completed"} 2`) {
		t.Fatalf("metrics missing completed transfers:\n%s", exposition)
	}

	var fe errs.FieldErrors
	bad := service.SubmitRequest{Downloads: []service.DownloadRequest{{URL: "not a url"}}}
	req, err = c.Request(t.Context(), base.JoinPath("v1", "jobs"), http.MethodPost, client.WithPayload(bad))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Do(req, http.StatusUnprocessableEntity, client.WithDestination(&fe)); err != nil {
		t.Fatalf("invalid submit: %v", err)
	}
	if fe.Fields()["downloads[0].url"] == "" {
		t.Fatalf("field errors = %+v", fe)
	}

	stop()
	if err := <-done; err != nil {
		t.Fatalf("server run: %v", err)
	}
}
