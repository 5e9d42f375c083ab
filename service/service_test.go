package service_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/adamwoolhether/downloader/batch"
	"github.com/adamwoolhether/downloader/client"
	"github.com/adamwoolhether/downloader/client/retry"
	"github.com/adamwoolhether/downloader/service"
	"github.com/adamwoolhether/downloader/web/middleware"
)

var discard = slog.New(slog.DiscardHandler)

type env struct {
	api     *httptest.Server
	files   *httptest.Server
	dir     string
	release chan struct{}
}

// setup starts a file server and the API. Requests for /slow/* block
// until release is closed.
func setup(t *testing.T) *env {
	t.Helper()

	e := env{dir: t.TempDir(), release: make(chan struct{})}

	e.files = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/slow/") {
			select {
			case <-e.release:
			case <-r.Context().Done():
				return
			}
		}
		fmt.Fprintf(w, "contents of %s", r.URL.Path)
	}))
	t.Cleanup(e.files.Close)

	c, err := client.Build(client.WithLogger(discard))
	if err != nil {
		t.Fatal(err)
	}

	sched, err := batch.New(c,
		batch.WithDir(e.dir),
		batch.WithLogger(discard),
		batch.WithRetry(retry.Policy{MaxAttempts: 1}),
	)
	if err != nil {
		t.Fatal(err)
	}

	reg := prometheus.NewRegistry()
	m, err := middleware.NewHTTPMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}

	jobs := service.NewRegistry(0)
	app, err := service.Routes(service.Config{
		Scheduler: sched,
		Jobs:      jobs,
		Logger:    discard,
		Metrics:   m,
		Gatherer:  reg,
	})
	if err != nil {
		t.Fatal(err)
	}

	e.api = httptest.NewServer(app)
	t.Cleanup(func() {
		select {
		case <-e.release:
		default:
			close(e.release)
		}
		jobs.Shutdown(t.Context())
		e.api.Close()
	})

	return &e
}

func (e *env) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var r io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(t.Context(), method, e.api.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

func (e *env) submit(t *testing.T, paths ...string) service.Job {
	t.Helper()

	var req service.SubmitRequest
	for _, p := range paths {
		req.Downloads = append(req.Downloads, service.DownloadRequest{URL: e.files.URL + p})
	}

	code, body := e.do(t, http.MethodPost, "/v1/jobs", req)
	if code != http.StatusAccepted {
		t.Fatalf("submit: status = %d, body = %s", code, body)
	}

	var job service.Job
	if err := json.Unmarshal(body, &job); err != nil {
		t.Fatal(err)
	}
	return job
}

func (e *env) waitFinished(t *testing.T, id uuid.UUID) service.Job {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		code, body := e.do(t, http.MethodGet, "/v1/jobs/"+id.String(), nil)
		if code != http.StatusOK {
			t.Fatalf("get job: status = %d, body = %s", code, body)
		}

		var job service.Job
		if err := json.Unmarshal(body, &job); err != nil {
			t.Fatal(err)
		}
		if job.Status != batch.StatusRunning {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("job %s did not finish", id)
	return service.Job{}
}

func TestHealth(t *testing.T) {
	e := setup(t)

	code, body := e.do(t, http.MethodGet, "/healthz", nil)
	if code != http.StatusOK || string(body) != `{"status":"ok"}` {
		t.Fatalf("healthz: %d %s", code, body)
	}
}

func TestSubmitAndReport(t *testing.T) {
	e := setup(t)

	job := e.submit(t, "/a.txt", "/b.txt")
	if job.Total != 2 || len(job.Tasks) != 2 {
		t.Fatalf("submitted job = %+v", job)
	}

	done := e.waitFinished(t, job.ID)
	if done.Status != batch.StatusCompleted || done.Finished != 2 {
		t.Fatalf("finished job = %+v", done)
	}

	got, err := os.ReadFile(filepath.Join(e.dir, "b.txt"))
	if err != nil || string(got) != "contents of /b.txt" {
		t.Fatalf("b.txt = %q, %v", got, err)
	}

	code, body := e.do(t, http.MethodGet, "/v1/jobs/"+job.ID.String()+"/report", nil)
	if code != http.StatusOK {
		t.Fatalf("report: status = %d, body = %s", code, body)
	}

	var summary struct {
		OK        bool `json:"ok"`
		Succeeded int  `json:"succeeded"`
		Results   []struct {
			URL string `json:"url"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &summary); err != nil {
		t.Fatal(err)
	}
	if !summary.OK || summary.Succeeded != 2 || summary.Results[0].URL != e.files.URL+"/a.txt" {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestSubmit_Invalid(t *testing.T) {
	e := setup(t)

	tests := map[string]struct {
		body   string
		fields []string
	}{
		"no downloads": {
			body:   `{"downloads":[]}`,
			fields: []string{"downloads"},
		},
		"bad url": {
			body:   `{"downloads":[{"url":"https://ok.example/a"},{"url":"ftp://example.com/a"}]}`,
			fields: []string{"downloads[1].url"},
		},
		"bad checksum and dest": {
			body:   `{"downloads":[{"url":"https://example.com/a","checksum":"crc:00"},{"url":"https://example.com/b","dest":"../b"}]}`,
			fields: []string{"downloads[0].checksum", "downloads[1].dest"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			req, _ := http.NewRequestWithContext(t.Context(), http.MethodPost, e.api.URL+"/v1/jobs", strings.NewReader(tc.body))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
			}

			var fe []struct {
				Field string `json:"field"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&fe); err != nil {
				t.Fatal(err)
			}

			var got []string
			for _, f := range fe {
				got = append(got, f.Field)
			}
			if diff := cmp.Diff(tc.fields, got); diff != "" {
				t.Fatalf("fields mismatch (-want +got):\n%s", diff)
			}
		})
	}

	code, _ := e.do(t, http.MethodPost, "/v1/jobs", map[string]any{"unknown": true})
	if code != http.StatusBadRequest {
		t.Fatalf("unknown field: status = %d, want %d", code, http.StatusBadRequest)
	}
}

func TestJob_NotFound(t *testing.T) {
	e := setup(t)

	if code, _ := e.do(t, http.MethodGet, "/v1/jobs/"+uuid.NewString(), nil); code != http.StatusNotFound {
		t.Fatalf("unknown job: status = %d, want %d", code, http.StatusNotFound)
	}
	if code, _ := e.do(t, http.MethodDelete, "/v1/jobs/"+uuid.NewString(), nil); code != http.StatusNotFound {
		t.Fatalf("cancel unknown job: status = %d, want %d", code, http.StatusNotFound)
	}
	if code, _ := e.do(t, http.MethodGet, "/v1/jobs/not-a-uuid", nil); code != http.StatusBadRequest {
		t.Fatalf("bad id: status = %d, want %d", code, http.StatusBadRequest)
	}
}

func TestCancel(t *testing.T) {
	e := setup(t)

	job := e.submit(t, "/slow/a.bin", "/slow/b.bin")

	code, body := e.do(t, http.MethodGet, "/v1/jobs/"+job.ID.String()+"/report", nil)
	if code != http.StatusConflict {
		t.Fatalf("report while running: status = %d, body = %s", code, body)
	}

	code, body = e.do(t, http.MethodGet, "/v1/jobs?status=running", nil)
	var running []service.Job
	if err := json.Unmarshal(body, &running); err != nil || code != http.StatusOK {
		t.Fatalf("list: %d %s %v", code, body, err)
	}
	if len(running) != 1 || running[0].ID != job.ID {
		t.Fatalf("running jobs = %+v", running)
	}

	if code, body := e.do(t, http.MethodDelete, "/v1/jobs/"+job.ID.String(), nil); code != http.StatusAccepted {
		t.Fatalf("cancel: status = %d, body = %s", code, body)
	}

	done := e.waitFinished(t, job.ID)
	if done.Status != batch.StatusCancelled {
		t.Fatalf("status = %s, want %s", done.Status, batch.StatusCancelled)
	}
	for _, task := range done.Tasks {
		if task.Status != batch.StatusCancelled {
			t.Fatalf("task %s status = %s, want %s", task.URL, task.Status, batch.StatusCancelled)
		}
	}

	code, body = e.do(t, http.MethodGet, "/v1/jobs?status=running", nil)
	if code != http.StatusOK || string(body) != "[]" {
		t.Fatalf("running jobs after cancel: %d %s", code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := setup(t)

	e.do(t, http.MethodGet, "/healthz", nil)
	if code, _ := e.do(t, http.MethodGet, "/v1/jobs/"+uuid.NewString(), nil); code != http.StatusNotFound {
		t.Fatalf("unknown job: status = %d, want %d", code, http.StatusNotFound)
	}

	code, body := e.do(t, http.MethodGet, "/metrics", nil)
	if code != http.StatusOK {
		t.Fatalf("metrics: status = %d", code)
	}
	for _, want := range []string{
		`downloader_http_requests_total{code="200",route="GET /healthz"} 1`,
		`downloader_http_requests_total{code="404",route="GET /v1/jobs/{id}"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %s:\n%s", want, body)
		}
	}
}
