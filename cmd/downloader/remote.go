package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/adamwoolhether/downloader/batch"
	"github.com/adamwoolhether/downloader/client"
	"github.com/adamwoolhether/downloader/config"
	"github.com/adamwoolhether/downloader/service"
)

// remote talks to a running service.
type remote struct {
	c    *client.Client
	base *url.URL
}

func remoteFlags(fs *pflag.FlagSet) (server *string, asJSON *bool) {
	server = fs.String("server", "", "service base URL (default http://<http.addr>)")
	asJSON = fs.Bool("json", false, "print the response as JSON")
	return server, asJSON
}

func newRemote(cfg config.Config, server string, logger *slog.Logger) (*remote, error) {
	if server == "" {
		server = "http://" + cfg.HTTP.Addr
	}

	base, err := url.Parse(server)
	if err != nil || base.Host == "" {
		return nil, usageErrorf("invalid --server %q", server)
	}

	opts := []client.Option{client.WithLogger(logger)}
	if cfg.UserAgent != "" {
		opts = append(opts, client.WithUserAgent(cfg.UserAgent))
	}
	c, err := client.Build(opts...)
	if err != nil {
		return nil, err
	}

	return &remote{c: c, base: base}, nil
}

func (r *remote) call(ctx context.Context, method string, expCode int, body any, out client.DoOption, path ...string) error {
	var reqOpts []client.RequestOption
	if body != nil {
		reqOpts = append(reqOpts, client.WithPayload(body))
	}

	req, err := r.c.Request(ctx, r.base.JoinPath(path...), method, reqOpts...)
	if err != nil {
		return err
	}

	if err := r.c.Do(req, expCode, out); err != nil {
		if se, ok := errors.AsType[*client.UnexpectedStatusError](err); ok {
			return fmt.Errorf("service answered %d: %s", se.StatusCode, strings.TrimSpace(se.Body))
		}
		return err
	}

	return nil
}

// submit sends URLs to a running service as one job.
func submit(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("submit", stderr)
	server, asJSON := remoteFlags(fs)
	wait := fs.Bool("wait", false, "poll until the job finishes")

	cfg, err := parse(fs, args)
	if err != nil {
		return err
	}

	var req service.SubmitRequest
	for _, arg := range fs.Args() {
		for u := range strings.SplitSeq(arg, ",") {
			if u = strings.TrimSpace(u); u != "" {
				req.Downloads = append(req.Downloads, service.DownloadRequest{URL: u})
			}
		}
	}
	if len(req.Downloads) == 0 {
		return usageErrorf("at least one URL is required")
	}

	rm, err := newRemote(cfg, *server, newLogger(cfg.Log, stderr))
	if err != nil {
		return err
	}

	var job service.Job
	if err := rm.call(ctx, http.MethodPost, http.StatusAccepted, req, client.WithDestination(&job), "v1", "jobs"); err != nil {
		return err
	}

	if *wait {
		if job, err = rm.wait(ctx, job.ID); err != nil {
			return err
		}
	}

	if err := printJob(stdout, *asJSON, job); err != nil {
		return err
	}

	if *wait && job.Status != batch.StatusCompleted {
		return errFailed
	}

	return nil
}

// status lists jobs, or shows one job with its tasks.
func status(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("status", stderr)
	server, asJSON := remoteFlags(fs)
	filter := fs.String("status", "", "only list jobs with this status")

	cfg, err := parse(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return usageErrorf("unexpected argument %q", fs.Arg(1))
	}

	rm, err := newRemote(cfg, *server, newLogger(cfg.Log, stderr))
	if err != nil {
		return err
	}

	if fs.NArg() == 1 {
		id, err := uuid.Parse(fs.Arg(0))
		if err != nil {
			return usageErrorf("invalid job id %q", fs.Arg(0))
		}

		var job service.Job
		if err := rm.call(ctx, http.MethodGet, http.StatusOK, nil, client.WithDestination(&job), "v1", "jobs", id.String()); err != nil {
			return err
		}
		return printJob(stdout, *asJSON, job)
	}

	base := *rm.base
	if *filter != "" {
		q := base.Query()
		q.Set("status", *filter)
		base.RawQuery = q.Encode()
	}
	rm.base = &base

	var jobs []service.Job
	if err := rm.call(ctx, http.MethodGet, http.StatusOK, nil, client.WithDestination(&jobs), "v1", "jobs"); err != nil {
		return err
	}

	return printJobs(stdout, *asJSON, jobs)
}

// wait polls job id until it is no longer running.
func (r *remote) wait(ctx context.Context, id uuid.UUID) (service.Job, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		var job service.Job
		if err := r.call(ctx, http.MethodGet, http.StatusOK, nil, client.WithDestination(&job), "v1", "jobs", id.String()); err != nil {
			return service.Job{}, err
		}
		if job.Status != batch.StatusRunning {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// printJob writes one job as an object, or as a table with its tasks.
func printJob(w io.Writer, asJSON bool, job service.Job) error {
	if asJSON {
		return encodeJSON(w, job)
	}
	return printJobs(w, false, []service.Job{job})
}

// printJobs writes a listing. JSON output is always an array, however
// many jobs there are.
func printJobs(w io.Writer, asJSON bool, jobs []service.Job) error {
	if asJSON {
		if jobs == nil {
			jobs = []service.Job{}
		}
		return encodeJSON(w, jobs)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, job := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\n", job.ID, job.Status, job.Finished, job.Total,
			(time.Duration(job.ElapsedMS) * time.Millisecond).String())
		for _, t := range job.Tasks {
			line := fmt.Sprintf("  %s\t%s\t%s", t.Status, t.URL, t.Dest)
			if t.Error != "" {
				line += "\t" + t.Error
			}
			fmt.Fprintln(tw, line)
		}
	}

	return tw.Flush()
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
