package main

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"

	"github.com/adamwoolhether/downloader/batch"
	"github.com/adamwoolhether/downloader/report"
	"github.com/adamwoolhether/downloader/service"
	"github.com/adamwoolhether/downloader/web/middleware"
	"github.com/adamwoolhether/downloader/web/server"
)

// serve runs the HTTP service until ctx ends. Running jobs are
// cancelled on shutdown.
func serve(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("serve", stderr)

	cfg, err := parse(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return usageErrorf("unexpected argument %q", fs.Arg(0))
	}

	logger := newLogger(cfg.Log, stderr)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	transfers, err := report.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("registering transfer metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(reg)
	if err != nil {
		return fmt.Errorf("registering http metrics: %w", err)
	}

	tracer := otel.Tracer("github.com/adamwoolhether/downloader")

	c, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	sched, err := newScheduler(ctx, cfg, c, logger,
		batch.WithObserver(transfers),
		batch.WithTracer(tracer),
	)
	if err != nil {
		return err
	}

	jobs := service.NewRegistry(cfg.HTTP.RetainJobs)
	app, err := service.Routes(service.Config{
		Scheduler: sched,
		Jobs:      jobs,
		Logger:    logger,
		Tracer:    tracer,
		Metrics:   httpMetrics,
		Gatherer:  reg,
	})
	if err != nil {
		return err
	}

	srv := server.New(app,
		server.WithHost(cfg.HTTP.Addr),
		server.WithShutdownTimeout(cfg.HTTP.ShutdownTimeout),
		server.WithLogger(logger),
		server.WithShutdownFunc(jobs.Shutdown),
	)

	logger.Info("service starting", "addr", cfg.HTTP.Addr, "dir", cfg.Dir, "concurrency", cfg.Concurrency)
	fmt.Fprintf(stdout, "Listening on %s\n", cfg.HTTP.Addr)

	return srv.Run(ctx)
}
