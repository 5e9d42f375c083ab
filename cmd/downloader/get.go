package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/adamwoolhether/downloader/batch"
	"github.com/adamwoolhether/downloader/report"
)

// get downloads the given URLs and prints a report.
func get(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("get", stderr)
	checksum := fs.String("checksum", "", `expected checksum of a single download, "sha256:<hex>"`)
	asJSON := fs.Bool("json", false, "print the report as JSON")
	noColor := fs.Bool("no-color", false, "never colour the output")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: downloader get [flags] <url>[,<url>...] [output-dir] [filename]")
		fs.PrintDefaults()
	}

	cfg, err := parse(fs, args)
	if err != nil {
		return err
	}

	urls, dir, name, err := splitGetArgs(fs.Args())
	if err != nil {
		return err
	}
	if len(urls) > 1 && name != "" {
		return usageErrorf("a file name can only be given for a single URL")
	}
	if len(urls) > 1 && *checksum != "" {
		return usageErrorf("--checksum can only be used with a single URL")
	}
	if dir != "" {
		cfg.Dir = dir
	}

	specs := make([]batch.Spec, len(urls))
	for i, u := range urls {
		specs[i] = batch.Spec{URL: u, Dest: name, Checksum: *checksum}
	}

	logger := newLogger(cfg.Log, stderr)

	c, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	textOpts := []report.TextOption{report.WithColor(!*noColor && !color.NoColor)}
	collector := report.NewCollector()

	observers := []batch.Option{batch.WithObserver(collector)}
	if !*asJSON {
		observers = append(observers, batch.WithObserver(report.NewPrinter(stdout, textOpts...)))
	}

	sched, err := newScheduler(ctx, cfg, c, logger, observers...)
	if err != nil {
		return err
	}

	if len(specs) == 1 && !*asJSON {
		dest := name
		if dest == "" {
			dest = batch.FileName(urls[0])
		}
		fmt.Fprintf(stdout, "Downloading: %s\n", urls[0])
		fmt.Fprintf(stdout, "Saving to: %s\n", filepath.Join(cfg.Dir, dest))
	}

	results, err := sched.Run(ctx, specs)
	if results == nil && err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	summary := collector.Summary()
	if *asJSON {
		if err := report.WriteJSON(stdout, summary); err != nil {
			return err
		}
	} else if err := report.WriteTotals(stdout, summary); err != nil {
		return err
	}

	if !summary.OK() {
		return errFailed
	}

	return nil
}

// splitGetArgs separates URLs from the optional output directory and
// file name that may follow them. URLs come first and may be joined
// with commas.
func splitGetArgs(args []string) (urls []string, dir, name string, err error) {
	var rest []string
	for _, arg := range args {
		if len(rest) == 0 && strings.Contains(arg, "://") {
			for u := range strings.SplitSeq(arg, ",") {
				if u = strings.TrimSpace(u); u != "" {
					urls = append(urls, u)
				}
			}
			continue
		}
		rest = append(rest, arg)
	}

	switch {
	case len(urls) == 0:
		return nil, "", "", usageErrorf("at least one URL is required")
	case len(rest) > 2:
		return nil, "", "", usageErrorf("unexpected argument %q", rest[2])
	}

	if len(rest) > 0 {
		dir = rest[0]
	}
	if len(rest) > 1 {
		name = rest[1]
	}

	return urls, dir, name, nil
}
