// Command downloader fetches files over HTTP(S) with bounded concurrency,
// retries and a per-file report. It also runs as an HTTP service that
// accepts download jobs.
//
// Usage:
//
//	downloader get [flags] <url>[,<url>...] [output-dir] [filename]
//	downloader serve [flags]
//	downloader submit [flags] <url>...
//	downloader status [flags] [job-id]
//
// Every command accepts the configuration flags; see "downloader <command> --help".
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

var (
	errUsage = errors.New("invalid usage")
	// errFailed means the command ran but some downloads did not succeed.
	// The report has already been printed.
	errFailed = errors.New("downloads failed")
)

const usage = `usage: downloader <command> [flags] [args]

commands:
  get     download files: get [flags] <url>[,<url>...] [output-dir] [filename]
  serve   run the HTTP service
  submit  submit downloads to a running service: submit [flags] <url>...
  status  show jobs on a running service: status [flags] [job-id]
`

type command func(ctx context.Context, args []string, stdout, stderr io.Writer) error

var commands = map[string]command{
	"get":    get,
	"serve":  serve,
	"submit": submit,
	"status": status,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()

	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	name := args[0]
	if name == "-h" || name == "--help" || name == "help" {
		fmt.Fprint(stdout, usage)
		return exitOK
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "downloader: unknown command %q\n\n%s", name, usage)
		return exitUsage
	}

	err := cmd(ctx, args[1:], stdout, stderr)
	switch {
	case err == nil, errors.Is(err, pflag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "downloader %s: %v\n", name, err)
		return exitUsage
	case errors.Is(err, errFailed):
		return exitFailed
	default:
		fmt.Fprintf(stderr, "downloader %s: %v\n", name, err)
		return exitFailed
	}
}

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}
