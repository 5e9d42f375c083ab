package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/adamwoolhether/downloader/batch"
	"github.com/adamwoolhether/downloader/client"
	"github.com/adamwoolhether/downloader/client/download"
	"github.com/adamwoolhether/downloader/client/retry"
	"github.com/adamwoolhether/downloader/config"
	"github.com/adamwoolhether/downloader/storage/s3"
)

// newFlagSet returns a flag set carrying every configuration flag
// plus --config.
func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false

	config.Flags(fs)
	fs.String("config", "", "read settings from this file (yaml, json or toml)")

	return fs
}

// parse parses args into fs and resolves the configuration.
func parse(fs *pflag.FlagSet, args []string) (config.Config, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return config.Config{}, err
		}
		return config.Config{}, fmt.Errorf("%w: %w", errUsage, err)
	}

	var opts []config.Option
	if file, _ := fs.GetString("config"); file != "" {
		opts = append(opts, config.WithFile(file))
	}

	cfg, err := config.Load(fs, opts...)
	if err != nil {
		return config.Config{}, fmt.Errorf("%w: %w", errUsage, err)
	}

	return cfg, nil
}

func newLogger(cfg config.Log, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, &opts))
	}
	return slog.New(slog.NewTextHandler(w, &opts))
}

func newClient(cfg config.Config, logger *slog.Logger) (*client.Client, error) {
	opts := []client.Option{client.WithLogger(logger)}

	if cfg.UserAgent != "" {
		opts = append(opts, client.WithUserAgent(cfg.UserAgent))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, client.WithTimeout(cfg.Timeout))
	}
	if cfg.Throttle.RPS > 0 {
		opts = append(opts, client.WithThrottle(cfg.Throttle.RPS, max(cfg.Throttle.Burst, 1)))
	}

	return client.Build(opts...)
}

// newScheduler applies the download, retry and publishing settings of
// cfg. extra is applied last.
func newScheduler(ctx context.Context, cfg config.Config, dl batch.Downloader, logger *slog.Logger, extra ...batch.Option) (*batch.Scheduler, error) {
	var dlOpts []download.Option
	if cfg.Resume {
		dlOpts = append(dlOpts, download.WithResume())
	}
	if cfg.SkipExisting {
		dlOpts = append(dlOpts, download.WithSkipExisting())
	}
	if cfg.Progress {
		dlOpts = append(dlOpts, download.WithProgress())
	}
	if cfg.MaxFileSize > 0 {
		dlOpts = append(dlOpts, download.WithMaxSize(cfg.MaxFileSize))
	}
	if cfg.InactivityTimeout > 0 {
		dlOpts = append(dlOpts, download.WithInactivityTimeout(cfg.InactivityTimeout))
	}

	policy := retry.Policy{
		MaxAttempts:    cfg.Retry.Attempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
		Multiplier:     cfg.Retry.Multiplier,
		Jitter:         cfg.Retry.Jitter,
	}

	opts := []batch.Option{
		batch.WithDir(cfg.Dir),
		batch.WithConcurrency(cfg.Concurrency),
		batch.WithRetry(policy),
		batch.WithDownloadOptions(dlOpts...),
		batch.WithLogger(logger),
	}

	if cfg.S3.Bucket != "" {
		pub, err := s3.New(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("configuring s3 publisher: %w", err)
		}
		opts = append(opts, batch.WithPublisher(pub))
	}

	return batch.New(dl, append(opts, extra...)...)
}
