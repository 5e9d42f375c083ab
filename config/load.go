package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flags registers a flag for every key on fs, with defaults from Default.
func Flags(fs *pflag.FlagSet) {
	d := Default

	fs.String("dir", d.Dir, "directory downloads are written to")
	fs.IntP("concurrency", "c", d.Concurrency, "downloads running at once (0 for unlimited)")
	fs.Duration("timeout", d.Timeout, "overall timeout per download attempt (0 for none)")
	fs.Duration("inactivity-timeout", d.InactivityTimeout, "abort a download that receives no data for this long")
	fs.String("user-agent", d.UserAgent, "User-Agent header sent with every request")
	fs.Int64("max-file-size", d.MaxFileSize, "reject files larger than this many bytes (0 for no limit)")
	fs.Bool("resume", d.Resume, "resume partial downloads with range requests")
	fs.Bool("skip-existing", d.SkipExisting, "skip files that already exist")
	fs.Bool("progress", d.Progress, "log download progress")

	fs.Int("retry.attempts", d.Retry.Attempts, "attempts per download including the first")
	fs.Duration("retry.initial-backoff", d.Retry.InitialBackoff, "wait before the first retry")
	fs.Duration("retry.max-backoff", d.Retry.MaxBackoff, "upper bound for a single retry wait")
	fs.Float64("retry.multiplier", d.Retry.Multiplier, "backoff growth per attempt")
	fs.Float64("retry.jitter", d.Retry.Jitter, "fraction of each wait randomised")

	fs.Int("throttle.rps", d.Throttle.RPS, "requests per second per host (0 disables throttling)")
	fs.Int("throttle.burst", d.Throttle.Burst, "request burst per host")

	fs.String("http.addr", d.HTTP.Addr, "address the service listens on")
	fs.Duration("http.shutdown-timeout", d.HTTP.ShutdownTimeout, "grace period for in-flight requests on shutdown")
	fs.Int("http.retain-jobs", d.HTTP.RetainJobs, "finished jobs kept for status queries (0 keeps all)")

	fs.String("log.level", d.Log.Level, "debug, info, warn or error")
	fs.String("log.format", d.Log.Format, "text or json")

	fs.String("s3.bucket", d.S3.Bucket, "publish completed files to this bucket")
	fs.String("s3.region", d.S3.Region, "bucket region")
	fs.String("s3.endpoint", d.S3.Endpoint, "custom S3 endpoint, e.g. for MinIO")
	fs.String("s3.prefix", d.S3.Prefix, "prefix for object keys")
	fs.String("s3.access-key-id", d.S3.AccessKeyID, "static access key id")
	fs.String("s3.secret-access-key", d.S3.SecretAccessKey, "static secret access key")
}

// Option configures Load.
type Option func(*options)

type options struct {
	envDir string
	file   string
}

// WithEnvDir reads .env files from dir instead of the working directory.
func WithEnvDir(dir string) Option {
	return func(o *options) {
		o.envDir = dir
	}
}

// WithFile reads a config file. The format follows the extension
// (yaml, json, toml, ...).
func WithFile(path string) Option {
	return func(o *options) {
		o.file = path
	}
}

// Load resolves the configuration. fs may be nil; when given, only flags
// the user set override lower layers.
func Load(fs *pflag.FlagSet, optFns ...Option) (Config, error) {
	var o options
	for _, opt := range optFns {
		opt(&o)
	}

	if err := loadEnvFiles(o.envDir); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if o.file != "" {
		v.SetConfigFile(o.file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return Config{}, fmt.Errorf("binding flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default

	v.SetDefault("dir", d.Dir)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("inactivity-timeout", d.InactivityTimeout)
	v.SetDefault("user-agent", d.UserAgent)
	v.SetDefault("max-file-size", d.MaxFileSize)
	v.SetDefault("resume", d.Resume)
	v.SetDefault("skip-existing", d.SkipExisting)
	v.SetDefault("progress", d.Progress)

	v.SetDefault("retry.attempts", d.Retry.Attempts)
	v.SetDefault("retry.initial-backoff", d.Retry.InitialBackoff)
	v.SetDefault("retry.max-backoff", d.Retry.MaxBackoff)
	v.SetDefault("retry.multiplier", d.Retry.Multiplier)
	v.SetDefault("retry.jitter", d.Retry.Jitter)

	v.SetDefault("throttle.rps", d.Throttle.RPS)
	v.SetDefault("throttle.burst", d.Throttle.Burst)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.shutdown-timeout", d.HTTP.ShutdownTimeout)
	v.SetDefault("http.retain-jobs", d.HTTP.RetainJobs)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("s3.bucket", d.S3.Bucket)
	v.SetDefault("s3.region", d.S3.Region)
	v.SetDefault("s3.endpoint", d.S3.Endpoint)
	v.SetDefault("s3.prefix", d.S3.Prefix)
	v.SetDefault("s3.access-key-id", d.S3.AccessKeyID)
	v.SetDefault("s3.secret-access-key", d.S3.SecretAccessKey)
}

// loadEnvFiles loads .env, then .env.<ENVIRONMENT>, then .env.local.
// Later files override earlier ones; variables already set in the
// process environment are never overridden by .env.
func loadEnvFiles(dir string) error {
	base := filepath.Join(dir, ".env")
	if err := loadIfExists(base, godotenv.Load); err != nil {
		return err
	}

	if env := os.Getenv("ENVIRONMENT"); env != "" {
		if err := loadIfExists(base+"."+env, godotenv.Overload); err != nil {
			return err
		}
	}

	return loadIfExists(base+".local", godotenv.Overload)
}

func loadIfExists(path string, load func(...string) error) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	if err := load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	return nil
}
