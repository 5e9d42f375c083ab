// Package config loads downloader settings from .env files, the
// environment and command line flags.
//
// Precedence, highest first: flags, DOWNLOADER_* environment variables,
// an optional config file, defaults. Nested keys map to environment
// variables with "." and "-" replaced by "_", so "retry.max-backoff"
// is read from DOWNLOADER_RETRY_MAX_BACKOFF.
package config

import (
	"time"
)

const EnvPrefix = "DOWNLOADER"

type Config struct {
	Dir               string        `mapstructure:"dir" validate:"required"`
	Concurrency       int           `mapstructure:"concurrency" validate:"gte=0"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gte=0"`
	InactivityTimeout time.Duration `mapstructure:"inactivity-timeout" validate:"gte=0"`
	UserAgent         string        `mapstructure:"user-agent"`
	MaxFileSize       int64         `mapstructure:"max-file-size" validate:"gte=0"`
	Resume            bool          `mapstructure:"resume"`
	SkipExisting      bool          `mapstructure:"skip-existing"`
	Progress          bool          `mapstructure:"progress"`

	Retry    Retry    `mapstructure:"retry"`
	Throttle Throttle `mapstructure:"throttle"`
	HTTP     HTTP     `mapstructure:"http"`
	Log      Log      `mapstructure:"log"`
	S3       S3       `mapstructure:"s3"`
}

type Retry struct {
	Attempts       int           `mapstructure:"attempts" validate:"gte=0"`
	InitialBackoff time.Duration `mapstructure:"initial-backoff" validate:"gte=0"`
	MaxBackoff     time.Duration `mapstructure:"max-backoff" validate:"gte=0"`
	Multiplier     float64       `mapstructure:"multiplier" validate:"gte=0"`
	Jitter         float64       `mapstructure:"jitter" validate:"gte=0,lte=1"`
}

// Throttle is disabled while RPS is zero.
type Throttle struct {
	RPS   int `mapstructure:"rps" validate:"gte=0"`
	Burst int `mapstructure:"burst" validate:"gte=0"`
}

// RetainJobs bounds how many finished jobs the service remembers; zero
// keeps them all.
type HTTP struct {
	Addr            string        `mapstructure:"addr" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout" validate:"gt=0"`
	RetainJobs      int           `mapstructure:"retain-jobs" validate:"gte=0"`
}

type Log struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// S3 publishing is enabled when Bucket is set.
type S3 struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint" validate:"omitempty,url"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access-key-id" validate:"required_with=SecretAccessKey"`
	SecretAccessKey string `mapstructure:"secret-access-key" validate:"required_with=AccessKeyID"`
}

// Default holds the values used when nothing else sets a key.
var Default = Config{
	Dir:               "downloads",
	Concurrency:       4,
	Timeout:           0,
	InactivityTimeout: 30 * time.Second,
	UserAgent:         "downloader/1.0",
	Retry: Retry{
		Attempts:       3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2,
		Jitter:         0.2,
	},
	Throttle: Throttle{
		Burst: 1,
	},
	HTTP: HTTP{
		Addr:            "localhost:8080",
		ShutdownTimeout: 10 * time.Second,
		RetainJobs:      100,
	},
	Log: Log{
		Level:  "info",
		Format: "text",
	},
}
