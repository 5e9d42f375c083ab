package download

import (
	"context"
	"io"
	"time"
)

// contextReader stops a copy loop once ctx ends and reports the cause.
type contextReader struct {
	ctx  context.Context
	r    io.Reader
	kick func()
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, context.Cause(cr.ctx)
	}

	n, err := cr.r.Read(p)
	if n > 0 && cr.kick != nil {
		cr.kick()
	}
	if err != nil && err != io.EOF && cr.ctx.Err() != nil {
		return n, context.Cause(cr.ctx)
	}

	return n, err
}

// watchdog calls onStall when Kick has not been called for timeout.
type watchdog struct {
	timer   *time.Timer
	timeout time.Duration
}

func newWatchdog(timeout time.Duration, onStall func()) *watchdog {
	return &watchdog{
		timer:   time.AfterFunc(timeout, onStall),
		timeout: timeout,
	}
}

func (wd *watchdog) Kick() {
	wd.timer.Reset(wd.timeout)
}

func (wd *watchdog) Stop() {
	wd.timer.Stop()
}
