// Package retry runs an operation again after retryable failures, sleeping
// an exponentially growing, jittered backoff between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// ErrExhausted is joined with the last error once every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy controls how often and how patiently an operation is retried.
type Policy struct {
	MaxAttempts    int           // total attempts including the first; <=1 disables retries
	InitialBackoff time.Duration // wait before the second attempt
	MaxBackoff     time.Duration // upper bound for a single wait; 0 means no bound
	Multiplier     float64       // growth per attempt; values below 1 are treated as 1
	Jitter         float64       // fraction of the wait randomised, in [0, 1]
}

// DefaultPolicy is used when a caller does not configure retries.
var DefaultPolicy = Policy{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	Multiplier:     2,
	Jitter:         0.2,
}

// Validate reports a policy that cannot be applied.
func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 0:
		return errors.New("max attempts must not be negative")
	case p.InitialBackoff < 0 || p.MaxBackoff < 0:
		return errors.New("backoff must not be negative")
	case p.Jitter < 0 || p.Jitter > 1:
		return fmt.Errorf("jitter[%v] must be between 0 and 1", p.Jitter)
	}

	return nil
}

// Backoff returns the wait before attempt number attempt+1, where attempt
// counts the failures so far (1 for the first retry).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.InitialBackoff <= 0 {
		return 0
	}

	mult := max(p.Multiplier, 1)
	d := float64(p.InitialBackoff) * math.Pow(mult, float64(attempt-1))
	if p.MaxBackoff > 0 {
		d = math.Min(d, float64(p.MaxBackoff))
	}

	if p.Jitter > 0 {
		// Uniform over [d*(1-jitter), d*(1+jitter)].
		d += d * p.Jitter * (2*rand.Float64() - 1)
	}

	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(d)
}

// Hinted is implemented by errors that carry the server's own idea of how
// long to wait, such as a Retry-After header.
type Hinted interface {
	error
	RetryDelay() time.Duration
}

// wait is the backoff for attempt, stretched to any hint err carries. The
// hint is still bounded by MaxBackoff.
func (p Policy) wait(attempt int, err error) time.Duration {
	d := p.Backoff(attempt)

	if h, ok := errors.AsType[Hinted](err); ok {
		hint := h.RetryDelay()
		if p.MaxBackoff > 0 {
			hint = min(hint, p.MaxBackoff)
		}
		d = max(d, hint)
	}

	return d
}

// Do calls fn until it succeeds, returns an error retryable rejects, the
// policy runs out of attempts, or ctx ends while waiting. A [Hinted] error
// can lengthen the wait before the next attempt. It returns the
// number of attempts made. fn receives the 1-based attempt number.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context, attempt int) error) (int, error) {
	attempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}

		if retryable == nil || !retryable(err) {
			return attempt, err
		}

		if attempt >= attempts {
			return attempt, errors.Join(ErrExhausted, err)
		}

		timer := time.NewTimer(p.wait(attempt, err))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("waiting to retry: %w", errors.Join(context.Cause(ctx), err))
		case <-timer.C:
		}
	}
}
