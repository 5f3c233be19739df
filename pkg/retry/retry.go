// Package retry implements the fixed-interval polling used for endpoint
// discovery, certificate issuance, and workload health checks.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned when every attempt completed without success.
// Callers decide whether exhaustion is fatal; endpoint discovery treats it
// as a pending condition, health checks treat it as a failure.
var ErrExhausted = errors.New("retry attempts exhausted")

// Options bounds a polling loop. Zero Attempts means no attempt limit,
// zero Timeout means no deadline; at least one bound must be set.
type Options struct {
	Attempts int
	Interval time.Duration
	Timeout  time.Duration
}

// Do calls fn at the configured interval until it reports done, returns an
// error, or the bounds are exhausted. The first attempt runs immediately.
// fn returning (false, nil) schedules another attempt; any non-nil error
// aborts the loop.
func Do(ctx context.Context, opts Options, fn func(context.Context) (bool, error)) error {
	if opts.Attempts <= 0 && opts.Timeout <= 0 {
		return errors.New("retry: either Attempts or Timeout must be set")
	}

	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = time.Now().Add(opts.Timeout)
	}

	ticker := time.NewTicker(interval(opts))
	defer ticker.Stop()

	attempt := 0
	for {
		attempt++
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if opts.Attempts > 0 && attempt >= opts.Attempts {
			return fmt.Errorf("%w after %d attempts", ErrExhausted, attempt)
		}
		if !deadline.IsZero() && !time.Now().Add(interval(opts)).Before(deadline) {
			return fmt.Errorf("%w after %s", ErrExhausted, opts.Timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func interval(opts Options) time.Duration {
	if opts.Interval > 0 {
		return opts.Interval
	}
	return time.Second
}
