// Package retry provides an explicit retry policy and a poll-until utility,
// shared by the vision-model clients for initiation calls and run-status
// polling.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Backoff returns the sleep before retry number attempt (1-based).
	Backoff func(attempt int) time.Duration
}

// LinearBackoff returns attempt * unit: 1s, 2s, 3s, ...
func LinearBackoff(unit time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * unit
	}
}

// DefaultPolicy matches the initiation-call contract: three attempts with
// linearly increasing backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     LinearBackoff(time.Second),
	}
}

// Do runs op up to p.MaxAttempts times, sleeping p.Backoff(attempt) between
// attempts. Only errors for which retryable returns true are retried; any
// other error is returned immediately. The last error is returned once
// attempts are exhausted.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func() error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		wait := time.Duration(0)
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}

// ErrCeiling is returned by Poll when the wall-clock ceiling elapses before
// check reports completion.
var ErrCeiling = errors.New("poll ceiling exceeded")

// Poll invokes check immediately and then every interval until it reports
// done, returns an error, the context is cancelled, or ceiling elapses. The
// ceiling is wall-clock: a check that reports done right at the boundary
// still succeeds.
func Poll(ctx context.Context, interval, ceiling time.Duration, check func(ctx context.Context) (bool, error)) error {
	deadline := time.Now().Add(ceiling)
	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrCeiling
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
