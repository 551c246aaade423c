package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func noBackoff() Policy {
	return Policy{MaxAttempts: 3, Backoff: func(int) time.Duration { return 0 }}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), noBackoff(), nil, func() error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesRetryableErrors(t *testing.T) {
	transient := errors.New("transient")
	calls := 0
	err := Do(context.Background(), noBackoff(), func(err error) bool { return errors.Is(err, transient) }, func() error {
		calls++
		if calls < 3 {
			return transient
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := Do(context.Background(), noBackoff(), func(error) bool { return false }, func() error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	transient := errors.New("transient")
	calls := 0
	err := Do(context.Background(), noBackoff(), func(error) bool { return true }, func() error {
		calls++
		return transient
	})

	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, calls)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, Backoff: func(int) time.Duration { return time.Minute }}

	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, p, func(error) bool { return true }, func() error {
		calls++
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestLinearBackoff(t *testing.T) {
	b := LinearBackoff(time.Second)

	assert.Equal(t, time.Second, b(1))
	assert.Equal(t, 3*time.Second, b(3))
}

func TestPollCompletes(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), time.Millisecond, time.Second, func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPollPropagatesCheckError(t *testing.T) {
	boom := errors.New("boom")
	err := Poll(context.Background(), time.Millisecond, time.Second, func(context.Context) (bool, error) {
		return false, boom
	})

	assert.ErrorIs(t, err, boom)
}

func TestPollCeiling(t *testing.T) {
	err := Poll(context.Background(), 5*time.Millisecond, 30*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})

	assert.ErrorIs(t, err, ErrCeiling)
}

func TestPollSucceedsAtDeadline(t *testing.T) {
	// A check that reports done after the ceiling has technically elapsed
	// still wins: the deadline is only consulted between checks.
	calls := 0
	err := Poll(context.Background(), 30*time.Millisecond, 40*time.Millisecond, func(context.Context) (bool, error) {
		calls++
		if calls < 3 {
			return false, nil
		}
		return true, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPollHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Poll(ctx, time.Millisecond, time.Second, func(context.Context) (bool, error) {
		return false, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}
