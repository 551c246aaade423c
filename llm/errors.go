package llm

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by vision-model clients. Handlers map these onto
// HTTP statuses; the orchestrator never retries them.
var (
	// ErrUpstreamAuth indicates missing or rejected API credentials. This is
	// misconfiguration, not transience, and is never retried.
	ErrUpstreamAuth = errors.New("vision backend rejected credentials")

	// ErrModelRunFailed indicates the model run reached a terminal failed,
	// cancelled or expired state.
	ErrModelRunFailed = errors.New("model run failed")

	// ErrModelTimeout indicates the job-mode poll ceiling elapsed before the
	// run reached a terminal state.
	ErrModelTimeout = errors.New("model run timed out")
)

// transientError marks an initiation-call failure as retryable.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps a network or rate-limit error so retry policies recognize it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Transientf formats and wraps in one step.
func Transientf(format string, args ...any) error {
	return &transientError{err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err (or anything it wraps) was marked transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
