package queue

import (
	"errors"
	"time"
)

// RetryableError asks the consumer to run the job again after Delay without
// spending one of the job's generic retries
type RetryableError struct {
	Err   error
	Delay time.Duration
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// RetryDelay reports how long the consumer should wait before re-running the job
func (e *RetryableError) RetryDelay() time.Duration { return e.Delay }

// Retry wraps err so the job is re-queued after delay
func Retry(err error, delay time.Duration) error {
	return &RetryableError{Err: err, Delay: delay}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the job goes straight to the dead list
func Permanent(err error) error {
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
