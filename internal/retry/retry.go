// Package retry wraps a single idempotent operation in a bounded retry
// policy with linear backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is wrapped around the last error once every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy describes how often and how patiently an operation is retried.
//
// The wait before retry n (n starting at 1) is Start + (n-1)*Step, capped at
// Max. A Policy with Attempts of 1 runs the operation once.
type Policy struct {
	Attempts int
	Start    time.Duration
	Step     time.Duration
	Max      time.Duration

	// Sleep waits between attempts. Nil uses a timer that honours ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Linear returns a policy with the given attempt count that waits 0s before
// the first retry and step longer before each subsequent one, up to max.
func Linear(attempts int, step, max time.Duration) Policy {
	return Policy{Attempts: attempts, Step: step, Max: max}
}

// Delay returns the wait before the given retry (1-based).
func (p Policy) Delay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	d := p.Start + time.Duration(retry-1)*p.Step
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}

// Delays lists every wait the policy performs when all attempts fail.
func (p Policy) Delays() []time.Duration {
	if p.Attempts <= 1 {
		return nil
	}
	delays := make([]time.Duration, 0, p.Attempts-1)
	for retry := 1; retry < p.Attempts; retry++ {
		delays = append(delays, p.Delay(retry))
	}
	return delays
}

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Do runs fn until it succeeds, returns a Permanent error, the context ends
// or the attempts run out. The attempt number passed to fn starts at 1.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = wait
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, p.Delay(attempt-1)); err != nil {
				return err
			}
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
