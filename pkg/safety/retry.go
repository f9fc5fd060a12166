package safety

import (
	"context"
	"fmt"
	"math"
	"time"
)

// BackoffStrategy selects how retry delay grows between attempts, following
// the teacher's pkg/engine.InternalBackoffStrategy (the executor's own scan
// retries are an adapted copy of the same constant/linear/exponential
// choice; the LLM client instead uses cenkalti/backoff/v4, since it already
// talks to an external, rate-limited service).
type BackoffStrategy string

const (
	BackoffConstant    BackoffStrategy = "constant"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// RetryPolicy governs retries of transient scan I/O failures (spec §4.6
// "Retry": "Transient I/O failures on scans are retried with exponential
// backoff up to the configured bound; logic errors ... are never retried").
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffStrategy BackoffStrategy
	// Retryable classifies an error as transient (scan I/O) vs a logic
	// error that must never be retried. Callers inject this based on
	// rcerrors.Classify(err).Retryable().
	Retryable func(error) bool
}

// DefaultScanRetryPolicy returns the executor's default scan-retry policy.
func DefaultScanRetryPolicy(retryable func(error) bool) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialDelay:    200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		BackoffStrategy: BackoffExponential,
		Retryable:       retryable,
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	var d time.Duration
	switch p.BackoffStrategy {
	case BackoffConstant:
		d = p.InitialDelay
	case BackoffLinear:
		d = p.InitialDelay * time.Duration(attempt)
	case BackoffExponential:
		d = time.Duration(float64(p.InitialDelay) * math.Pow(2, float64(attempt-1)))
	default:
		d = p.InitialDelay
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Execute runs fn, retrying on a retryable error up to MaxAttempts with
// backoff between attempts. It checks ctx between attempts and during the
// backoff sleep, never mid-attempt (spec §5: "A task may suspend at ...
// the boundary between operators ... It does not suspend mid-operator").
func (p RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt >= maxAttempts || p.Retryable == nil || !p.Retryable(err) {
			break
		}
		d := p.delay(attempt)
		if d > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
		}
	}
	return fmt.Errorf("scan failed after retries: %w", lastErr)
}
