// Package retry wraps fallible operations with bounded exponential
// backoff for transient upstream conditions.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Defaults applied when a Policy field is zero.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// Policy configures one retry sequence.
type Policy struct {
	// MaxRetries bounds the number of reattempts after the initial try.
	MaxRetries int

	// BaseDelay is doubled for each retry; up to 10% random jitter is
	// added so callers do not thunder in lockstep.
	BaseDelay time.Duration

	// Retryable classifies errors. A false return stops the sequence
	// immediately and propagates the error. Nil retries everything.
	Retryable func(error) bool

	// OnRetry fires before each wait, with the 1-based retry number and
	// the error that triggered it. Used to surface a "retrying"
	// notification on the first retry.
	OnRetry func(retry int, err error)

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Do executes op, reattempting transient failures per the policy. A
// success on any attempt returns immediately; once retries are
// exhausted the last error propagates unchanged.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	maxRetries := p.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	base := p.BaseDelay
	if base == 0 {
		base = DefaultBaseDelay
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		lastErr = err
		if attempt == maxRetries {
			return lastErr
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}
		if err := sleep(ctx, backoff(base, attempt)); err != nil {
			return err
		}
	}
}

// backoff returns base * 2^attempt plus up to 10% jitter.
func backoff(base time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(1<<uint(attempt))
	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
