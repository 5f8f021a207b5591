package resilience

import (
	"context"
	"time"
)

// RetryConfig bounds the attempts spent on one operation.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, first call included.
	// Default 3.
	MaxAttempts int

	// Backoff is the wait after the first failure; it doubles per
	// attempt. Default 50ms.
	Backoff time.Duration

	// MaxBackoff caps the doubling. Default 1s.
	MaxBackoff time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 50 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Second
	}
	return c
}

// Retry runs op until it succeeds, the attempt budget is spent, or ctx
// ends. It returns the number of times op was called together with the
// final error; a nil error means the last attempt succeeded.
//
// The budget is deliberately small for audio: a chunk that cannot go out
// within a few short waits is worth less than the chunks queueing behind
// it, so the caller drops it and moves on.
func Retry(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error) (attempts int, err error) {
	cfg = cfg.withDefaults()
	wait := cfg.Backoff

	for attempts = 1; ; attempts++ {
		if err = ctx.Err(); err != nil {
			return attempts - 1, err
		}
		if err = op(ctx); err == nil {
			return attempts, nil
		}
		if attempts >= cfg.MaxAttempts {
			return attempts, err
		}

		select {
		case <-ctx.Done():
			return attempts, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > cfg.MaxBackoff {
			wait = cfg.MaxBackoff
		}
	}
}
