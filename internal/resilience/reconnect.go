package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/transport"
)

// Default reconnection parameters.
const (
	defaultMaxAttempts = 10
	defaultBackoff     = 1 * time.Second
	defaultMaxBackoff  = 30 * time.Second
)

// ErrUnavailable is returned by [Reconnector.Establish] once the attempt
// budget is spent. It is the signal that the transport is permanently
// unavailable and the session must move to its error state.
var ErrUnavailable = errors.New("transport unavailable")

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	// MaxAttempts bounds one Establish call. Default 10.
	MaxAttempts int

	// Backoff is the initial wait between attempts; doubles up to
	// MaxBackoff. Default 1s.
	Backoff time.Duration

	// MaxBackoff caps the doubling. Default 30s.
	MaxBackoff time.Duration

	// Breaker tunes the circuit breaker guarding the dial path. The
	// breaker persists across Establish calls, so an endpoint that died
	// mid-session is probed gently rather than hammered.
	Breaker CircuitBreakerConfig
}

// Reconnector re-establishes a dropped cloud link. Dial attempts go
// through a circuit breaker; attempts rejected by an open breaker still
// consume budget, so a hard-down endpoint converges on [ErrUnavailable]
// instead of spinning forever.
type Reconnector struct {
	tr          transport.Transport
	breaker     *CircuitBreaker
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration
}

// NewReconnector creates a [Reconnector] for tr with the given
// configuration. Zero-value fields are replaced with defaults.
func NewReconnector(tr transport.Transport, cfg ReconnectorConfig) *Reconnector {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "transport"
	}
	return &Reconnector{
		tr:          tr,
		breaker:     NewCircuitBreaker(cfg.Breaker),
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		maxBackoff:  cfg.MaxBackoff,
	}
}

// Establish connects the transport, retrying with exponential backoff
// until it succeeds, ctx ends, or the attempt budget is spent. A spent
// budget returns an error wrapping [ErrUnavailable].
func (r *Reconnector) Establish(ctx context.Context) error {
	wait := r.backoff
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := r.breaker.Execute(func() error {
			return r.tr.Connect(ctx)
		})
		if err == nil {
			if attempt > 1 {
				slog.Info("transport re-established", "attempt", attempt)
			}
			return nil
		}
		lastErr = err

		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("dial suppressed by breaker",
				"attempt", attempt, "backoff", wait)
		} else {
			slog.Warn("connect attempt failed",
				"attempt", attempt, "max_attempts", r.maxAttempts,
				"backoff", wait, "error", err)
		}

		if attempt == r.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > r.maxBackoff {
			wait = r.maxBackoff
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, r.maxAttempts, lastErr)
}

// Breaker exposes the dial breaker for the status surface.
func (r *Reconnector) Breaker() *CircuitBreaker {
	return r.breaker
}
