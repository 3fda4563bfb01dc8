package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BackoffStrategy selects how the delay between attempts grows.
type BackoffStrategy int

const (
	// BackoffExponential grows the delay as initial × base^(attempt−1).
	BackoffExponential BackoffStrategy = iota
	// BackoffLinear grows the delay as initial × attempt.
	BackoffLinear
	// BackoffFixed uses the initial delay for every retry.
	BackoffFixed
	// BackoffNone disables retries entirely; the call gets one attempt.
	BackoffNone
)

func (s BackoffStrategy) String() string {
	switch s {
	case BackoffExponential:
		return "exponential"
	case BackoffLinear:
		return "linear"
	case BackoffFixed:
		return "fixed"
	case BackoffNone:
		return "none"
	default:
		return "unknown"
	}
}

// retryJitterFraction is the uniform perturbation applied to computed delays
// when jitter is enabled.
const retryJitterFraction = 0.10

// RetryConfig controls retry behavior. It is pure policy: the orchestrator
// has no knowledge of what the work is, only whether it succeeded.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the first try).
	// A value of 1 means no retries. Default: 3.
	MaxAttempts int

	// InitialDelay is the base delay before the first retry. Default: 1s.
	InitialDelay time.Duration

	// MaxDelay caps the computed delay. Default: 30s.
	MaxDelay time.Duration

	// BackoffBase is the exponent base for BackoffExponential. Default: 2.0.
	BackoffBase float64

	// Strategy selects the delay curve. Default: BackoffExponential.
	Strategy BackoffStrategy

	// Jitter applies a ±10% uniform perturbation to each delay, floored at
	// zero. Default: false (enabled by the standard LLM policy).
	Jitter bool

	// ShouldRetry optionally overrides the default retryable-error check.
	// If nil, IsRetryable is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep with attempt number and error.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns a sensible retry configuration for API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		BackoffBase:  2.0,
		Strategy:     BackoffExponential,
		Jitter:       true,
	}
}

// Do executes fn with retry per cfg, optionally gated by cb. Pass a nil cb
// for plain retries. Semantics match DoVal.
func Do(ctx context.Context, cfg RetryConfig, cb *CircuitBreaker, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal executes fn with retry per cfg, optionally gated by cb. Every
// attempt passes through the breaker when one is supplied; a breaker denial
// aborts the loop immediately with ErrCircuitOpen — no delay, no further
// attempts. On exhaustion the last error is returned unchanged so callers
// can errors.Is/As the original cause. Context cancellation stops retries
// immediately.
func DoVal[T any](ctx context.Context, cfg RetryConfig, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRetryable
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		var (
			val T
			err error
		)
		if cb != nil {
			val, err = ExecuteVal(ctx, cb, fn)
		} else {
			val, err = fn(ctx)
		}
		if err == nil {
			return val, nil
		}
		lastErr = err

		// Breaker denial: abort immediately, no delay, no further attempts.
		if eris.Is(lastErr, ErrCircuitOpen) {
			return zero, lastErr
		}

		// Don't retry on context cancellation.
		if ctx.Err() != nil {
			return zero, lastErr
		}

		if attempt >= cfg.MaxAttempts || cfg.Strategy == BackoffNone {
			break
		}

		if !shouldRetry(lastErr) {
			return zero, lastErr
		}

		// A failure that tripped the breaker open ends the loop without a sleep.
		if cb != nil && cb.State() == CircuitOpen {
			return zero, lastErr
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr)
		}

		delay := computeDelay(attempt, cfg)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, lastErr
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 1 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2.0
	}
	return cfg
}

// computeDelay returns the sleep before the attempt following the given
// completed attempt number (1-based).
func computeDelay(attempt int, cfg RetryConfig) time.Duration {
	var delay float64
	switch cfg.Strategy {
	case BackoffFixed:
		delay = float64(cfg.InitialDelay)
	case BackoffLinear:
		delay = float64(cfg.InitialDelay) * float64(attempt)
	case BackoffExponential:
		delay = float64(cfg.InitialDelay) * math.Pow(cfg.BackoffBase, float64(attempt-1))
	case BackoffNone:
		return 0
	default:
		delay = float64(cfg.InitialDelay)
	}

	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.Jitter {
		jitter := (rand.Float64()*2 - 1) * retryJitterFraction * delay
		delay += jitter
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(provider, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("provider", provider),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
