package resilience

import (
	"strings"
	"time"
)

// ParseStrategy maps a config string to a BackoffStrategy. Unknown values
// fall back to exponential.
func ParseStrategy(s string) BackoffStrategy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed":
		return BackoffFixed
	case "linear":
		return BackoffLinear
	case "none", "off":
		return BackoffNone
	case "exponential", "":
		return BackoffExponential
	default:
		return BackoffExponential
	}
}

// LLMCallRetry is the standard policy for LLM API calls: three attempts,
// exponential backoff from 1s capped at 30s, jittered.
func LLMCallRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		BackoffBase:  2.0,
		Strategy:     BackoffExponential,
		Jitter:       true,
	}
}

// FromRetryConfig converts config values to a RetryConfig. Zero or negative
// values keep the defaults.
func FromRetryConfig(maxAttempts int, initialDelay, maxDelay time.Duration, backoffBase float64, strategy string, jitter bool) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialDelay > 0 {
		cfg.InitialDelay = initialDelay
	}
	if maxDelay > 0 {
		cfg.MaxDelay = maxDelay
	}
	if backoffBase > 0 {
		cfg.BackoffBase = backoffBase
	}
	cfg.Strategy = ParseStrategy(strategy)
	cfg.Jitter = jitter
	return cfg
}

// FromCircuitConfig converts config values to a CircuitBreakerConfig. Zero
// or negative values keep the defaults.
func FromCircuitConfig(failureThreshold int, recoveryTimeout time.Duration, halfOpenSuccesses int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if recoveryTimeout > 0 {
		cfg.RecoveryTimeout = recoveryTimeout
	}
	if halfOpenSuccesses > 0 {
		cfg.HalfOpenSuccesses = halfOpenSuccesses
	}
	return cfg
}
