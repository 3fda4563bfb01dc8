package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry (e.g., 5xx, network
// timeout, dropped connection).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// RateLimitError marks a provider rate-limit or quota rejection. Adapters
// use it to drive model fallback before it surfaces; once surfaced it is
// retryable at the outer level.
type RateLimitError struct {
	Err        error
	StatusCode int
	// Quota distinguishes exhausted quota from a momentary rate limit.
	Quota bool
}

func (e *RateLimitError) Error() string {
	if e.Quota {
		return "quota exceeded: " + e.Err.Error()
	}
	return "rate limited: " + e.Err.Error()
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// NewRateLimitError wraps a provider rate-limit rejection.
func NewRateLimitError(err error, statusCode int, quota bool) *RateLimitError {
	return &RateLimitError{Err: err, StatusCode: statusCode, Quota: quota}
}

// PromptTooLargeError means the prompt exceeds every model window the
// provider offers. It is never retryable: the input must be chunked before
// it reaches the adapter.
type PromptTooLargeError struct {
	Provider    string
	PromptChars int
	LimitChars  int
}

func (e *PromptTooLargeError) Error() string {
	return fmt.Sprintf("prompt of %d chars exceeds %s limit of %d chars; split the input before submitting",
		e.PromptChars, e.Provider, e.LimitChars)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, a per-call timeout, or matches common transient network
// patterns (connection resets, DNS failures). Cancellation is never
// transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	// Check for explicit TransientError in chain.
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	// Per-call timeouts are retryable; caller cancellation is handled above.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Check for network-level transient errors.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Connection reset / refused / aborted.
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsRateLimited reports whether the chain contains a RateLimitError.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsPromptTooLarge reports whether the chain contains a PromptTooLargeError.
func IsPromptTooLarge(err error) bool {
	var ptl *PromptTooLargeError
	return errors.As(err, &ptl)
}

// IsCanceled reports whether the error stems from caller cancellation.
// Deadline expiry is a timeout, not a cancellation.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsRetryable is the default retry predicate for provider calls: transient
// failures and surfaced rate limits retry; circuit rejections, oversized
// prompts, and cancellations do not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || IsPromptTooLarge(err) || IsCanceled(err) {
		return false
	}
	return IsTransient(err) || IsRateLimited(err)
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

// Classify buckets an error into the kind label used in logs and reports.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case IsPromptTooLarge(err):
		return "prompt_too_large"
	case IsCanceled(err):
		return "canceled"
	case IsRateLimited(err):
		return "rate_limited"
	case IsTransient(err):
		return "transient"
	default:
		return "permanent"
	}
}
