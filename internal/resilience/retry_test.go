package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), nil, func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls int
	cfg := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
	}

	err := Do(context.Background(), cfg, nil, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("temporary"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts_ReturnsLastErrorUnchanged(t *testing.T) {
	var calls int
	last := NewTransientError(errors.New("always fails"), 500)
	cfg := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
	}

	err := Do(context.Background(), cfg, nil, func(_ context.Context) error {
		calls++
		return last
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	// Exhaustion propagates the original error, not a wrapper.
	var te *TransientError
	if !errors.As(err, &te) || te != last {
		t.Errorf("expected the last error unchanged, got %v", err)
	}
}

func TestDo_NonRetryableError_NoRetry(t *testing.T) {
	var calls int
	cfg := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond,
	}

	err := Do(context.Background(), cfg, nil, func(_ context.Context) error {
		calls++
		return errors.New("permanent error: bad request")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call (no retry for non-retryable), got %d", calls)
	}
}

func TestDo_PromptTooLarge_NoRetry(t *testing.T) {
	var calls int
	cfg := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond,
	}

	err := Do(context.Background(), cfg, nil, func(_ context.Context) error {
		calls++
		return &PromptTooLargeError{Provider: "anthropic", PromptChars: 900000, LimitChars: 700000}
	})
	if !IsPromptTooLarge(err) {
		t.Fatalf("expected PromptTooLargeError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RateLimited_Retries(t *testing.T) {
	var calls int
	cfg := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond,
	}

	err := Do(context.Background(), cfg, nil, func(_ context.Context) error {
		calls++
		if calls < 2 {
			return NewRateLimitError(errors.New("429"), 429, false)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDo_StrategyNone_SingleAttempt(t *testing.T) {
	var calls int
	cfg := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Millisecond,
		Strategy:     BackoffNone,
	}

	err := Do(context.Background(), cfg, nil, func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("fail"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call with BackoffNone, got %d", calls)
	}
}

func TestDo_ContextCancelled_StopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	cfg := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
	}

	err := Do(ctx, cfg, nil, func(_ context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return NewTransientError(errors.New("fail"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	// Should stop after cancel (2 calls max).
	if calls > 3 {
		t.Errorf("expected <= 3 calls after cancel, got %d", calls)
	}
}

func TestDo_BreakerOpen_AbortsImmediately(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  1 * time.Hour,
	})
	// Trip it before the retry loop runs.
	_ = cb.Execute(context.Background(), func(_ context.Context) error {
		return errors.New("fail")
	})

	var calls int
	cfg := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Millisecond,
	}
	start := time.Now()
	err := Do(context.Background(), cfg, cb, func(_ context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected 0 calls through an open breaker, got %d", calls)
	}
	// No delay was consumed: a single denied gate check, no sleeps.
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("expected immediate abort, took %v", elapsed)
	}
}

func TestDo_BreakerTripsMidLoop_StopsWithoutSleep(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  1 * time.Hour,
	})

	var calls int
	cfg := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Millisecond,
		Strategy:     BackoffFixed,
	}
	err := Do(context.Background(), cfg, cb, func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("fail"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	// The second failure trips the breaker; attempts 3-5 never run.
	if calls != 2 {
		t.Errorf("expected 2 calls before the breaker opened, got %d", calls)
	}
	if cb.State() != CircuitOpen {
		t.Errorf("expected breaker open, got %s", cb.State())
	}
}

func TestDo_CustomShouldRetry(t *testing.T) {
	var calls int
	cfg := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond,
		ShouldRetry: func(err error) bool {
			return err.Error() == "retry me"
		},
	}

	err := Do(context.Background(), cfg, nil, func(_ context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("retry me")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDo_OnRetryCallback(t *testing.T) {
	var retryAttempts []int
	cfg := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond,
		OnRetry: func(attempt int, _ error) {
			retryAttempts = append(retryAttempts, attempt)
		},
	}

	_ = Do(context.Background(), cfg, nil, func(_ context.Context) error {
		return NewTransientError(errors.New("fail"), 500)
	})

	if len(retryAttempts) != 2 {
		t.Errorf("expected 2 OnRetry calls, got %d", len(retryAttempts))
	}
	if retryAttempts[0] != 1 || retryAttempts[1] != 2 {
		t.Errorf("expected attempts [1, 2], got %v", retryAttempts)
	}
}

func TestDoVal_ReturnsValueOnSuccess(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = 1 * time.Millisecond

	var calls int
	val, err := DoVal(context.Background(), cfg, nil, func(_ context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", NewTransientError(errors.New("fail"), 500)
		}
		return "hello", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "hello" {
		t.Errorf("expected %q, got %q", "hello", val)
	}
}

func TestDoVal_ReturnsZeroOnFailure(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:  2,
		InitialDelay: 1 * time.Millisecond,
	}

	val, err := DoVal(context.Background(), cfg, nil, func(_ context.Context) (int, error) {
		return 42, NewTransientError(errors.New("fail"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if val != 0 {
		t.Errorf("expected zero value on failure, got %d", val)
	}
}

func TestDo_DefaultConfig(t *testing.T) {
	// Verify defaults are applied when zero config is given.
	var calls atomic.Int32
	cfg := RetryConfig{} // all zero values

	err := Do(context.Background(), cfg, nil, func(_ context.Context) error {
		calls.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestComputeDelay_Exponential(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialDelay: 1 * time.Second,
		MaxDelay:     1 * time.Minute,
		BackoffBase:  2.0,
		Strategy:     BackoffExponential,
	})

	// Delays before attempts 2 and 3: 1s × 2^0, 1s × 2^1.
	expected := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, want := range expected {
		if got := computeDelay(i+1, cfg); got != want {
			t.Errorf("attempt %d: expected %v, got %v", i+1, want, got)
		}
	}
}

func TestComputeDelay_Linear(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     1 * time.Minute,
		Strategy:     BackoffLinear,
	})

	expected := []time.Duration{500 * time.Millisecond, 1 * time.Second, 1500 * time.Millisecond}
	for i, want := range expected {
		if got := computeDelay(i+1, cfg); got != want {
			t.Errorf("attempt %d: expected %v, got %v", i+1, want, got)
		}
	}
}

func TestComputeDelay_Fixed(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialDelay: 2 * time.Second,
		MaxDelay:     1 * time.Minute,
		Strategy:     BackoffFixed,
	})

	for attempt := 1; attempt <= 4; attempt++ {
		if got := computeDelay(attempt, cfg); got != 2*time.Second {
			t.Errorf("attempt %d: expected 2s, got %v", attempt, got)
		}
	}
}

func TestComputeDelay_CapsAtMax(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialDelay: 1 * time.Second,
		MaxDelay:     5 * time.Second,
		BackoffBase:  10.0,
		Strategy:     BackoffExponential,
	})

	if got := computeDelay(6, cfg); got > 5*time.Second {
		t.Errorf("expected delay capped at 5s, got %v", got)
	}
}

func TestComputeDelay_WithJitter(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Strategy:     BackoffFixed,
		Jitter:       true,
	})

	// ±10% jitter on a 1s base keeps every delay in [900ms, 1100ms].
	seen := make(map[time.Duration]bool)
	for i := 0; i < 100; i++ {
		d := computeDelay(1, cfg)
		seen[d] = true
		if d < 900*time.Millisecond || d > 1100*time.Millisecond {
			t.Errorf("delay %v outside expected range [900ms, 1100ms]", d)
		}
	}
	// Should have produced multiple different values due to jitter.
	if len(seen) < 2 {
		t.Error("expected jitter to produce varying delays")
	}
}

// TestDo_TotalDelayWithinJitterWindow checks the aggregate sleep stays
// within ±10% of the deterministic schedule.
func TestDo_TotalDelayWithinJitterWindow(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 40 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		BackoffBase:  2.0,
		Strategy:     BackoffExponential,
		Jitter:       true,
	}

	start := time.Now()
	_ = Do(context.Background(), cfg, nil, func(_ context.Context) error {
		return NewTransientError(errors.New("fail"), 500)
	})
	elapsed := time.Since(start)

	// Expected sleeps: 40ms + 80ms = 120ms; jitter bounds ±10%.
	lower := 108 * time.Millisecond
	upper := 132*time.Millisecond + 50*time.Millisecond // scheduling slack
	if elapsed < lower || elapsed > upper {
		t.Errorf("total delay %v outside [%v, %v]", elapsed, lower, upper)
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want BackoffStrategy
	}{
		{"fixed", BackoffFixed},
		{"linear", BackoffLinear},
		{"exponential", BackoffExponential},
		{"none", BackoffNone},
		{"off", BackoffNone},
		{"", BackoffExponential},
		{"EXPONENTIAL", BackoffExponential},
		{"garbage", BackoffExponential},
	}
	for _, tt := range tests {
		if got := ParseStrategy(tt.in); got != tt.want {
			t.Errorf("ParseStrategy(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestRetryLogger(t *testing.T) {
	t.Parallel()
	// Just verify it doesn't panic.
	logger := RetryLogger("anthropic", "create_message")
	logger(1, errors.New("test error"))
}
