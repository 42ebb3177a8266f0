package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "mailvault/pkg/errors"
	"mailvault/pkg/logger"
)

func testLimiter(maxRetries int) *Limiter {
	return New(Options{
		RequestsPerSecond: 1000,
		MaxRetries:        maxRetries,
		BaseDelay:         1 * time.Millisecond,
		MaxDelay:          8 * time.Millisecond,
		Jitter:            false,
	}, logger.NewTestLogger())
}

func TestExponentialBackoff(t *testing.T) {
	l := New(Options{
		RequestsPerSecond: 1,
		MaxRetries:        3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          1 * time.Second,
		Jitter:            false,
	}, logger.NewTestLogger())

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{6, 1 * time.Second},
	}

	for _, tt := range tests {
		if got := l.ExponentialBackoff(tt.attempt); got != tt.want {
			t.Errorf("ExponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialBackoffJitter(t *testing.T) {
	l := New(Options{
		RequestsPerSecond: 1,
		MaxRetries:        3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		Jitter:            true,
	}, logger.NewTestLogger())

	loFactor, hiFactor := 0.9, 1.1
	lo := time.Duration(float64(200*time.Millisecond) * loFactor)
	hi := time.Duration(float64(200*time.Millisecond) * hiFactor)
	for i := 0; i < 50; i++ {
		d := l.ExponentialBackoff(2)
		if d < lo || d > hi {
			t.Fatalf("jittered delay %v outside [%v, %v]", d, lo, hi)
		}
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &errs.APIError{StatusCode: 429, Message: "slow down"}, true},
		{"server error 500", &errs.APIError{StatusCode: 500, Message: "boom"}, true},
		{"bad gateway", &errs.APIError{StatusCode: 502, Message: "bad gateway"}, true},
		{"unavailable", &errs.APIError{StatusCode: 503, Message: "unavailable"}, true},
		{"quota exceeded", &errs.APIError{StatusCode: 403, Message: "Daily Quota Exceeded"}, true},
		{"quota lowercase", &errs.APIError{StatusCode: 403, Message: "user quota exhausted"}, true},
		{"plain forbidden", &errs.APIError{StatusCode: 403, Message: "access denied"}, false},
		{"not found", &errs.APIError{StatusCode: 404, Message: "no such message"}, false},
		{"gateway timeout", &errs.APIError{StatusCode: 504, Message: "timeout"}, false},
		{"bad request", &errs.APIError{StatusCode: 400, Message: "bad request"}, false},
		{"non-transport error", errors.New("disk full"), false},
		{"wrapped api error", &errs.RateLimitError{Attempts: 4, Last: &errs.APIError{StatusCode: 429}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRetry(tt.err); got != tt.want {
				t.Errorf("ShouldRetry(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryDelayFromError(t *testing.T) {
	if _, ok := RetryDelayFromError(errors.New("plain")); ok {
		t.Error("Expected no delay for non-API error")
	}
	if _, ok := RetryDelayFromError(&errs.APIError{StatusCode: 429}); ok {
		t.Error("Expected no delay without Retry-After")
	}

	delay, ok := RetryDelayFromError(&errs.APIError{StatusCode: 429, RetryAfter: 7 * time.Second})
	if !ok || delay != 7*time.Second {
		t.Errorf("Expected 7s delay, got %v (ok=%v)", delay, ok)
	}
}

func TestCallSucceedsFirstAttempt(t *testing.T) {
	l := testLimiter(3)

	calls := 0
	err := l.Call(context.Background(), func() error {
		calls++
		return nil
	}, 5)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 invocation, got %d", calls)
	}

	stats := l.Stats()
	if stats.RequestCount != 1 {
		t.Errorf("Expected request_count 1, got %d", stats.RequestCount)
	}
	if stats.QuotaUnitsUsed != 5 {
		t.Errorf("Expected quota_units_used 5, got %d", stats.QuotaUnitsUsed)
	}
}

func TestCallExhaustsRetries(t *testing.T) {
	const maxRetries = 3
	l := testLimiter(maxRetries)

	calls := 0
	err := l.Call(context.Background(), func() error {
		calls++
		return &errs.APIError{StatusCode: 503, Message: "unavailable"}
	}, 2)

	if calls != maxRetries+1 {
		t.Errorf("Expected %d invocations, got %d", maxRetries+1, calls)
	}
	if !errs.IsRateLimitError(err) {
		t.Fatalf("Expected RateLimitError, got %T: %v", err, err)
	}

	var rlErr *errs.RateLimitError
	errors.As(err, &rlErr)
	if rlErr.Attempts != maxRetries+1 {
		t.Errorf("Expected %d attempts recorded, got %d", maxRetries+1, rlErr.Attempts)
	}

	// Every attempt is charged, including the failed ones.
	if got := l.Stats().QuotaUnitsUsed; got != int64(2*(maxRetries+1)) {
		t.Errorf("Expected quota_units_used %d, got %d", 2*(maxRetries+1), got)
	}
}

func TestCallPermanentErrorNotRetried(t *testing.T) {
	l := testLimiter(3)

	permanent := &errs.APIError{StatusCode: 404, Message: "gone"}
	calls := 0
	err := l.Call(context.Background(), func() error {
		calls++
		return permanent
	}, 1)

	if calls != 1 {
		t.Errorf("Expected 1 invocation for permanent error, got %d", calls)
	}
	if !errors.Is(err, permanent) {
		t.Errorf("Expected the original error to propagate, got %v", err)
	}
}

func TestCallRecoversAfterTransientErrors(t *testing.T) {
	l := testLimiter(5)

	calls := 0
	err := l.Call(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &errs.APIError{StatusCode: 429, Message: "rate limited"}
		}
		return nil
	}, 1)
	if err != nil {
		t.Fatalf("Expected recovery, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 invocations, got %d", calls)
	}
}

func TestCallContextCancelled(t *testing.T) {
	l := New(Options{
		RequestsPerSecond: 1000,
		MaxRetries:        5,
		BaseDelay:         10 * time.Second, // long enough that only cancellation ends the wait
		MaxDelay:          10 * time.Second,
		Jitter:            false,
	}, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := l.Call(ctx, func() error {
		return &errs.APIError{StatusCode: 503, Message: "unavailable"}
	}, 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestWaitIfNeededPaces(t *testing.T) {
	l := New(Options{
		RequestsPerSecond: 50, // 20ms between calls
		MaxRetries:        0,
		BaseDelay:         1 * time.Millisecond,
		MaxDelay:          1 * time.Millisecond,
		Jitter:            false,
	}, logger.NewTestLogger())

	start := time.Now()
	for i := 0; i < 4; i++ {
		l.WaitIfNeeded(1)
	}
	elapsed := time.Since(start)

	// Three inter-call gaps of 20ms each.
	if elapsed < 55*time.Millisecond {
		t.Errorf("Expected >=55ms for 4 paced calls at 50/s, got %v", elapsed)
	}

	stats := l.Stats()
	if stats.RequestCount != 4 {
		t.Errorf("Expected request_count 4, got %d", stats.RequestCount)
	}
}

func TestCallWithResult(t *testing.T) {
	l := testLimiter(2)

	calls := 0
	got, err := CallWithResult(context.Background(), l, func() (string, error) {
		calls++
		if calls == 1 {
			return "", &errs.APIError{StatusCode: 500, Message: "flaky"}
		}
		return "payload", nil
	}, 1)
	if err != nil {
		t.Fatalf("CallWithResult failed: %v", err)
	}
	if got != "payload" {
		t.Errorf("Expected payload, got %q", got)
	}
}
