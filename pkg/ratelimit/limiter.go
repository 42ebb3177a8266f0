package ratelimit

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	errs "mailvault/pkg/errors"
	"mailvault/pkg/logger"
)

// Options configures a Limiter.
type Options struct {
	// RequestsPerSecond is the target pacing rate for outbound calls
	RequestsPerSecond float64
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int
	// BaseDelay is the first backoff delay
	BaseDelay time.Duration
	// MaxDelay caps the backoff delay
	MaxDelay time.Duration
	// Jitter perturbs backoff delays by ±10% when enabled
	Jitter bool
}

// DefaultOptions returns limiter options with sensible defaults
func DefaultOptions() Options {
	return Options{
		RequestsPerSecond: 2.0,
		MaxRetries:        3,
		BaseDelay:         1 * time.Second,
		MaxDelay:          60 * time.Second,
		Jitter:            true,
	}
}

// Limiter paces outbound API calls to a target rate and wraps them with
// bounded, classified retries. All mutable state sits behind one mutex, so
// concurrent callers are serialized into a FIFO admission gate; that
// serialization is the backpressure mechanism, not an accident.
type Limiter struct {
	mu sync.Mutex

	requestsPerSecond float64
	maxRetries        int
	baseDelay         time.Duration
	maxDelay          time.Duration
	jitter            bool

	requestCount   int64
	quotaUnitsUsed int64
	lastRequest    time.Time

	logger logger.Logger
}

// Stats is a read-only snapshot of the limiter counters.
type Stats struct {
	RequestCount      int64
	QuotaUnitsUsed    int64
	LastRequestTime   time.Time
	RequestsPerSecond float64
}

// New creates a Limiter from the given options.
func New(opts Options, log logger.Logger) *Limiter {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Limiter{
		requestsPerSecond: opts.RequestsPerSecond,
		maxRetries:        opts.MaxRetries,
		baseDelay:         opts.BaseDelay,
		maxDelay:          opts.MaxDelay,
		jitter:            opts.Jitter,
		logger:            log,
	}
}

// WaitIfNeeded blocks until at least 1/requests_per_second has elapsed
// since the previous admitted call, then accounts for the request. The
// quota cost is recorded per attempt, whether or not the call succeeds.
func (l *Limiter) WaitIfNeeded(quotaCost int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	minInterval := time.Duration(float64(time.Second) / l.requestsPerSecond)
	if !l.lastRequest.IsZero() {
		if elapsed := time.Since(l.lastRequest); elapsed < minInterval {
			time.Sleep(minInterval - elapsed)
		}
	}

	l.lastRequest = time.Now()
	l.requestCount++
	l.quotaUnitsUsed += quotaCost
}

// ExponentialBackoff computes the delay before the given retry attempt.
// Attempt 0 means no delay; attempt n waits min(base*2^(n-1), max),
// perturbed by ±10% uniform jitter when enabled.
func (l *Limiter) ExponentialBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(l.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(l.maxDelay) {
		delay = float64(l.maxDelay)
	}

	if l.jitter {
		// Uniform multiplier in [0.9, 1.1].
		delay *= 0.9 + rand.Float64()*0.2
	}

	return time.Duration(delay)
}

// ShouldRetry classifies an error as transient (retry) or permanent.
//
// Decision table: 429 and 500/502/503 retry; 403 retries only when the
// message mentions a quota problem; 403 otherwise, 404, and anything
// without an HTTP status never retry.
func ShouldRetry(err error) bool {
	apiErr, ok := errs.AsAPIError(err)
	if !ok {
		return false
	}

	switch apiErr.StatusCode {
	case 429, 500, 502, 503:
		return true
	case 403:
		return apiErr.Type() == errs.ErrorTypeQuota
	default:
		return false
	}
}

// RetryDelayFromError returns the server-provided Retry-After delay when
// the error carries one.
func RetryDelayFromError(err error) (time.Duration, bool) {
	apiErr, ok := errs.AsAPIError(err)
	if !ok || apiErr.RetryAfter <= 0 {
		return 0, false
	}
	return apiErr.RetryAfter, true
}

// Call executes fn through the limiter: each attempt is paced by
// WaitIfNeeded and charged quotaCost; transient failures are retried up to
// MaxRetries times with Retry-After or exponential backoff between
// attempts. Permanent failures propagate immediately. When the retry
// budget is spent, the caller gets a single stable *errors.RateLimitError
// instead of the last transport error.
func (l *Limiter) Call(ctx context.Context, fn func() error, quotaCost int64) error {
	var lastErr error

	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		l.WaitIfNeeded(quotaCost)

		err := fn()
		if err == nil {
			if attempt > 0 {
				l.logger.DebugWithFields("call succeeded after retry", map[string]interface{}{
					"attempt": attempt + 1,
				})
			}
			return nil
		}

		if !ShouldRetry(err) {
			l.logger.DebugWithFields("error is not retryable", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		}

		lastErr = err
		if attempt == l.maxRetries {
			break
		}

		delay, ok := RetryDelayFromError(err)
		if !ok {
			delay = l.ExponentialBackoff(attempt + 1)
		}

		l.logger.WarnWithFields("retrying call", map[string]interface{}{
			"attempt":     attempt + 1,
			"max_retries": l.maxRetries,
			"delay_ms":    delay.Milliseconds(),
			"error":       err.Error(),
		})

		if err := wait(ctx, delay); err != nil {
			return err
		}
	}

	l.logger.ErrorWithFields("retry budget exhausted", map[string]interface{}{
		"attempts":   l.maxRetries + 1,
		"last_error": lastErr.Error(),
	})
	return &errs.RateLimitError{Attempts: l.maxRetries + 1, Last: lastErr}
}

// CallWithResult is Call for operations that return a value.
func CallWithResult[T any](ctx context.Context, l *Limiter, fn func() (T, error), quotaCost int64) (T, error) {
	var result T
	err := l.Call(ctx, func() error {
		var opErr error
		result, opErr = fn()
		return opErr
	}, quotaCost)
	return result, err
}

// Stats returns a snapshot of the limiter counters.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		RequestCount:      l.requestCount,
		QuotaUnitsUsed:    l.quotaUnitsUsed,
		LastRequestTime:   l.lastRequest,
		RequestsPerSecond: l.requestsPerSecond,
	}
}

// wait sleeps for the given delay or until the context is cancelled.
func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
