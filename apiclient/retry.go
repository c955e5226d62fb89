package apiclient

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Backoff returns the wait after the failed attempt with the given zero-based index.
type Backoff func(attempt int) time.Duration

// ExponentialBackoff waits base * 2^attempt: 100ms, 200ms, 400ms, ... for base=100ms.
func ExponentialBackoff(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt < 0 {
			attempt = 0
		}
		if attempt > 30 {
			attempt = 30
		}
		return base * time.Duration(1<<attempt)
	}
}

// RetryPolicy is the transient-failure state machine:
// Attempt(n) fails with a qualifying error and n < MaxRetries -> wait Delay(n) -> Attempt(n+1);
// fails with n == MaxRetries -> terminal; succeeds -> done.
type RetryPolicy struct {
	MaxRetries int
	Backoff    Backoff
}

// Delay returns the wait before attempt n+1.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.Backoff(attempt)
}

// ShouldRetry reports whether err from the attempt with index attempt may be retried.
// Network failures qualify for every method. 429 and 5xx qualify only for
// idempotent methods or requests explicitly marked retryable, so a POST is
// never replayed after the server may have acted on it.
func (p RetryPolicy) ShouldRetry(attempt int, method string, retryable bool, err error) bool {
	if attempt >= p.MaxRetries {
		return false
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) && isRetryableStatus(httpErr.Status) {
		return retryable || IsIdempotent(method)
	}
	return false
}

// IsIdempotent reports whether repeating method has no effect beyond the first success.
func IsIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
