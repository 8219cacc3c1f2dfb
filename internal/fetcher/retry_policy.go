package fetcher

import (
	"context"
	"errors"
	"math"
	"net"
	"syscall"
	"time"
)

// retryPolicy implements capped exponential backoff over transient failures.
// Backoff is deterministic: base doubled per attempt up to max, so retry
// spacing strictly increases until it hits the cap.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

func newRetryPolicy(maxAttempts int, base, max time.Duration) *retryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max <= 0 {
		max = 8 * time.Second
	}
	return &retryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   base,
		maxDelay:    max,
	}
}

// Backoff returns the wait duration before attempt n+1 (n is zero-based).
func (p *retryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	return time.Duration(delay)
}

// transientStatus reports whether an HTTP status is worth retrying.
// 429 and every 5xx are transient; all other 4xx are permanent.
func transientStatus(code int) bool {
	return code == 429 || code >= 500
}

// transientNetErr reports whether a transport error is worth retrying:
// timeouts, connection resets and refusals. Context cancellation is never
// retried.
func transientNetErr(err error) bool {
	if err == nil {
		return false
	}
	// Per-attempt timeouts wrap context.DeadlineExceeded, so the timeout
	// check must run before the cancellation check.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	return false
}
