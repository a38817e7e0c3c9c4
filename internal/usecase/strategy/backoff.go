package strategy

import "time"

// RetryPolicy bounds transient-error retries. MaxAttempts counts total
// submission attempts, so MaxAttempts=3 means two retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the standard policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
	}
}

// Backoff returns the exponential backoff delay after the given attempt
// (0-based): BaseDelay * 2^attempt, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		return p.BaseDelay
	}
	// 2^30 already exceeds any sane MaxDelay
	if attempt > 30 {
		return p.MaxDelay
	}
	d := p.BaseDelay * time.Duration(1<<uint(attempt))
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
