package wsclient

import "time"

// RetryPolicy describes the reconnect backoff schedule: exponential growth
// from BaseDelay by Multiplier, capped at MaxDelay, for at most MaxRetries
// attempts (negative means retry forever).
type RetryPolicy struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	MaxRetries int
}

// DefaultRetryPolicy returns the stock schedule: 1s doubling to a 30s cap,
// retrying forever.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2,
		MaxRetries: -1,
	}
}

// Delay returns the wait before reconnect attempt n (zero-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Exhausted reports whether attempt n exceeds the retry budget.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return p.MaxRetries >= 0 && attempt >= p.MaxRetries
}
