package gateway

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// RateLimiter caps inbound messages per connection over a fixed window. The
// window is fixed, not sliding: the counter resets when a message arrives at
// or after windowStart+window. Messages over the cap are rejected with a typed
// error frame, never silently dropped, so the sender can back off.
type RateLimiter struct {
	clock  clockwork.Clock
	window time.Duration
	max    int

	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// NewRateLimiter creates a limiter allowing max messages per window.
func NewRateLimiter(clock clockwork.Clock, window time.Duration, max int) *RateLimiter {
	return &RateLimiter{
		clock:  clock,
		window: window,
		max:    max,
	}
}

// Allow records one message and reports whether it fits the current window.
func (l *RateLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}

	l.count++
	return l.count <= l.max
}
