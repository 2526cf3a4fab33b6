package crawler

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Clock abstracts time so pacing can be tested without sleeping.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// systemClock is the wall clock.
type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the wall clock.
func SystemClock() Clock {
	return systemClock{}
}

// RateLimiter enforces a minimum interval between consecutive requests of
// one Spider. Each Spider owns its own RateLimiter, so pacing is per site:
// N concurrent crawls each pace their own host independently.
//
// An optional token bucket adds a requests-per-window ceiling on top of the
// interval.
//
// RateLimiter is not safe for concurrent use.
type RateLimiter struct {
	interval time.Duration
	clock    Clock
	bucket   *rate.Limiter

	// last is the time the previous request was released.
	last time.Time

	// lastWait is the suspension applied by the latest Wait call.
	lastWait time.Duration
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithLimiterClock replaces the wall clock.
func WithLimiterClock(c Clock) RateLimiterOption {
	return func(l *RateLimiter) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithTokenBucket allows at most requests per window in addition to the
// minimum interval. Non-positive values disable the bucket.
func WithTokenBucket(requests int, window time.Duration) RateLimiterOption {
	return func(l *RateLimiter) {
		if requests <= 0 || window <= 0 {
			l.bucket = nil
			return
		}
		every := window / time.Duration(requests)
		if every <= 0 {
			every = time.Millisecond
		}
		l.bucket = rate.NewLimiter(rate.Every(every), requests)
	}
}

// NewRateLimiter creates a RateLimiter with the given minimum interval.
// A non-positive interval disables interval pacing.
func NewRateLimiter(interval time.Duration, opts ...RateLimiterOption) *RateLimiter {
	l := &RateLimiter{
		interval: interval,
		clock:    SystemClock(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Wait suspends the caller until at least the interval has elapsed since the
// previous request, then records the current time as the new request time.
// It returns immediately when enough time has already passed, and returns
// ctx.Err() if the context ends while waiting.
func (l *RateLimiter) Wait(ctx context.Context) error {
	l.lastWait = 0

	if l.interval > 0 && !l.last.IsZero() {
		remaining := l.last.Add(l.interval).Sub(l.clock.Now())
		if remaining > 0 {
			l.lastWait = remaining
			select {
			case <-l.clock.After(remaining):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if l.bucket != nil {
		if err := l.bucket.Wait(ctx); err != nil {
			return err
		}
	}

	l.last = l.clock.Now()
	return nil
}

// LastWait returns how long the latest Wait call suspended the caller.
// It is never negative.
func (l *RateLimiter) LastWait() time.Duration {
	return l.lastWait
}

// Interval returns the configured minimum interval.
func (l *RateLimiter) Interval() time.Duration {
	return l.interval
}
