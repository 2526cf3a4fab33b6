package crawler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	t.Run("first request is immediate", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		l := NewRateLimiter(2*time.Second, WithLimiterClock(clock))

		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		if l.LastWait() != 0 {
			t.Errorf("LastWait() = %v, want 0", l.LastWait())
		}
		if len(clock.Waits()) != 0 {
			t.Errorf("unexpected waits %v", clock.Waits())
		}
	})

	t.Run("waits the remaining interval", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name    string
			elapsed time.Duration
			want    time.Duration
		}{
			{"nothing elapsed", 0, 2 * time.Second},
			{"part elapsed", 1500 * time.Millisecond, 500 * time.Millisecond},
			{"exactly elapsed", 2 * time.Second, 0},
			{"more elapsed", 5 * time.Second, 0},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				clock := newFakeClock()
				l := NewRateLimiter(2*time.Second, WithLimiterClock(clock))
				if err := l.Wait(context.Background()); err != nil {
					t.Fatal(err)
				}
				clock.Advance(tt.elapsed)

				if err := l.Wait(context.Background()); err != nil {
					t.Fatal(err)
				}
				if l.LastWait() != tt.want {
					t.Errorf("LastWait() = %v, want %v", l.LastWait(), tt.want)
				}
				if l.LastWait() < 0 {
					t.Error("negative wait")
				}
			})
		}
	})

	t.Run("requests are never closer than the interval", func(t *testing.T) {
		t.Parallel()

		const interval = 2 * time.Second
		clock := newFakeClock()
		l := NewRateLimiter(interval, WithLimiterClock(clock))

		advances := []time.Duration{0, 300 * time.Millisecond, 3 * time.Second, time.Second, 0, 1999 * time.Millisecond}
		var issued []time.Time
		for _, adv := range advances {
			clock.Advance(adv)
			if err := l.Wait(context.Background()); err != nil {
				t.Fatal(err)
			}
			issued = append(issued, clock.Now())
		}

		for i := 1; i < len(issued); i++ {
			if gap := issued[i].Sub(issued[i-1]); gap < interval {
				t.Errorf("request %d issued %v after the previous one, want >= %v", i, gap, interval)
			}
		}
	})

	t.Run("zero interval never waits", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		l := NewRateLimiter(0, WithLimiterClock(clock))
		for range 3 {
			if err := l.Wait(context.Background()); err != nil {
				t.Fatal(err)
			}
		}
		if len(clock.Waits()) != 0 {
			t.Errorf("unexpected waits %v", clock.Waits())
		}
	})

	t.Run("context cancels the wait", func(t *testing.T) {
		t.Parallel()

		l := NewRateLimiter(time.Hour, WithLimiterClock(stuckClock{}))
		if err := l.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := l.Wait(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Wait() error = %v, want context.Canceled", err)
		}
	})

	t.Run("token bucket", func(t *testing.T) {
		t.Parallel()

		l := NewRateLimiter(0, WithTokenBucket(100, time.Second))
		for range 5 {
			if err := l.Wait(context.Background()); err != nil {
				t.Fatalf("Wait() error = %v", err)
			}
		}
		if NewRateLimiter(0, WithTokenBucket(0, time.Second)).bucket != nil {
			t.Error("zero requests should disable the bucket")
		}
		if l.Interval() != 0 {
			t.Errorf("Interval() = %v", l.Interval())
		}
	})
}
