package crawler

import (
	"context"
	"time"
)

// limiter paces requests with a fixed 60-second window: once the
// request counter reaches the limit, the caller sleeps out the rest
// of the window before the counter and window reset. A constant
// per-request delay is applied on top when configured. The clock and
// sleep are injectable so tests run without waiting.
type limiter struct {
	limit int
	delay time.Duration

	count       int
	windowStart time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

const rateWindow = 60 * time.Second

func newLimiter(limit int, delay time.Duration) *limiter {
	return &limiter{
		limit: limit,
		delay: delay,
		now:   time.Now,
		sleep: sleepContext,
	}
}

// wait blocks until the next request may start. It must be called
// once before every request; record must be called once after.
func (l *limiter) wait(ctx context.Context) error {
	if l.limit > 0 {
		if l.windowStart.IsZero() {
			l.windowStart = l.now()
		}
		if l.count >= l.limit {
			remaining := rateWindow - l.now().Sub(l.windowStart)
			if remaining > 0 {
				if err := l.sleep(ctx, remaining); err != nil {
					return err
				}
			}
			l.count = 0
			l.windowStart = l.now()
		}
	}

	if l.delay > 0 {
		if err := l.sleep(ctx, l.delay); err != nil {
			return err
		}
	}
	return nil
}

// record counts a request against the current window.
func (l *limiter) record() {
	l.count++
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
