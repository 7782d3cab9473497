package clock

import (
	"context"
	"errors"
	"time"
)

// ErrWaitTimeout is returned when a bounded wait elapses.
var ErrWaitTimeout = errors.New("clock: wait timeout")

// Timeout returns a channel that fires d after now on c, or nil when d is
// not positive. A nil channel never fires, so it reads as "no bound" in a
// select.
func Timeout(c Clock, d time.Duration) <-chan time.Time {
	if d <= 0 {
		return nil
	}
	return c.After(d)
}

// WaitDone blocks until done is closed, the timeout elapses on c or ctx is
// done. A non-positive timeout waits without a bound.
func WaitDone(ctx context.Context, c Clock, done <-chan struct{}, timeout time.Duration) error {
	select {
	case <-done:
		return nil
	case <-Timeout(c, timeout):
		return ErrWaitTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WithOptionalTimeout returns ctx bounded by timeout, or ctx unchanged when
// timeout is not positive.
func WithOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
