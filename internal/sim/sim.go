// Package sim holds the fixed-delay stand-ins for remote calls.
package sim

import (
	"context"
	"time"
)

// Sleep waits for d or until ctx is done. A non-positive d returns immediately.
func Sleep(ctx context.Context, d time.Duration) error {
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

// After runs fn once d has elapsed, unless ctx ends first.
func After[T any](ctx context.Context, d time.Duration, fn func() (T, error)) (T, error) {
	if err := Sleep(ctx, d); err != nil {
		var zero T
		return zero, err
	}
	return fn()
}
