package desktop

import (
	"context"
	"time"
)

// Sleep waits for d or until ctx is done.
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

// poll calls try until it reports done, the timeout elapses, or ctx ends. try
// runs at least once. The returned error is ctx's error when ctx ended first,
// otherwise the last error try returned.
func poll(ctx context.Context, timeout, interval time.Duration, try func(ctx context.Context) (bool, error)) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		done, err := try(ctx)
		if done {
			return true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, err
		}
		if sleepErr := Sleep(ctx, min(interval, remaining)); sleepErr != nil {
			return false, sleepErr
		}
	}
}
