package utils

import (
	"context"
	"time"
)

// after is swapped in tests.
var after = time.After

// WaitFor blocks for d or until ctx is done. Retry loops use it for backoff so a
// cancelled run never sits out a full delay.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-after(d):
		return nil
	}
}
