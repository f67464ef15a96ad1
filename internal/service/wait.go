package service

import (
	"context"
	"time"
)

// waitOrCancel blocks for d or until ctx is canceled. It returns ctx.Err()
// if the context is done first and nil immediately when d <= 0.
func waitOrCancel(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
