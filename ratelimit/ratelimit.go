// Package ratelimit provides the two local rate-limiting primitives used
// by the gateway and REST engines: a single-slot cooldown and a sliding
// multi-window limiter backed by a ring buffer of recent grants.
package ratelimit

import (
	"context"
	"time"
)

// sleeper waits for d or until the context is cancelled. Tests inject a
// fake to control time.
type sleeper func(ctx context.Context, d time.Duration) error

func realSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
