package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Cooldown grants at most one caller per repeat interval. Concurrent
// callers serialize; a caller that finds the slot busy sleeps for the
// remainder and re-checks.
type Cooldown struct {
	mu    sync.Mutex
	every time.Duration
	last  time.Time

	now   func() time.Time
	sleep sleeper
}

// NewCooldown returns a cooldown with the given repeat interval.
func NewCooldown(every time.Duration) *Cooldown {
	return &Cooldown{
		every: every,
		now:   time.Now,
		sleep: realSleep,
	}
}

// WaitFor blocks until at least the repeat interval has elapsed since the
// previous successful WaitFor, then records the grant.
func (c *Cooldown) WaitFor(ctx context.Context) error {
	for {
		c.mu.Lock()
		now := c.now()
		if c.last.IsZero() || now.Sub(c.last) >= c.every {
			c.last = now
			c.mu.Unlock()
			return nil
		}
		wait := c.every - now.Sub(c.last)
		c.mu.Unlock()
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}
}
