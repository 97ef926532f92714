package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window grants at most n events per window w with a minimum gap r between
// consecutive events. The n most recent grant times live in a ring buffer;
// the slot about to be overwritten is the grant n steps back, which is all
// the window check needs.
type Window struct {
	mu   sync.Mutex
	n    int
	w    time.Duration
	r    time.Duration
	ring []time.Time
	idx  int

	now   func() time.Time
	sleep sleeper
}

// NewWindow returns a limiter of n events per window w with minimum
// inter-event gap r.
func NewWindow(n int, w, r time.Duration) *Window {
	return &Window{
		n:     n,
		w:     w,
		r:     r,
		ring:  make([]time.Time, n),
		now:   time.Now,
		sleep: realSleep,
	}
}

// WaitFor blocks until a grant is available, records it and returns. A
// missed check-then-sleep race is tolerated: the state is re-checked on
// every wake.
func (l *Window) WaitFor(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		prev := l.ring[(l.idx+l.n-1)%l.n] // most recent grant; zero if none yet
		oldest := l.ring[l.idx]           // grant n steps ago; zero counts as long past

		windowOpen := oldest.IsZero() || now.Sub(oldest) >= l.w
		gapOpen := prev.IsZero() || now.Sub(prev) >= l.r
		if windowOpen && gapOpen {
			l.ring[l.idx] = now
			l.idx = (l.idx + 1) % l.n
			l.mu.Unlock()
			return nil
		}

		var wait time.Duration
		if windowOpen {
			wait = l.r - now.Sub(prev)
		} else {
			wait = l.w - now.Sub(oldest)
		}
		l.mu.Unlock()
		if wait < 0 {
			wait = 0
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}
