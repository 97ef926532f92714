package rest

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// bucket is the per-route rate-limit state learned from reply headers.
// Its mutex is held from acquire until the response is processed, so
// concurrent callers on the same bucket serialize.
type bucket struct {
	mu        sync.Mutex
	known     bool
	limit     int
	remaining int
	reset     time.Time
}

// bucketManager owns every bucket plus the process-wide global flag. The
// global flag is cleared lazily by subsequent non-global requests.
type bucketManager struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	globalSet   bool
	globalUntil time.Time

	log   *zap.Logger
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func newBucketManager(log *zap.Logger) *bucketManager {
	return &bucketManager{
		buckets: make(map[string]*bucket),
		log:     log,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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

// acquire waits out the global limit, then takes the bucket lock and
// spends one call from the bucket if its state is known. The returned
// bucket's lock is held; the caller must release it after the response
// has been folded back in.
func (m *bucketManager) acquire(ctx context.Context, key string) (*bucket, error) {
	for {
		m.mu.Lock()
		if m.globalSet {
			until := m.globalUntil
			if m.now().Before(until) {
				m.mu.Unlock()
				m.log.Debug("held by global rate limit", zap.Time("until", until))
				rateLimitSleeps.WithLabelValues("global").Inc()
				if err := m.sleep(ctx, until.Sub(m.now())); err != nil {
					return nil, err
				}
				continue
			}
			m.globalSet = false
		}
		b := m.buckets[key]
		if b == nil {
			b = &bucket{}
			m.buckets[key] = b
		}
		m.mu.Unlock()

		b.mu.Lock()
		for b.known {
			now := m.now()
			if !b.reset.After(now) {
				b.remaining = b.limit
			}
			if b.remaining > 0 {
				b.remaining--
				break
			}
			wait := b.reset.Sub(now)
			m.log.Debug("bucket exhausted, waiting for reset",
				zap.String("bucket", key), zap.Duration("wait", wait))
			rateLimitSleeps.WithLabelValues("bucket").Inc()
			if err := m.sleep(ctx, wait); err != nil {
				b.mu.Unlock()
				return nil, err
			}
		}
		return b, nil
	}
}

// update folds the response's rate-limit headers into bucket and global
// state and reports whether the request must be retried after a sleep.
func (m *bucketManager) update(ctx context.Context, b *bucket, key string, resp *http.Response) (bool, error) {
	if resp.Header.Get("X-RateLimit-Global") == "true" {
		retryAfter := headerMillis(resp, "Retry-After")
		m.mu.Lock()
		m.globalSet = true
		m.globalUntil = m.now().Add(retryAfter)
		m.mu.Unlock()
		m.log.Warn("globally rate limited", zap.Duration("retry_after", retryAfter))
		rateLimitSleeps.WithLabelValues("global").Inc()
		if err := m.sleep(ctx, retryAfter); err != nil {
			return false, err
		}
		return true, nil
	}

	if limit := resp.Header.Get("X-RateLimit-Limit"); limit != "" {
		b.limit, _ = strconv.Atoi(limit)
		b.remaining, _ = strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))
		if sec, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			b.reset = time.Unix(sec, 0)
		}
		b.known = true
		if resp.StatusCode == http.StatusTooManyRequests && b.reset.After(m.now()) {
			wait := b.reset.Sub(m.now())
			m.log.Warn("bucket rate limited", zap.String("bucket", key), zap.Duration("wait", wait))
			rateLimitSleeps.WithLabelValues("bucket").Inc()
			if err := m.sleep(ctx, wait); err != nil {
				return false, err
			}
			return true, nil
		}
		return false, nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		// A 429 with no rate-limit headers: nothing to learn, back off
		// briefly and retry.
		rateLimitSleeps.WithLabelValues("bucket").Inc()
		if err := m.sleep(ctx, time.Second); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// headerMillis reads a millisecond-valued header.
func headerMillis(resp *http.Response, name string) time.Duration {
	ms, err := strconv.ParseInt(resp.Header.Get(name), 10, 64)
	if err != nil || ms < 0 {
		return time.Second
	}
	return time.Duration(ms) * time.Millisecond
}
