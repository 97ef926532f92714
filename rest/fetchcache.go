package rest

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"discord-gateway-client/types"
)

// fetchCache fronts idempotent GETs with a ristretto L1 and singleflight
// so concurrent callers of the same key share one request.
type fetchCache struct {
	l1    *ristretto.Cache
	group singleflight.Group
}

func newFetchCache() *fetchCache {
	l1, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		// Only reachable with a broken config literal.
		panic(err)
	}
	return &fetchCache{l1: l1}
}

func (f *fetchCache) get(key string, ttl time.Duration, fetch func() (interface{}, error)) (interface{}, error) {
	if v, ok := f.l1.Get(key); ok {
		fetchCacheHits.WithLabelValues("hit").Inc()
		return v, nil
	}
	fetchCacheHits.WithLabelValues("miss").Inc()
	v, err, _ := f.group.Do(key, func() (interface{}, error) {
		return fetch()
	})
	if err != nil {
		return nil, err
	}
	f.l1.SetWithTTL(key, v, 1, ttl)
	return v, nil
}

func (f *fetchCache) invalidate(key string) {
	f.l1.Del(key)
}

const gatewayURLKey = "gateway-url"

// GatewayURL resolves and caches the gateway WebSocket URL.
func (c *Client) GatewayURL(ctx context.Context) (string, error) {
	v, err := c.fetch.get(gatewayURLKey, time.Hour, func() (interface{}, error) {
		body, err := c.Do(ctx, "/gateway", "", nil)
		if err != nil {
			return nil, err
		}
		var out struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, err
		}
		return out.URL, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// InvalidateGatewayURL drops the cached gateway URL; the gateway calls
// this after a failed connect so the next attempt re-resolves.
func (c *Client) InvalidateGatewayURL() {
	c.fetch.invalidate(gatewayURLKey)
}

// FetchUser looks up a user, serving repeats from the cache.
func (c *Client) FetchUser(ctx context.Context, id types.Snowflake) (*types.User, error) {
	v, err := c.fetch.get("user:"+id.String(), 5*time.Minute, func() (interface{}, error) {
		var u types.User
		if err := c.doJSON(ctx, "/users/"+id.String(), "/users", nil, &u); err != nil {
			return nil, err
		}
		return &u, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.User), nil
}

// Me fetches the authenticated user.
func (c *Client) Me(ctx context.Context) (*types.User, error) {
	var u types.User
	if err := c.doJSON(ctx, "/users/@me", "/users", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
