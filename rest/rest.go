// Package rest issues bucketed, rate-limited HTTP calls against the chat
// service and exposes thin per-resource handles on top of them.
package rest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	// DefaultEndpoint is the API base every route is resolved against.
	DefaultEndpoint = "https://discord.com/api/v6"

	// Version is reported in the User-Agent.
	Version = "0.4.0"

	// ProjectURL is reported in the User-Agent.
	ProjectURL = "https://github.com/discord-gateway-client"

	attemptTimeout = 12 * time.Second
	maxAttempts    = 5
)

// Doer issues a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client is the REST engine. All calls flow through Do, which owns bucket
// acquisition, retries, redirects and the per-attempt watchdog.
type Client struct {
	endpoint  *url.URL
	token     string
	userAgent string
	http      Doer
	buckets   *bucketManager
	fetch     *fetchCache
	log       *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) { c.http = d }
}

// WithEndpoint points the client at a different API base, typically a
// test server.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if u, err := url.Parse(endpoint); err == nil {
			c.endpoint = u
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient returns a REST client authenticating as a bot with token.
func NewClient(token string, opts ...Option) *Client {
	u, _ := url.Parse(DefaultEndpoint)
	c := &Client{
		endpoint:  u,
		token:     token,
		userAgent: "DiscordBot (" + ProjectURL + ", " + Version + ")",
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = defaultHTTPClient()
	}
	c.buckets = newBucketManager(c.log)
	c.fetch = newFetchCache()
	return c
}

// defaultHTTPClient builds a keep-alive pooled transport tuned for many
// small API calls. Redirects are handled by the engine, not the client.
func defaultHTTPClient() *http.Client {
	tr := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       120 * time.Second,
		ForceAttemptHTTP2:     true,
		ResponseHeaderTimeout: 10 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: tr,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Request is filled in by the caller's build function.
type Request struct {
	Method string
	Query  url.Values
	Header http.Header
	Body   interface{}

	// ETF asks the server for an ETF-encoded response body; the caller
	// decodes it with the etf package.
	ETF bool

	// NoAuth suppresses the Authorization header.
	NoAuth bool
}

// Do issues a request against route, rate limited under bucket (the route
// itself when bucket is empty), and returns the response body. 204 yields
// an empty body.
func (c *Client) Do(ctx context.Context, route, bucket string, build func(*Request)) ([]byte, error) {
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	if bucket == "" {
		bucket = route
	}
	if !strings.HasPrefix(bucket, "/") {
		bucket = "/" + bucket
	}

	req := Request{Method: http.MethodGet, Header: make(http.Header)}
	if build != nil {
		build(&req)
	}
	var body []byte
	if req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, err
		}
	}

	b, err := c.buckets.acquire(ctx, bucket)
	if err != nil {
		return nil, err
	}
	defer b.mu.Unlock()

	// The route may already carry percent-escaped segments (reaction
	// emojis); splicing it through url.URL.Path would re-escape the
	// percent signs, so the target is assembled as a string.
	target := c.endpoint.String() + route
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		requestAttempts.WithLabelValues(req.Method).Inc()
		resp, respBody, err := c.issue(ctx, req, target, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Watchdog fired or the transport failed; both re-enter the
			// retry loop.
			cause := "transport"
			if errors.Is(err, context.DeadlineExceeded) {
				cause = "timeout"
			}
			requestRetries.WithLabelValues(cause).Inc()
			c.log.Warn("request attempt failed",
				zap.String("route", route), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			next, err := c.resolveRedirect(target, resp.Header.Get("Location"))
			if err != nil {
				return nil, err
			}
			c.log.Debug("following redirect", zap.String("to", next))
			target = next
			// Re-issue without releasing the bucket.
			continue
		}

		retry, err := c.buckets.update(ctx, b, bucket, resp)
		if err != nil {
			return nil, err
		}
		if retry {
			requestRetries.WithLabelValues("rate_limit").Inc()
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNoContent:
			return nil, nil
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return respBody, nil
		case resp.StatusCode >= 400:
			return nil, &HTTPError{Status: resp.StatusCode, Body: respBody}
		}
	}
	return nil, ErrRetryExhausted
}

// issue performs one attempt under the watchdog timeout.
func (c *Client) issue(ctx context.Context, req Request, target string, body []byte) (*http.Response, []byte, error) {
	actx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	hreq, err := http.NewRequestWithContext(actx, req.Method, target, rd)
	if err != nil {
		return nil, nil, err
	}
	for k, vs := range req.Header {
		hreq.Header[k] = vs
	}
	hreq.Header.Set("User-Agent", c.userAgent)
	if req.ETF {
		hreq.Header.Set("Accept", "application/etf")
	}
	if c.token != "" && !req.NoAuth {
		hreq.Header.Set("Authorization", "Bot "+c.token)
	}
	if body != nil && hreq.Header.Get("Content-Type") == "" {
		hreq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(hreq)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, respBody, nil
}

// resolveRedirect validates a Location header. Absolute URLs must share
// the endpoint host; server-relative paths must stay under the API base;
// document-relative references resolve against the current URL.
func (c *Client) resolveRedirect(current, location string) (string, error) {
	if location == "" {
		return "", ErrBadRedirect
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", ErrBadRedirect
	}
	if u.IsAbs() {
		if u.Scheme != c.endpoint.Scheme || u.Host != c.endpoint.Host {
			return "", ErrBadRedirect
		}
		return u.String(), nil
	}
	if strings.HasPrefix(location, "/") {
		if !strings.HasPrefix(u.Path, c.endpoint.Path) {
			return "", ErrBadRedirect
		}
		resolved := *c.endpoint
		resolved.Path = u.Path
		resolved.RawQuery = u.RawQuery
		return resolved.String(), nil
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", ErrBadRedirect
	}
	return base.ResolveReference(u).String(), nil
}

// doJSON runs Do and decodes the response into out when non-nil.
func (c *Client) doJSON(ctx context.Context, route, bucket string, build func(*Request), out interface{}) error {
	body, err := c.Do(ctx, route, bucket, build)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}
