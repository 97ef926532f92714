package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"discord-gateway-client/types"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("token", WithEndpoint(srv.URL+"/api/v6"))
	return c, srv
}

func TestDoSuccess(t *testing.T) {
	var gotAuth, gotUA string
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`{"id":"42","username":"bot"}`))
	}))
	var u types.User
	if err := c.doJSON(context.Background(), "/users/42", "", nil, &u); err != nil {
		t.Fatal(err)
	}
	if u.ID != 42 || u.Username != "bot" {
		t.Errorf("got %+v", u)
	}
	if gotAuth != "Bot token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotUA == "" {
		t.Error("User-Agent missing")
	}
}

func TestDoNoContent(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	body, err := c.Do(context.Background(), "/typing", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(body) != 0 {
		t.Errorf("204 returned body %q", body)
	}
}

func TestDoErrorStatus(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"Missing Permissions"}`))
	}))
	_, err := c.Do(context.Background(), "/guilds/1", "", nil)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("want HTTPError, got %v", err)
	}
	if httpErr.Status != http.StatusForbidden {
		t.Errorf("status = %d", httpErr.Status)
	}
}

func TestGlobalRateLimitRetry(t *testing.T) {
	var calls atomic.Int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("X-RateLimit-Global", "true")
			w.Header().Set("Retry-After", "200")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	start := time.Now()
	if _, err := c.Do(context.Background(), "/messages", "", nil); err != nil {
		t.Fatal(err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("server saw %d calls, want 2", n)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("caller unblocked after %v, want >= 200ms", elapsed)
	}
}

func TestPlainTooManyRequestsCapsAttempts(t *testing.T) {
	var calls atomic.Int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	// Shorten the no-header backoff so the test does not crawl.
	c.buckets.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	_, err := c.Do(context.Background(), "/messages", "", nil)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("want ErrRetryExhausted, got %v", err)
	}
	if n := calls.Load(); n != maxAttempts {
		t.Errorf("server saw %d calls, want %d", n, maxAttempts)
	}
}

func TestTransportErrorsExhaustRetries(t *testing.T) {
	c := NewClient("token",
		WithEndpoint("http://127.0.0.1:1/api/v6"),
		WithHTTPClient(doerFunc(func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		})))
	_, err := c.Do(context.Background(), "/gateway", "", nil)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("want ErrRetryExhausted, got %v", err)
	}
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

func TestRedirectInsideBaseFollowed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v6/old", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/api/v6/new")
		w.WriteHeader(http.StatusMovedPermanently)
	})
	mux.HandleFunc("/api/v6/new", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	})
	c, _ := testClient(t, mux)
	body, err := c.Do(context.Background(), "/old", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q", body)
	}
}

func TestRedirectOutsideBaseRejected(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://evil.example.com/steal")
		w.WriteHeader(http.StatusFound)
	}))
	_, err := c.Do(context.Background(), "/old", "", nil)
	if !errors.Is(err, ErrBadRedirect) {
		t.Fatalf("want ErrBadRedirect, got %v", err)
	}

	// A server-relative path outside the API base is also rejected.
	c2, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/elsewhere/steal")
		w.WriteHeader(http.StatusFound)
	}))
	_, err = c2.Do(context.Background(), "/old", "", nil)
	if !errors.Is(err, ErrBadRedirect) {
		t.Fatalf("want ErrBadRedirect, got %v", err)
	}
}

func TestBucketBlocksWhenExhausted(t *testing.T) {
	m := newBucketManager(zap.NewNop())
	var virtual time.Time = time.Unix(5000, 0)
	var slept time.Duration
	m.now = func() time.Time { return virtual }
	m.sleep = func(ctx context.Context, d time.Duration) error {
		slept += d
		virtual = virtual.Add(d)
		return ctx.Err()
	}

	b, err := m.acquire(context.Background(), "/messages")
	if err != nil {
		t.Fatal(err)
	}
	resp := &http.Response{StatusCode: 200, Header: http.Header{}}
	resp.Header.Set("X-RateLimit-Limit", "5")
	resp.Header.Set("X-RateLimit-Remaining", "0")
	resp.Header.Set("X-RateLimit-Reset", "5010")
	if retry, err := m.update(context.Background(), b, "/messages", resp); retry || err != nil {
		t.Fatalf("retry=%v err=%v", retry, err)
	}
	b.mu.Unlock()

	// remaining == 0 with a future reset: the next acquire must sleep
	// until the reset instant, then refresh remaining from the limit.
	b2, err := m.acquire(context.Background(), "/messages")
	if err != nil {
		t.Fatal(err)
	}
	defer b2.mu.Unlock()
	if slept < 10*time.Second {
		t.Errorf("slept %v, want >= 10s", slept)
	}
	if b2.remaining != 4 {
		t.Errorf("remaining = %d, want 4 after refresh and spend", b2.remaining)
	}
}

func TestGatewayURLCached(t *testing.T) {
	var calls atomic.Int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"url":"wss://gateway.example"}`))
	}))
	u1, err := c.GatewayURL(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// ristretto admits asynchronously; give it a beat.
	time.Sleep(20 * time.Millisecond)
	u2, err := c.GatewayURL(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if u1 != "wss://gateway.example" || u2 != u1 {
		t.Errorf("urls %q %q", u1, u2)
	}
	if n := calls.Load(); n > 2 {
		t.Errorf("gateway URL fetched %d times", n)
	}

	c.InvalidateGatewayURL()
	if _, err := c.GatewayURL(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestMessagesValidation(t *testing.T) {
	c := NewClient("token")
	ch := c.Channel(1)
	if _, err := ch.Messages(context.Background(), 0, 0, 0, 0); !errors.Is(err, ErrBadRequest) {
		t.Errorf("limit 0: got %v", err)
	}
	if _, err := ch.Messages(context.Background(), 101, 0, 0, 0); !errors.Is(err, ErrBadRequest) {
		t.Errorf("limit 101: got %v", err)
	}
	if _, err := ch.Messages(context.Background(), 50, 1, 2, 0); !errors.Is(err, ErrBadRequest) {
		t.Errorf("two anchors: got %v", err)
	}
}

func TestDeleteMessagesRouting(t *testing.T) {
	var paths []string
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	ch := c.Channel(9)

	if err := ch.DeleteMessages(context.Background(), nil); !errors.Is(err, ErrBadRequest) {
		t.Errorf("empty ids: got %v", err)
	}
	ids := make([]types.Snowflake, 101)
	for i := range ids {
		ids[i] = types.Snowflake(i + 1)
	}
	if err := ch.DeleteMessages(context.Background(), ids); !errors.Is(err, ErrBadRequest) {
		t.Errorf("101 ids: got %v", err)
	}

	if err := ch.DeleteMessages(context.Background(), []types.Snowflake{77}); err != nil {
		t.Fatal(err)
	}
	if err := ch.DeleteMessages(context.Background(), []types.Snowflake{1, 2}); err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v", paths)
	}
	if paths[0] != "DELETE /api/v6/channels/9/messages/77" {
		t.Errorf("single delete path = %q", paths[0])
	}
	if paths[1] != "POST /api/v6/channels/9/messages/bulk-delete" {
		t.Errorf("bulk delete path = %q", paths[1])
	}
}

func TestReactionPathsEscapeOnce(t *testing.T) {
	var uris []string
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uris = append(uris, r.Method+" "+r.RequestURI)
		if r.Method == http.MethodGet {
			w.Write([]byte(`[]`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	ch := c.Channel(9)
	ctx := context.Background()

	// A unicode emoji must arrive singly percent-escaped on the wire.
	if err := ch.CreateReaction(ctx, 77, "😀"); err != nil {
		t.Fatal(err)
	}
	if err := ch.DeleteOwnReaction(ctx, 77, "😀"); err != nil {
		t.Fatal(err)
	}
	if err := ch.DeleteUserReaction(ctx, 77, 3, "😀"); err != nil {
		t.Fatal(err)
	}
	if _, err := ch.Reactions(ctx, 77, "😀"); err != nil {
		t.Fatal(err)
	}
	// A custom emoji keeps its name:id form with the colon escaped.
	if err := ch.CreateReaction(ctx, 77, "party:123"); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"PUT /api/v6/channels/9/messages/77/reactions/%F0%9F%98%80/@me",
		"DELETE /api/v6/channels/9/messages/77/reactions/%F0%9F%98%80/@me",
		"DELETE /api/v6/channels/9/messages/77/reactions/%F0%9F%98%80/3",
		"GET /api/v6/channels/9/messages/77/reactions/%F0%9F%98%80",
		"PUT /api/v6/channels/9/messages/77/reactions/party%3A123/@me",
	}
	if len(uris) != len(want) {
		t.Fatalf("uris = %v", uris)
	}
	for i := range want {
		if uris[i] != want[i] {
			t.Errorf("request %d = %q, want %q", i, uris[i], want[i])
		}
		if strings.Contains(uris[i], "%25") {
			t.Errorf("request %d double-escaped: %q", i, uris[i])
		}
	}
}

func TestCreateInviteOmitsDefaults(t *testing.T) {
	var body string
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Write([]byte(`{"code":"abc"}`))
	}))
	inv, err := c.Channel(3).CreateInvite(context.Background(), 0, 0, false, true)
	if err != nil {
		t.Fatal(err)
	}
	if inv.Code != "abc" {
		t.Errorf("code = %q", inv.Code)
	}
	if body != `{"unique":true}` {
		t.Errorf("body = %s", body)
	}
}

