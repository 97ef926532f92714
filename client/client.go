// Package client binds the REST engine, the gateway engine and the cache
// state together behind one handle.
package client

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"discord-gateway-client/gateway"
	"discord-gateway-client/rest"
	"discord-gateway-client/state"
	"discord-gateway-client/types"
)

// HandlerFunc receives every dispatch after the caches have been updated.
// data is the raw payload for deferred decoding.
type HandlerFunc func(event string, data []byte)

// Options configures a Client.
type Options struct {
	Encoding gateway.Encoding
	Compress bool
	Shard    *[2]int
	Presence *types.StatusUpdate
	Logger   *zap.Logger

	// RESTOptions are passed through to the REST client.
	RESTOptions []rest.Option
}

// Client is the top-level handle.
type Client struct {
	REST    *rest.Client
	Gateway *gateway.Gateway
	State   *state.State

	log *zap.Logger

	mu       sync.Mutex
	handlers []HandlerFunc
}

// New assembles a client for the given bot token.
func New(token string, opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	restOpts := append([]rest.Option{rest.WithLogger(log)}, opts.RESTOptions...)
	rc := rest.NewClient(token, restOpts...)

	c := &Client{
		REST:  rc,
		State: state.New(log),
		log:   log,
	}
	c.Gateway = gateway.New(rc, gateway.Options{
		Token:    token,
		Encoding: opts.Encoding,
		Compress: opts.Compress,
		Shard:    opts.Shard,
		Presence: opts.Presence,
		Logger:   log,
		OnEvent:  c.dispatch,
	})
	return c
}

// dispatch folds the event into the caches, then fans out to handlers.
func (c *Client) dispatch(event string, data []byte) {
	c.State.HandleEvent(event, data)
	c.mu.Lock()
	handlers := c.handlers
	c.mu.Unlock()
	for _, h := range handlers {
		h(event, data)
	}
}

// OnEvent registers a handler for every dispatch.
func (c *Client) OnEvent(h HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Open connects the gateway.
func (c *Client) Open(ctx context.Context) error {
	return c.Gateway.Open(ctx)
}

// Close disconnects the gateway.
func (c *Client) Close() error {
	return c.Gateway.Close()
}

// Channel returns the REST handle for a channel.
func (c *Client) Channel(id types.Snowflake) *rest.ChannelAPI {
	return c.REST.Channel(id)
}

// Guild returns the REST handle for a guild.
func (c *Client) Guild(id types.Snowflake) *rest.GuildAPI {
	return c.REST.Guild(id)
}
