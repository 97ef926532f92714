// Package gateway owns the persistent WebSocket connection to the chat
// service: it negotiates the encoding, runs the heartbeat, identifies or
// resumes a session, dispatches incoming events and reconnects itself
// with backoff and jitter.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"discord-gateway-client/ratelimit"
	"discord-gateway-client/types"
)

// Encoding selects the wire format negotiated at connect time.
type Encoding string

const (
	EncodingJSON Encoding = "json"
	EncodingETF  Encoding = "etf"
)

const (
	// maxFrameSize caps outbound frames.
	maxFrameSize = 4096

	protocolVersion = 6

	connectCooldown  = 5100 * time.Millisecond
	connectRetryWait = 10 * time.Second
)

var (
	// ErrProtocol marks a violation of the gateway protocol, such as a
	// first frame that is not hello. The engine stops on it.
	ErrProtocol = errors.New("gateway: protocol error")

	// ErrPacketTooLarge is returned for outbound frames over the cap.
	ErrPacketTooLarge = errors.New("gateway: packet exceeds 4096 bytes")

	// ErrNotConnected is returned when sending without a connection.
	ErrNotConnected = errors.New("gateway: not connected")
)

// ClosedError is a permanent close surfaced to the caller; the engine
// does not reconnect.
type ClosedError struct {
	Code   int
	Reason string
}

func (e *ClosedError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = types.CloseCodeText(e.Code)
	}
	return fmt.Sprintf("gateway: closed with code %d: %s", e.Code, reason)
}

// URLSource resolves and caches the gateway URL; rest.Client satisfies it.
type URLSource interface {
	GatewayURL(ctx context.Context) (string, error)
	InvalidateGatewayURL()
}

// DispatchFunc receives every well-formed dispatch. data is the raw
// payload (JSON, or version-prefixed ETF) for deferred decoding.
type DispatchFunc func(event string, data []byte)

// Options configures a Gateway.
type Options struct {
	Token    string
	Encoding Encoding
	Compress bool

	// Shard is the [id, count] pair for parameterized sharding.
	Shard *[2]int

	// Presence is sent with identify.
	Presence *types.StatusUpdate

	// OnEvent is invoked, each on its own goroutine, for every dispatch.
	OnEvent DispatchFunc

	// OnDisconnect is invoked when the engine stops permanently.
	OnDisconnect func(err error)

	Logger *zap.Logger
}

// Gateway is the connection engine. Session state is only touched from
// gateway tasks under mu; the heartbeat and receive loops coordinate
// exclusively through that state.
type Gateway struct {
	opts Options
	urls URLSource
	log  *zap.Logger

	connectCD  *ratelimit.Cooldown
	identifyRL *ratelimit.Window
	sendRL     *ratelimit.Window
	statusRL   *ratelimit.Window

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu               sync.Mutex
	conn             *websocket.Conn
	sessionID        string
	seq              int64
	hasSeq           bool
	receivedAck      bool
	shouldDisconnect bool
	resumable        bool
	lastBeat         time.Time
	stopHB           chan struct{}
	gen              uint64

	reconnectMu sync.Mutex
	wg          sync.WaitGroup

	// reconnectDelay computes the jittered backoff used when no session
	// exists; replaced in tests.
	reconnectDelay func() time.Duration
}

// New returns an unconnected gateway.
func New(urls URLSource, opts Options) *Gateway {
	if opts.Encoding == "" {
		opts.Encoding = EncodingJSON
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		opts:       opts,
		urls:       urls,
		log:        log,
		connectCD:  ratelimit.NewCooldown(connectCooldown),
		identifyRL: ratelimit.NewWindow(identifyWindowLimit, 24*time.Hour, connectCooldown),
		sendRL:     ratelimit.NewWindow(12, 6*time.Second, 100*time.Millisecond),
		statusRL:   ratelimit.NewWindow(5, time.Minute, time.Second),
		reconnectDelay: func() time.Duration {
			return time.Second + time.Duration(rand.Int63n(int64(4*time.Second)))
		},
	}
}

// Open connects, completes the handshake and starts the worker tasks. It
// returns once the session is authenticated.
func (g *Gateway) Open(ctx context.Context) error {
	g.ctx, g.cancel = context.WithCancel(ctx)
	return g.connect(g.ctx)
}

// Close tears the connection down and stops all workers.
func (g *Gateway) Close() error {
	if g.cancel != nil {
		g.cancel()
	}
	g.disconnect(websocket.CloseNormalClosure)
	g.wg.Wait()
	return nil
}

// connect dials, waits for hello, authenticates and starts the receive
// and heartbeat loops. Dial failures invalidate the cached URL, sleep and
// retry; the connect cooldown gates every dial.
func (g *Gateway) connect(ctx context.Context) error {
	if err := g.connectCD.WaitFor(ctx); err != nil {
		return err
	}

	var conn *websocket.Conn
	for {
		base, err := g.urls.GatewayURL(ctx)
		if err != nil {
			return fmt.Errorf("gateway: resolving url: %w", err)
		}
		target := base + "/?v=" + strconv.Itoa(protocolVersion) + "&encoding=" + string(g.opts.Encoding)
		g.log.Info("connecting", zap.String("url", target))
		conn, _, err = websocket.DefaultDialer.DialContext(ctx, target, nil)
		if err == nil {
			break
		}
		g.urls.InvalidateGatewayURL()
		g.log.Warn("connect failed, retrying", zap.Error(err))
		if serr := sleepCtx(ctx, connectRetryWait); serr != nil {
			return serr
		}
	}

	stopHB := make(chan struct{})
	g.mu.Lock()
	g.conn = conn
	g.shouldDisconnect = false
	g.receivedAck = true
	g.stopHB = stopHB
	gen := g.gen
	g.mu.Unlock()

	// The first frame must be hello.
	f, err := g.readFrame(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: reading hello: %v", ErrProtocol, err)
	}
	if f.op != types.OpHello {
		conn.Close()
		return fmt.Errorf("%w: expected hello, got opcode %d", ErrProtocol, f.op)
	}
	var hello types.Hello
	if err := decodePayload(f.data, &hello); err != nil {
		conn.Close()
		return fmt.Errorf("%w: decoding hello: %v", ErrProtocol, err)
	}
	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
	if interval <= 0 {
		conn.Close()
		return fmt.Errorf("%w: heartbeat interval %v", ErrProtocol, interval)
	}
	g.log.Info("hello received", zap.Duration("heartbeat_interval", interval))

	if err := g.authenticate(ctx); err != nil {
		conn.Close()
		return err
	}

	g.wg.Add(2)
	go g.receiveLoop(conn, gen)
	go g.heartbeatLoop(gen, interval, stopHB)
	return nil
}

// authenticate resumes when a resumable session exists, otherwise
// identifies. Both handshakes pass the identify limiter on top of the
// send limiter.
func (g *Gateway) authenticate(ctx context.Context) error {
	g.mu.Lock()
	sessionID := g.sessionID
	resumable := g.resumable
	seq := g.seq
	g.mu.Unlock()

	if err := g.identifyRL.WaitFor(ctx); err != nil {
		return err
	}

	if sessionID != "" && resumable {
		g.log.Info("resuming session", zap.String("session_id", sessionID), zap.Int64("seq", seq))
		return g.send(ctx, types.OpResume, types.Resume{
			Token:     g.opts.Token,
			SessionID: sessionID,
			Seq:       seq,
		})
	}

	identify := types.Identify{
		Token: g.opts.Token,
		Properties: types.IdentifyProperties{
			OS:      runtime.GOOS,
			Browser: "vibe-like-transport",
			Device:  runtime.GOARCH,
		},
		Compress:       g.opts.Compress,
		LargeThreshold: 250,
		Shard:          g.opts.Shard,
		Presence:       g.opts.Presence,
	}
	g.log.Info("identifying")
	return g.send(ctx, types.OpIdentify, identify)
}

// receiveLoop drains frames until the connection dies, advancing the
// sequence synchronously before each dispatch is handed off.
func (g *Gateway) receiveLoop(conn *websocket.Conn, gen uint64) {
	defer g.wg.Done()
	for {
		f, err := g.readFrame(conn)
		if err != nil {
			g.handleReadError(err, gen)
			return
		}
		switch f.op {
		case types.OpDispatch:
			g.mu.Lock()
			if f.hasSeq {
				g.seq = f.seq
				g.hasSeq = true
			}
			g.mu.Unlock()
			g.handleDispatch(f)
		case types.OpReconnect:
			g.log.Info("server requested reconnect")
			reconnects.WithLabelValues("server_request").Inc()
			go g.reconnect(gen, true)
			return
		case types.OpInvalidSession:
			g.log.Warn("session invalidated by server")
			reconnects.WithLabelValues("invalid_session").Inc()
			go g.reconnect(gen, false)
			return
		case types.OpHeartbeat, types.OpHeartbeatACK:
			g.mu.Lock()
			g.receivedAck = true
			if !g.lastBeat.IsZero() {
				heartbeatLatency.Set(time.Since(g.lastBeat).Seconds())
			}
			g.mu.Unlock()
		default:
			g.log.Debug("ignoring frame", zap.Int("op", f.op))
		}
	}
}

// handleDispatch captures session bookkeeping and hands the payload to
// the event callback on its own goroutine.
func (g *Gateway) handleDispatch(f frame) {
	eventsDispatched.WithLabelValues(f.event).Inc()
	if f.event == "READY" {
		var ready struct {
			SessionID string `json:"session_id"`
		}
		if err := decodePayload(f.data, &ready); err == nil && ready.SessionID != "" {
			g.mu.Lock()
			g.sessionID = ready.SessionID
			g.resumable = true
			g.mu.Unlock()
			g.log.Info("session established", zap.String("session_id", ready.SessionID))
		}
	}
	if g.opts.OnEvent != nil {
		go g.opts.OnEvent(f.event, f.data)
	}
}

// handleReadError maps a dead connection to its reconnect policy.
func (g *Gateway) handleReadError(err error, gen uint64) {
	g.mu.Lock()
	wanted := g.shouldDisconnect
	g.mu.Unlock()
	if wanted {
		return
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch {
		case types.FatalCloseCode(ce.Code):
			g.fail(&ClosedError{Code: ce.Code, Reason: ce.Text})
			return
		case types.ResetSessionCloseCode(ce.Code):
			g.log.Warn("close requires a fresh session",
				zap.Int("code", ce.Code), zap.String("reason", types.CloseCodeText(ce.Code)))
			reconnects.WithLabelValues("session_reset").Inc()
			go g.reconnect(gen, false)
			return
		default:
			g.log.Warn("connection closed, resuming", zap.Int("code", ce.Code))
			reconnects.WithLabelValues("close").Inc()
			go g.reconnect(gen, true)
			return
		}
	}

	g.log.Warn("transport error, reconnecting", zap.Error(err))
	reconnects.WithLabelValues("transport").Inc()
	go g.reconnect(gen, true)
}

// reconnect serializes teardown and re-dial: disconnect, wait for both
// workers, then connect again. Without a session it backs off a random
// [1,5) seconds first.
func (g *Gateway) reconnect(gen uint64, resume bool) {
	g.reconnectMu.Lock()
	defer g.reconnectMu.Unlock()

	g.mu.Lock()
	if g.gen != gen {
		// Another task already reconnected this generation.
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	g.disconnect(websocket.CloseServiceRestart)
	g.wg.Wait()

	g.mu.Lock()
	g.gen++
	if !resume {
		g.sessionID = ""
		g.hasSeq = false
	}
	g.resumable = resume && g.sessionID != ""
	hasSession := g.sessionID != ""
	g.mu.Unlock()

	if g.ctx.Err() != nil {
		return
	}
	if !hasSession {
		delay := g.reconnectDelay()
		g.log.Info("reconnect backoff", zap.Duration("delay", delay))
		if err := sleepCtx(g.ctx, delay); err != nil {
			return
		}
	}
	if err := g.connect(g.ctx); err != nil {
		g.fail(err)
	}
}

// disconnect flags the teardown, stops the heartbeat and closes the
// socket, which wakes the receive loop.
func (g *Gateway) disconnect(code int) {
	g.mu.Lock()
	g.shouldDisconnect = true
	conn := g.conn
	g.conn = nil
	stopHB := g.stopHB
	g.stopHB = nil
	g.mu.Unlock()

	if stopHB != nil {
		close(stopHB)
	}
	if conn != nil {
		msg := websocket.FormatCloseMessage(code, "")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}
}

// fail stops the engine permanently and surfaces err to the caller.
func (g *Gateway) fail(err error) {
	g.log.Error("gateway stopped", zap.Error(err))
	g.disconnect(websocket.CloseNormalClosure)
	if g.cancel != nil {
		g.cancel()
	}
	if g.opts.OnDisconnect != nil {
		g.opts.OnDisconnect(err)
	}
}

// heartbeatLoop proves liveness every interval. A tick that finds the
// previous beat unacknowledged forces a resumable reconnect.
func (g *Gateway) heartbeatLoop(gen uint64, interval time.Duration, stop chan struct{}) {
	defer g.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			g.mu.Lock()
			acked := g.receivedAck
			g.mu.Unlock()
			if !acked {
				g.log.Warn("heartbeat not acknowledged, reconnecting")
				reconnects.WithLabelValues("heartbeat_timeout").Inc()
				go g.reconnect(gen, true)
				return
			}

			g.mu.Lock()
			var d *int64
			if g.hasSeq {
				seq := g.seq
				d = &seq
			}
			g.receivedAck = false
			g.lastBeat = time.Now()
			g.mu.Unlock()

			if err := g.send(g.ctx, types.OpHeartbeat, d); err != nil {
				if g.ctx.Err() != nil {
					return
				}
				g.log.Warn("heartbeat send failed", zap.Error(err))
				go g.reconnect(gen, true)
				return
			}
		}
	}
}

// send serializes and writes one frame. Every outbound frame passes the
// send limiter; callers add their own limiter on top where required.
func (g *Gateway) send(ctx context.Context, op int, d interface{}) error {
	payload, msgType, err := g.encodeFrame(op, d)
	if err != nil {
		return err
	}
	if err := g.sendRL.WaitFor(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteMessage(msgType, payload); err != nil {
		return err
	}
	framesSent.WithLabelValues(strconv.Itoa(op)).Inc()
	return nil
}

// UpdateStatus publishes a presence change, gated by the status limiter.
func (g *Gateway) UpdateStatus(ctx context.Context, status types.StatusUpdate) error {
	if err := g.statusRL.WaitFor(ctx); err != nil {
		return err
	}
	return g.send(ctx, types.OpStatusUpdate, status)
}

// UpdateVoiceState moves the client between voice channels.
func (g *Gateway) UpdateVoiceState(ctx context.Context, guild, channel types.Snowflake, selfMute, selfDeaf bool) error {
	body := map[string]interface{}{
		"guild_id":  guild,
		"self_mute": selfMute,
		"self_deaf": selfDeaf,
	}
	if channel.IsZero() {
		body["channel_id"] = nil
	} else {
		body["channel_id"] = channel
	}
	return g.send(ctx, types.OpVoiceStateUpdate, body)
}

// RequestGuildMembers asks the server to stream a guild's member list.
func (g *Gateway) RequestGuildMembers(ctx context.Context, guild types.Snowflake, query string, limit int) error {
	return g.send(ctx, types.OpRequestGuildMembers, types.RequestGuildMembers{
		GuildID: guild,
		Query:   query,
		Limit:   limit,
		Nonce:   uuid.NewString(),
	})
}

// SessionID returns the current session id, empty when no session exists.
func (g *Gateway) SessionID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessionID
}

// LastSequence returns the last dispatch sequence seen.
func (g *Gateway) LastSequence() (int64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq, g.hasSeq
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
