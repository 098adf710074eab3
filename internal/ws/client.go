// Package ws implements the realtime session client. A Client owns at most
// one websocket connection to the campus chat backend, folds server events
// into a session.State, turns user intents into protocol actions and
// reconnects after abnormal closures.
package ws

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/google/uuid"

	"github.com/campuschat/client/internal/clock"
	"github.com/campuschat/client/internal/metrics"
	"github.com/campuschat/client/internal/protocol"
	"github.com/campuschat/client/internal/session"
)

// ClientConfig holds the realtime client's tunables.
type ClientConfig struct {
	URL               string        // base url, e.g. ws://localhost:8000
	Path              string        // realtime endpoint path
	HeartbeatInterval time.Duration // how often to send a heartbeat action
	ReconnectDelay    time.Duration // delay before reconnecting after an abnormal close
	TypingTimeout     time.Duration // idle time after which typing_stop is sent
	DialTimeout       time.Duration // bound on the websocket handshake
	NotifyBuffer      int           // capacity of the Notifications channel
}

// DefaultClientConfig returns the timings the backend expects.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		URL:               "ws://localhost:8000",
		Path:              "/ws/main/",
		HeartbeatInterval: 30 * time.Second,
		ReconnectDelay:    3 * time.Second,
		TypingTimeout:     3 * time.Second,
		DialTimeout:       10 * time.Second,
		NotifyBuffer:      64,
	}
}

func (c ClientConfig) withDefaults() ClientConfig {
	d := DefaultClientConfig()
	if c.URL == "" {
		c.URL = d.URL
	}
	if c.Path == "" {
		c.Path = d.Path
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.TypingTimeout <= 0 {
		c.TypingTimeout = d.TypingTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.NotifyBuffer <= 0 {
		c.NotifyBuffer = d.NotifyBuffer
	}
	return c
}

// Credentials is what the client needs from the authentication layer.
type Credentials interface {
	AccessToken() string
	IsAuthenticated() bool
	UserID() string
}

// Sink receives every notification the client emits, after the
// Notifications channel.
type Sink interface {
	Publish(n session.Notification)
}

// Options carries the client's collaborators. Zero fields get production
// defaults.
type Options struct {
	Clock  clock.Clock
	Dial   DialFunc
	Logger *slog.Logger
	Sinks  []Sink
}

// Client is the realtime session client. All methods are safe for
// concurrent use and none of them block on the network except for the
// write of a single frame.
type Client struct {
	config ClientConfig
	creds  Credentials
	clock  clock.Clock
	dial   DialFunc
	logger *slog.Logger
	sinks  []Sink
	id     string
	notify chan session.Notification

	mu         sync.Mutex
	gen        uint64 // bumped on every dial and on Disconnect
	connState  session.ConnState
	conn       *connection
	cancelDial context.CancelFunc
	state      session.State

	typing      bool
	typingSeq   uint64
	typingTimer clock.Timer
	heartbeat   clock.Timer
	reconnect   clock.Timer
}

// NewClient creates a disconnected client. Call Connect to open the
// connection.
func NewClient(config ClientConfig, creds Credentials, opts Options) *Client {
	config = config.withDefaults()
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Dial == nil {
		opts.Dial = NetDialer(config.DialTimeout)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	id := uuid.New().String()
	metrics.ConnectionState.Set(float64(session.Disconnected))
	return &Client{
		config: config,
		creds:  creds,
		clock:  opts.Clock,
		dial:   opts.Dial,
		logger: opts.Logger.With("component", "ws", "client", id[:8]),
		sinks:  opts.Sinks,
		id:     id,
		notify: make(chan session.Notification, config.NotifyBuffer),
	}
}

// ID returns the client instance id.
func (c *Client) ID() string { return c.id }

// Notifications returns the channel of state notifications. It is never
// closed. Sends are non-blocking; a reader that falls behind loses
// notifications but can always read the latest Snapshot.
func (c *Client) Notifications() <-chan session.Notification { return c.notify }

// Snapshot returns the current connection state and derived state.
func (c *Client) Snapshot() session.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Connect opens the connection unless one is already open or being opened.
// Without an access token it does nothing.
func (c *Client) Connect() {
	token := c.creds.AccessToken()
	if token == "" {
		c.logger.Debug("connect skipped, no access token")
		return
	}

	c.mu.Lock()
	if c.connState != session.Disconnected {
		c.mu.Unlock()
		return
	}
	stopTimer(&c.reconnect)
	c.startDialLocked(token)
	n := c.changedLocked()
	c.mu.Unlock()

	c.emit(n)
}

// Disconnect closes the connection with a normal closure, cancels every
// timer including a pending reconnect and resets the derived state. Safe to
// call when already disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	prev := c.connState
	conn := c.conn
	cancel := c.cancelDial
	c.conn = nil
	c.cancelDial = nil
	c.connState = session.Disconnected
	stopTimer(&c.reconnect)
	c.resetLocked()
	var ns []session.Notification
	if prev != session.Disconnected {
		ns = append(ns, c.changedLocked())
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.close(ws.StatusNormalClosure, "User disconnect")
	}
	if prev != session.Disconnected {
		metrics.ConnectionState.Set(float64(session.Disconnected))
		c.logger.Info("disconnected", "previous", prev.String())
	}
	c.emit(ns...)
}

// startDialLocked moves to Connecting and dials in the background.
func (c *Client) startDialLocked(token string) {
	c.gen++
	gen := c.gen
	c.connState = session.Connecting
	metrics.ConnectionState.Set(float64(session.Connecting))

	ctx, cancel := context.WithTimeout(context.Background(), c.config.DialTimeout)
	c.cancelDial = cancel
	go c.dialAndServe(ctx, cancel, gen, token)
}

func (c *Client) dialAndServe(ctx context.Context, cancel context.CancelFunc, gen uint64, token string) {
	endpoint, err := Endpoint(c.config.URL, c.config.Path, token)
	if err != nil {
		cancel()
		c.logger.Error("cannot build endpoint", "err", err)
		c.handleClosed(gen, ws.StatusAbnormalClosure, err.Error())
		return
	}

	start := time.Now()
	raw, err := c.dial(ctx, endpoint)
	cancel()
	if err != nil {
		c.logger.Warn("dial failed", "err", err)
		c.handleClosed(gen, ws.StatusAbnormalClosure, err.Error())
		return
	}
	metrics.DialDuration.Observe(time.Since(start).Seconds())

	conn := newConnection(raw)
	userID := c.creds.UserID()

	c.mu.Lock()
	if gen != c.gen {
		// Disconnect or a newer Connect won the race.
		c.mu.Unlock()
		conn.close(ws.StatusNormalClosure, "User disconnect")
		return
	}
	c.conn = conn
	c.cancelDial = nil
	c.connState = session.Connected
	c.state = session.State{UserID: userID}
	c.armHeartbeatLocked(gen)
	n := c.changedLocked()
	c.mu.Unlock()

	metrics.ConnectionState.Set(float64(session.Connected))
	c.logger.Info("connected", "url", c.config.URL)
	c.emit(n)

	code, reason := conn.readLoop(func(data []byte) {
		c.handleFrame(gen, data)
	})
	conn.release()
	c.handleClosed(gen, code, reason)
}

// handleClosed unwinds a connection or dial attempt of generation gen and
// applies the reconnect policy.
func (c *Client) handleClosed(gen uint64, code ws.StatusCode, reason string) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.cancelDial = nil
	c.connState = session.Disconnected
	c.resetLocked()
	n := c.changedLocked()
	c.mu.Unlock()

	metrics.ConnectionState.Set(float64(session.Disconnected))
	c.logger.Info("connection closed", "code", int(code), "reason", reason)
	c.emit(n)

	if code == ws.StatusNormalClosure {
		return
	}
	if !c.creds.IsAuthenticated() || c.creds.AccessToken() == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.connState != session.Disconnected {
		return
	}
	stopTimer(&c.reconnect)
	c.reconnect = c.clock.AfterFunc(c.config.ReconnectDelay, func() {
		c.reconnectNow(gen)
	})
	c.logger.Info("reconnect scheduled", "delay", c.config.ReconnectDelay)
}

// reconnectNow is the reconnect timer callback.
func (c *Client) reconnectNow(gen uint64) {
	token := c.creds.AccessToken()
	authenticated := c.creds.IsAuthenticated()

	c.mu.Lock()
	if gen != c.gen || c.connState != session.Disconnected {
		c.mu.Unlock()
		return
	}
	c.reconnect = nil
	if token == "" || !authenticated {
		c.mu.Unlock()
		return
	}
	metrics.ReconnectsTotal.Inc()
	c.startDialLocked(token)
	n := c.changedLocked()
	c.mu.Unlock()

	c.logger.Info("reconnecting")
	c.emit(n)
}

// resetLocked clears every derived entity and the connection timers.
func (c *Client) resetLocked() {
	c.state = session.State{}
	c.typing = false
	c.typingSeq++
	stopTimer(&c.typingTimer)
	stopTimer(&c.heartbeat)
}

// ---------------------------------------------------------------------------
// Intents
// ---------------------------------------------------------------------------

// JoinQueue asks to be matched.
func (c *Client) JoinQueue() {
	c.send(protocol.JoinQueue())
}

// LeaveQueue leaves the queue. Queue membership is cleared locally right
// away; the server's queue_left confirms it later.
func (c *Client) LeaveQueue() {
	c.mu.Lock()
	var ns []session.Notification
	if c.state.InQueue {
		c.state.InQueue = false
		ns = append(ns, c.changedLocked())
	}
	conn := c.liveLocked()
	c.mu.Unlock()

	c.emit(ns...)
	c.write(conn, protocol.LeaveQueue())
}

// JoinChat attaches the connection to a chat that is already in progress.
func (c *Client) JoinChat(chatID string) {
	if chatID == "" {
		return
	}
	c.send(protocol.JoinChat(chatID))
}

// LeaveChat leaves the current chat.
func (c *Client) LeaveChat() {
	c.send(protocol.LeaveChat())
}

// SendMessage sends text, trimmed, to the active chat. Empty text and calls
// without an active chat are ignored. A pending typing indicator is
// stopped.
func (c *Client) SendMessage(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	c.mu.Lock()
	if !c.state.HasChat() {
		c.mu.Unlock()
		c.logger.Debug("send_message dropped, no active chat")
		return
	}
	wasTyping := c.typing
	if wasTyping {
		c.typing = false
		c.typingSeq++
		stopTimer(&c.typingTimer)
	}
	conn := c.liveLocked()
	c.mu.Unlock()

	if c.write(conn, protocol.SendMessage(text)) {
		metrics.MessagesTotal.WithLabelValues("sent").Inc()
	}
	if wasTyping {
		c.write(conn, protocol.TypingStop())
	}
}

// EndChat ends the active chat for both participants.
func (c *Client) EndChat() {
	c.mu.Lock()
	if !c.state.HasChat() {
		c.mu.Unlock()
		return
	}
	conn := c.liveLocked()
	c.mu.Unlock()

	c.write(conn, protocol.EndChat())
}

// Refresh asks the server to push a fresh initial_state.
func (c *Client) Refresh() {
	c.send(protocol.Refresh())
}

// send writes a if the connection is live.
func (c *Client) send(a protocol.Action) {
	c.mu.Lock()
	conn := c.liveLocked()
	c.mu.Unlock()
	c.write(conn, a)
}

// write encodes a and writes it to conn. A nil conn means the client is not
// connected and the action is dropped. It reports whether the frame was
// written.
func (c *Client) write(conn *connection, a protocol.Action) bool {
	if conn == nil {
		metrics.ActionsDropped.WithLabelValues(a.Action).Inc()
		c.logger.Debug("action dropped, not connected", "action", a.Action)
		return false
	}

	data, err := protocol.EncodeAction(a)
	if err != nil {
		c.logger.Error("failed to encode action", "action", a.Action, "err", err)
		return false
	}
	if err := conn.writeText(data); err != nil {
		// The read loop sees the same failure and runs the close path.
		c.logger.Warn("failed to write action", "action", a.Action, "err", err)
		return false
	}
	metrics.ActionsTotal.WithLabelValues(a.Action).Inc()
	return true
}

// liveLocked returns the connection if it is open, nil otherwise.
func (c *Client) liveLocked() *connection {
	if c.connState != session.Connected {
		return nil
	}
	return c.conn
}

// ---------------------------------------------------------------------------
// Notifications
// ---------------------------------------------------------------------------

func (c *Client) snapshotLocked() session.Snapshot {
	return session.Snapshot{Connection: c.connState, State: c.state}
}

func (c *Client) changedLocked() session.Notification {
	return session.Notification{Kind: session.Changed, Snapshot: c.snapshotLocked()}
}

// emit delivers notifications to the channel and the sinks. It must be
// called without c.mu held.
func (c *Client) emit(ns ...session.Notification) {
	for _, n := range ns {
		select {
		case c.notify <- n:
		default:
			c.logger.Warn("notification dropped, reader is behind", "kind", n.Kind.String())
		}
		for _, s := range c.sinks {
			s.Publish(n)
		}
	}
}

func stopTimer(t *clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
