// Package messaging fans realtime session notifications out over NATS so
// that other local processes (a desktop notifier, a bot) can follow the
// session without owning the websocket.
package messaging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/campuschat/client/internal/session"
)

// SubjectPrefix is the root of every subject the publisher uses:
// campuschat.<user>.matched|ended|state.
const SubjectPrefix = "campuschat"

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "campuschat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NATSClient wraps the NATS connection.
type NATSClient struct {
	conn   *nats.Conn
	logger *slog.Logger
	mu     sync.Mutex
	subs   map[string]*nats.Subscription
}

// NewNATSClient connects to NATS with the given config. It returns an error
// if the initial connection fails.
func NewNATSClient(config NATSConfig, logger *slog.Logger) (*NATSClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "nats")

	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected", "err", err)
			} else {
				logger.Info("disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("messaging: nats connect: %w", err)
	}
	logger.Info("connected", "url", nc.ConnectedUrl())

	return &NATSClient{
		conn:   nc,
		logger: logger,
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for subject. Wildcards are allowed.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("messaging: subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
}

// Unsubscribe removes the subscription registered for subject.
func (c *NATSClient) Unsubscribe(subject string) error {
	c.mu.Lock()
	sub, ok := c.subs[subject]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("messaging: no subscription for subject %s", subject)
	}
	delete(c.subs, subject)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("messaging: unsubscribe %s: %w", subject, err)
	}
	return nil
}

// Close drains all subscriptions and the connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.logger.Warn("drain subscription", "subject", subject, "err", err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("drain connection", "err", err)
	}
}

// ---------------------------------------------------------------------------
// Notification fan-out
// ---------------------------------------------------------------------------

// Payload is the JSON body of a published notification.
type Payload struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	ChatID     string    `json:"chat_id,omitempty"`
	Connection string    `json:"connection"`
	InQueue    bool      `json:"in_queue"`
	HasChat    bool      `json:"has_chat"`
	Messages   int       `json:"messages"`
	PeerTyping bool      `json:"peer_typing"`
	CanAccess  *bool     `json:"can_access,omitempty"`
	At         time.Time `json:"at"`
}

// NewPayload builds the wire form of n.
func NewPayload(n session.Notification, at time.Time) Payload {
	snap := n.Snapshot
	p := Payload{
		ID:         uuid.NewString(),
		Kind:       n.Kind.String(),
		ChatID:     n.ChatID,
		Connection: snap.Connection.String(),
		InQueue:    snap.InQueue,
		HasChat:    snap.HasChat(),
		PeerTyping: snap.PeerTyping,
		At:         at.UTC(),
	}
	if p.ChatID == "" {
		p.ChatID = snap.ChatID()
	}
	if snap.Chat != nil {
		p.Messages = len(snap.Chat.Messages)
	}
	if snap.Access != nil {
		can := snap.Access.CanAccess
		p.CanAccess = &can
	}
	return p
}

// Subject returns campuschat.<user>.<kind>. Characters NATS treats
// specially are replaced in the user token.
func Subject(user string, kind session.NotificationKind) string {
	return SubjectPrefix + "." + subjectToken(user) + "." + kind.String()
}

// WildcardSubject matches every notification for user.
func WildcardSubject(user string) string {
	return SubjectPrefix + "." + subjectToken(user) + ".>"
}

func subjectToken(s string) string {
	if s == "" {
		return "anonymous"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// Publisher is the subset of NATSClient the NATSPublisher needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes client notifications. It implements ws.Sink.
type NATSPublisher struct {
	pub    Publisher
	user   func() string
	now    func() time.Time
	logger *slog.Logger
}

// NewNATSPublisher returns a publisher that addresses notifications to the
// user reported by user at publish time.
func NewNATSPublisher(pub Publisher, user func() string, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{
		pub:    pub,
		user:   user,
		now:    time.Now,
		logger: logger.With("component", "nats"),
	}
}

// Publish sends n. Failures are logged and never block the caller.
func (p *NATSPublisher) Publish(n session.Notification) {
	user := n.Snapshot.UserID
	if p.user != nil {
		if u := p.user(); u != "" {
			user = u
		}
	}

	data, err := json.Marshal(NewPayload(n, p.now()))
	if err != nil {
		p.logger.Error("encode notification", "err", err)
		return
	}
	subject := Subject(user, n.Kind)
	if err := p.pub.Publish(subject, data); err != nil {
		p.logger.Warn("publish notification", "subject", subject, "err", err)
	}
}
