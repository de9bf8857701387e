package gateway

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/krist-node/gateway/internal/model"
)

// ErrClientClosed is returned when sending to a closed outbound handle.
var ErrClientClosed = errors.New("client closed")

// Client is the outbound handle for one connection. Frames queued with Send
// are drained by the connection's write pump; the handle is usable exactly
// as long as its session entry exists in the registry.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// NewClient creates an outbound handle over a WebSocket connection.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// Send queues a frame for delivery. A closed handle or a full buffer is a
// broken connection: the handle is closed and an error returned so the
// caller can drop this recipient without affecting others.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		// Buffer full, the peer is not draining
		c.closeLocked()
		return ErrClientClosed
	}
}

// Close closes the outbound handle.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the handle is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Conn returns the underlying WebSocket connection, nil for test handles.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the frame queue drained by the write pump.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// DefaultSubscriptions is the topic set every new session starts with.
var DefaultSubscriptions = []model.Topic{model.TopicOwnTransactions, model.TopicBlocks}

// Session is the server-side record of one live connection: its identity,
// outbound handle, and subscribed topics. Identity and subscriptions are
// guarded per session so mutations on different connections never block
// each other.
type Session struct {
	client *Client

	mu         sync.RWMutex
	address    string
	privateKey *string
	subscribed map[model.Topic]struct{}
}

// NewSession creates a session for redeemed credentials with the default
// subscription set.
func NewSession(credentials model.Credentials, client *Client) *Session {
	subscribed := make(map[model.Topic]struct{}, len(DefaultSubscriptions))
	for _, topic := range DefaultSubscriptions {
		subscribed[topic] = struct{}{}
	}

	return &Session{
		client:     client,
		address:    credentials.Address,
		privateKey: credentials.PrivateKey,
		subscribed: subscribed,
	}
}

// Client returns the session's outbound handle.
func (s *Session) Client() *Client {
	return s.client
}

// Address returns the session's current identity.
func (s *Session) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// IsGuest reports whether the session is anonymous.
func (s *Session) IsGuest() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.privateKey == nil
}

// SetIdentity switches the session to an authenticated identity.
func (s *Session) SetIdentity(address, privateKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = address
	s.privateKey = &privateKey
}

// SetGuest reverts the session to the anonymous identity.
func (s *Session) SetGuest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = model.GuestAddress
	s.privateKey = nil
}

// Subscribe adds a topic to the session's set. Subscribing twice has the
// effect of once.
func (s *Session) Subscribe(topic model.Topic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed[topic] = struct{}{}
}

// Unsubscribe removes a topic from the session's set; absent topics are a
// no-op.
func (s *Session) Unsubscribe(topic model.Topic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribed, topic)
}

// Subscribed reports whether the session subscribes to a topic.
func (s *Session) Subscribed(topic model.Topic) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subscribed[topic]
	return ok
}

// Subscriptions returns a snapshot of the subscribed topics in canonical
// order.
func (s *Session) Subscriptions() []model.Topic {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Topic, 0, len(s.subscribed))
	for _, topic := range model.AllTopics {
		if _, ok := s.subscribed[topic]; ok {
			out = append(out, topic)
		}
	}
	return out
}
