package gateway

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/krist-node/gateway/internal/model"
)

// KeepaliveInterval is how often the broker pushes keepalive frames.
const KeepaliveInterval = 10 * time.Second

// Broker is the single authority over connection tokens and live sessions.
// All shared state is reached through its operations; the underlying maps
// are never handed out.
type Broker struct {
	tokens *TokenStore

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewBroker creates a Broker with an empty registry and a token store using
// the default TTL.
func NewBroker() *Broker {
	return NewBrokerWithTTL(TokenTTL)
}

// NewBrokerWithTTL creates a Broker whose tokens expire after ttl.
func NewBrokerWithTTL(ttl time.Duration) *Broker {
	return &Broker{
		tokens:   NewTokenStore(ttl),
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Tokens returns the broker's token store.
func (b *Broker) Tokens() *TokenStore {
	return b.tokens
}

// IssueToken issues a one-time connection token for the credentials.
func (b *Broker) IssueToken(credentials model.Credentials) uuid.UUID {
	return b.tokens.Issue(credentials)
}

// RedeemToken redeems a token exactly once, returning its credentials.
func (b *Broker) RedeemToken(token uuid.UUID) (model.Credentials, error) {
	return b.tokens.Redeem(token)
}

// Register inserts a session under a fresh connection ID.
func (b *Broker) Register(connID uuid.UUID, session *Session) {
	b.mu.Lock()
	b.sessions[connID] = session
	b.mu.Unlock()
}

// Remove deletes a session if present. Safe to call more than once; each
// cleanup path may fire independently.
func (b *Broker) Remove(connID uuid.UUID) {
	b.mu.Lock()
	session, ok := b.sessions[connID]
	delete(b.sessions, connID)
	b.mu.Unlock()

	if ok {
		session.Client().Close()
	}
}

// Get returns the session for a connection ID, or nil.
func (b *Broker) Get(connID uuid.UUID) *Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sessions[connID]
}

// SessionCount returns the number of live sessions.
func (b *Broker) SessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Subscribe adds a topic to a session's set. A connection that already
// closed is a no-op, never an error for the caller.
func (b *Broker) Subscribe(connID uuid.UUID, topic model.Topic) {
	if session := b.Get(connID); session != nil {
		session.Subscribe(topic)
	}
}

// Unsubscribe removes a topic from a session's set; no-op when the session
// or topic is absent.
func (b *Broker) Unsubscribe(connID uuid.UUID, topic model.Topic) {
	if session := b.Get(connID); session != nil {
		session.Unsubscribe(topic)
	}
}

// Subscriptions returns a snapshot of a session's topics, empty when the
// session is gone.
func (b *Broker) Subscriptions(connID uuid.UUID) []model.Topic {
	session := b.Get(connID)
	if session == nil {
		return nil
	}
	return session.Subscriptions()
}

// snapshot copies the current session list so fan-out never holds the
// registry lock while sending.
func (b *Broker) snapshot() []*Session {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sessions := make([]*Session, 0, len(b.sessions))
	for _, session := range b.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// Broadcast delivers a frame to every registered session regardless of
// subscriptions. A broken recipient is logged and skipped; it never aborts
// delivery to the rest and never surfaces to the broadcaster.
func (b *Broker) Broadcast(data []byte) {
	for _, session := range b.snapshot() {
		if err := session.Client().Send(data); err != nil {
			log.Printf("Dropping frame for closed session (%s)", session.Address())
		}
	}
}

// BroadcastMessage marshals and broadcasts a server message.
func (b *Broker) BroadcastMessage(msg *ServerMessage) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	b.Broadcast(data)
	return nil
}

// Publish delivers a frame to sessions subscribed to topic.
func (b *Broker) Publish(topic model.Topic, data []byte) {
	for _, session := range b.snapshot() {
		if !session.Subscribed(topic) {
			continue
		}
		if err := session.Client().Send(data); err != nil {
			log.Printf("Dropping frame for closed session (%s)", session.Address())
		}
	}
}

// PublishOwn delivers a frame to sessions subscribed to topic whose
// identity matches one of the given addresses.
func (b *Broker) PublishOwn(topic model.Topic, data []byte, addresses ...string) {
	for _, session := range b.snapshot() {
		if !session.Subscribed(topic) {
			continue
		}
		if !matchesAddress(session.Address(), addresses) {
			continue
		}
		if err := session.Client().Send(data); err != nil {
			log.Printf("Dropping frame for closed session (%s)", session.Address())
		}
	}
}

func matchesAddress(address string, addresses []string) bool {
	for _, a := range addresses {
		if a == address {
			return true
		}
	}
	return false
}

// PublishTransaction pushes a completed transaction to transactions
// subscribers and to ownTransactions subscribers on either side of the
// transfer.
func (b *Broker) PublishTransaction(tx *model.Transaction) {
	msg := &ServerMessage{
		Type:        MessageTypeEvent,
		Event:       model.TopicTransactions.String(),
		Transaction: tx,
	}
	data, err := msg.Encode()
	if err != nil {
		log.Printf("Failed to marshal transaction event: %v", err)
		return
	}

	b.Publish(model.TopicTransactions, data)
	b.PublishOwn(model.TopicOwnTransactions, data, tx.From, tx.To)
}

// RunKeepalive broadcasts keepalive frames on an interval until ctx is
// cancelled.
func (b *Broker) RunKeepalive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := &ServerMessage{
				Type:       MessageTypeKeepalive,
				ServerTime: time.Now().UTC().Format(time.RFC3339),
			}
			if err := b.BroadcastMessage(msg); err != nil {
				log.Printf("Failed to broadcast keepalive: %v", err)
			}
		}
	}
}

// Close closes every session's outbound handle and empties the registry.
func (b *Broker) Close() {
	b.mu.Lock()
	sessions := make([]*Session, 0, len(b.sessions))
	for _, session := range b.sessions {
		sessions = append(sessions, session)
	}
	b.sessions = make(map[uuid.UUID]*Session)
	b.mu.Unlock()

	for _, session := range sessions {
		session.Client().Close()
	}
}
