package gateway

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/krist-node/gateway/internal/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to the peer with this period.
	defaultPingInterval = 5 * time.Second

	// Close the connection when no pong arrived within this window.
	defaultPongTimeout = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Tokens are single-use and short-lived; the upgrade URL itself is
		// the credential, so cross-origin upgrades are allowed.
		return true
	},
}

// pongTracker is the last-pong timestamp shared between the read path
// (which records pongs) and the heartbeat ticker (which checks them).
type pongTracker struct {
	mu   sync.Mutex
	last time.Time
}

func newPongTracker() *pongTracker {
	return &pongTracker{last: time.Now()}
}

func (p *pongTracker) touch() {
	p.mu.Lock()
	p.last = time.Now()
	p.mu.Unlock()
}

func (p *pongTracker) sinceLast() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.last)
}

// Handler redeems connection tokens, registers sessions, and runs the
// per-connection read and write pumps.
type Handler struct {
	broker     *Broker
	dispatcher *Dispatcher
	domain     domain.Service

	pingInterval time.Duration
	pongTimeout  time.Duration
}

// NewHandler creates a connection handler over a broker and domain service.
func NewHandler(broker *Broker, svc domain.Service) *Handler {
	return &Handler{
		broker:       broker,
		dispatcher:   NewDispatcher(broker, svc),
		domain:       svc,
		pingInterval: defaultPingInterval,
		pongTimeout:  defaultPongTimeout,
	}
}

// HandleConnection redeems the token, upgrades the connection, registers a
// session, and serves the connection until it closes or times out. A
// malformed token is rejected before any session state is touched; an
// unknown or expired token rejects the upgrade outright, never falling back
// to a guest session.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, token string) error {
	tokenID, err := uuid.Parse(token)
	if err != nil {
		http.Error(w, "Malformed token", http.StatusBadRequest)
		return nil
	}

	credentials, err := h.broker.RedeemToken(tokenID)
	if err != nil {
		http.Error(w, "Token not found", http.StatusNotFound)
		return nil
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	// Connection IDs are fresh per connection; the token ID is never reused.
	connID := uuid.New()

	client := NewClient(conn)
	session := NewSession(credentials, client)
	h.broker.Register(connID, session)

	log.Printf("Session %s registered (address: %s)", connID, credentials.Address)

	tracker := newPongTracker()
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		tracker.touch()
		return nil
	})

	h.sendHello(r.Context(), client)

	go h.writePump(client, conn, tracker)
	h.readPump(connID, session, conn)

	return nil
}

// sendHello pushes the hello frame with the message of the day.
func (h *Handler) sendHello(ctx context.Context, client *Client) {
	motd, err := h.domain.MOTD(ctx)
	if err != nil {
		log.Printf("Failed to fetch MOTD: %v", err)
		return
	}

	msg := &ServerMessage{
		OK:   boolPtr(true),
		Type: MessageTypeHello,
		MOTD: motd,
	}
	data, err := msg.Encode()
	if err != nil {
		log.Printf("Failed to marshal hello message: %v", err)
		return
	}

	if err := client.Send(data); err != nil {
		log.Printf("Failed to queue hello message: %v", err)
	}
}

// readPump pumps inbound frames through the dispatcher until the connection
// dies or a protocol error forces a drop. Cleanup here is the single exit
// path for registry removal.
func (h *Handler) readPump(connID uuid.UUID, session *Session, conn *websocket.Conn) {
	defer func() {
		h.broker.Remove(connID)
		conn.Close()
		log.Printf("Session %s removed", connID)
	}()

	for {
		messageType, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		// Binary frames are ignored
		if messageType != websocket.TextMessage {
			continue
		}

		reply, err := h.dispatcher.Dispatch(context.Background(), connID, session, frame)
		if err != nil {
			// Continuing after a protocol error risks state desync with the
			// client, so the connection is dropped.
			log.Printf("Protocol error on session %s: %v", connID, err)
			return
		}

		if reply == nil {
			continue
		}

		data, err := reply.Encode()
		if err != nil {
			log.Printf("Failed to marshal response: %v", err)
			continue
		}
		if err := session.Client().Send(data); err != nil {
			return
		}
	}
}

// writePump drains the outbound queue and runs the heartbeat: ping on every
// tick, force-close when the pong window is exceeded or a ping fails.
func (h *Handler) writePump(client *Client, conn *websocket.Conn, tracker *pongTracker) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The session was removed from the registry
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Drain queued frames, one WebSocket frame each
			n := len(client.SendChan())
			for i := 0; i < n; i++ {
				queued := <-client.SendChan()
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}
		case <-ticker.C:
			if tracker.sinceLast() > h.pongTimeout {
				log.Printf("Heartbeat timeout, closing connection")
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "heartbeat timeout"))
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
