package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/krist-node/gateway/internal/model"
)

// newGatewayServer starts an HTTP server exposing the upgrade endpoint the
// way the router does: the token is the final path segment.
func newGatewayServer(t *testing.T, handler *Handler) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.URL.Path, "/gateway/")
		handler.HandleConnection(w, r, token)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/gateway/" + token
}

func readMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) *ServerMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}

	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid frame %s: %v", data, err)
	}
	return &msg
}

func waitForSessionCount(t *testing.T, broker *Broker, want int, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if broker.SessionCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session count never reached %d, have %d", want, broker.SessionCount())
}

func TestConnectionLifecycle(t *testing.T) {
	broker := NewBroker()
	handler := NewHandler(broker, &stubDomain{work: 69420, motd: "hello there"})
	server := newGatewayServer(t, handler)

	token := broker.IssueToken(model.GuestCredentials())

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, token.String()), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// The server greets with hello and the MOTD
	hello := readMessage(t, conn, time.Second)
	if hello.Type != MessageTypeHello || hello.MOTD != "hello there" {
		t.Errorf("unexpected hello frame: %+v", hello)
	}

	waitForSessionCount(t, broker, 1, time.Second)

	// work round trip
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"work"}`)); err != nil {
		t.Fatalf("failed to send work: %v", err)
	}
	resp := readMessage(t, conn, time.Second)
	if resp.Type != MessageTypeResponse || resp.RespondingTo != MessageTypeWork {
		t.Errorf("unexpected response envelope: %+v", resp)
	}
	if resp.Work == nil || *resp.Work != 69420 {
		t.Errorf("expected work 69420, got %v", resp.Work)
	}

	// subscribe round trip on a fresh session
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe","event":"blocks"}`)); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}
	resp = readMessage(t, conn, time.Second)
	if len(resp.SubscriptionLevel) != 2 {
		t.Errorf("expected deduplicated default set, got %v", resp.SubscriptionLevel)
	}

	conn.Close()
	waitForSessionCount(t, broker, 0, 2*time.Second)
}

func TestMalformedTokenRejected(t *testing.T) {
	broker := NewBroker()
	handler := NewHandler(broker, &stubDomain{})
	server := newGatewayServer(t, handler)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "not-a-uuid"), nil)
	if err == nil {
		t.Fatal("expected dial to fail for malformed token")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %+v", resp)
	}
	if broker.SessionCount() != 0 {
		t.Error("no session may be created for a malformed token")
	}
}

func TestUnknownTokenRejected(t *testing.T) {
	broker := NewBroker()
	handler := NewHandler(broker, &stubDomain{})
	server := newGatewayServer(t, handler)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, uuid.New().String()), nil)
	if err == nil {
		t.Fatal("expected dial to fail for unknown token")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %+v", resp)
	}
	if broker.SessionCount() != 0 {
		t.Error("no session may be created for an unknown token")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	broker := NewBrokerWithTTL(20 * time.Millisecond)
	handler := NewHandler(broker, &stubDomain{})
	server := newGatewayServer(t, handler)

	token := broker.IssueToken(model.GuestCredentials())
	time.Sleep(40 * time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, token.String()), nil)
	if err == nil {
		t.Fatal("expected dial to fail for expired token")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %+v", resp)
	}
	if broker.SessionCount() != 0 {
		t.Error("no session may be created for an expired token")
	}
}

func TestTokenSingleUseAcrossConnections(t *testing.T) {
	broker := NewBroker()
	handler := NewHandler(broker, &stubDomain{})
	server := newGatewayServer(t, handler)

	token := broker.IssueToken(model.GuestCredentials())

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, token.String()), nil)
	if err != nil {
		t.Fatalf("first dial failed: %v", err)
	}
	defer conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, token.String()), nil)
	if err == nil {
		t.Fatal("expected second dial with the same token to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %+v", resp)
	}
}

func TestProtocolErrorDropsConnection(t *testing.T) {
	broker := NewBroker()
	handler := NewHandler(broker, &stubDomain{})
	server := newGatewayServer(t, handler)

	token := broker.IssueToken(model.GuestCredentials())
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, token.String()), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	waitForSessionCount(t, broker, 1, time.Second)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"no-such-kind"}`)); err != nil {
		t.Fatalf("failed to send frame: %v", err)
	}

	// The server drops the connection instead of continuing out of sync
	waitForSessionCount(t, broker, 0, 2*time.Second)
}

func TestHeartbeatTimeoutForcesClose(t *testing.T) {
	broker := NewBroker()
	handler := NewHandler(broker, &stubDomain{})
	handler.pingInterval = 20 * time.Millisecond
	handler.pongTimeout = 60 * time.Millisecond
	server := newGatewayServer(t, handler)

	token := broker.IssueToken(model.GuestCredentials())
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, token.String()), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// Swallow pings so the server never sees a pong
	conn.SetPingHandler(func(string) error { return nil })

	waitForSessionCount(t, broker, 1, time.Second)

	// Keep reading so control frames are processed until the server closes
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	waitForSessionCount(t, broker, 0, 3*time.Second)
}

func TestHeartbeatKeepsRespondingConnectionAlive(t *testing.T) {
	broker := NewBroker()
	handler := NewHandler(broker, &stubDomain{})
	handler.pingInterval = 20 * time.Millisecond
	handler.pongTimeout = 60 * time.Millisecond
	server := newGatewayServer(t, handler)

	token := broker.IssueToken(model.GuestCredentials())
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, token.String()), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// The default ping handler answers with pongs while the reader runs
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	waitForSessionCount(t, broker, 1, time.Second)

	// Stay connected well past several pong windows
	time.Sleep(300 * time.Millisecond)

	if broker.SessionCount() != 1 {
		t.Errorf("responding connection was dropped, session count %d", broker.SessionCount())
	}

	conn.Close()
	<-done
}
