// Package handlers provides HTTP API request handlers.
package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/krist-node/gateway/internal/domain"
	"github.com/krist-node/gateway/internal/gateway"
	"github.com/krist-node/gateway/internal/model"
)

// tokenExpirySeconds is advertised to clients in the handshake response.
const tokenExpirySeconds = 30

// HandshakeHandler issues connection tokens and serves the WebSocket
// upgrade endpoint.
type HandshakeHandler struct {
	broker    *gateway.Broker
	wsHandler *gateway.Handler
	baseURL   string
}

// NewHandshakeHandler creates a HandshakeHandler. baseURL is the externally
// visible ws:// or wss:// prefix embedded in handshake responses.
func NewHandshakeHandler(broker *gateway.Broker, svc domain.Service, baseURL string) *HandshakeHandler {
	return &HandshakeHandler{
		broker:    broker,
		wsHandler: gateway.NewHandler(broker, svc),
		baseURL:   baseURL,
	}
}

// StartRequest is the optional handshake request body.
type StartRequest struct {
	PrivateKey string `json:"privatekey"`
}

// StartResponse tells the client where to connect and how long the token
// lasts.
type StartResponse struct {
	OK      bool   `json:"ok"`
	URL     string `json:"url"`
	Expires int    `json:"expires"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, ErrorResponse{OK: false, Error: message})
}

// Start handles POST /ws/start - issues a one-time connection token.
// The private key, when present, travels only over this call; the upgrade
// URL carries nothing but the opaque token.
func (h *HandshakeHandler) Start(c *gin.Context) {
	credentials := model.GuestCredentials()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		sendError(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	if len(body) > 0 {
		var req StartRequest
		if err := json.Unmarshal(body, &req); err != nil {
			sendError(c, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.PrivateKey != "" {
			key := req.PrivateKey
			credentials = model.Credentials{
				Address:    domain.DeriveAddress(key),
				PrivateKey: &key,
			}
		}
	}

	token := h.broker.IssueToken(credentials)

	c.JSON(http.StatusOK, StartResponse{
		OK:      true,
		URL:     fmt.Sprintf("%s/gateway/%s", h.baseURL, token),
		Expires: tokenExpirySeconds,
	})
}

// Gateway handles GET /gateway/:token - redeems the token and upgrades the
// connection. Rejections happen inside the gateway handler before any
// session is created.
func (h *HandshakeHandler) Gateway(c *gin.Context) {
	token := c.Param("token")
	if err := h.wsHandler.HandleConnection(c.Writer, c.Request, token); err != nil {
		// Upgrade failure; response already written by the upgrader
		return
	}
}

// BroadcastRequest is an arbitrary JSON document pushed to all sessions.
type BroadcastRequest map[string]any

// Broadcast handles POST /api/broadcast - fans a JSON document out to every
// connected session.
func (h *HandshakeHandler) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	data, err := json.Marshal(req)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "failed to marshal payload")
		return
	}

	h.broker.Broadcast(data)

	c.JSON(http.StatusOK, gin.H{"ok": true, "sessions": h.broker.SessionCount()})
}

// RegisterRoutes registers the handshake and gateway routes.
func (h *HandshakeHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/ws/start", h.Start)
	r.GET("/gateway/:token", h.Gateway)
}

// RegisterAPIRoutes registers the management routes on a router group.
func (h *HandshakeHandler) RegisterAPIRoutes(rg *gin.RouterGroup) {
	rg.POST("/broadcast", h.Broadcast)
}
