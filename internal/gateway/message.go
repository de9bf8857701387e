package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/krist-node/gateway/internal/model"
)

// MessageType discriminates the kinds of messages on the wire.
type MessageType string

const (
	// Client -> Server message types
	MessageTypeWork                       MessageType = "work"
	MessageTypeMakeTransaction            MessageType = "make_transaction"
	MessageTypeGetValidSubscriptionLevels MessageType = "get_valid_subscription_levels"
	MessageTypeAddress                    MessageType = "address"
	MessageTypeMe                         MessageType = "me"
	MessageTypeGetSubscriptionLevel       MessageType = "get_subscription_level"
	MessageTypeLogout                     MessageType = "logout"
	MessageTypeLogin                      MessageType = "login"
	MessageTypeSubscribe                  MessageType = "subscribe"
	MessageTypeUnsubscribe                MessageType = "unsubscribe"

	// Server -> Client message types
	MessageTypeHello     MessageType = "hello"
	MessageTypeKeepalive MessageType = "keepalive"
	MessageTypeResponse  MessageType = "response"
	MessageTypeEvent     MessageType = "event"
)

// ClientMessage is the decoded form of an inbound text frame.
type ClientMessage struct {
	ID   *int        `json:"id,omitempty"`
	Type MessageType `json:"type"`

	// subscribe / unsubscribe
	Event string `json:"event,omitempty"`

	// make_transaction / login
	PrivateKey string `json:"privatekey,omitempty"`
	To         string `json:"to,omitempty"`
	Amount     uint64 `json:"amount,omitempty"`
	Metadata   string `json:"metadata,omitempty"`

	// address
	Address    string `json:"address,omitempty"`
	FetchNames *bool  `json:"fetchNames,omitempty"`
}

// DecodeClientMessage parses an inbound frame. A frame that is not valid
// JSON or carries no type tag is a protocol error; the caller is expected to
// drop the connection.
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("frame missing type tag")
	}
	return &msg, nil
}

// ServerMessage is an outbound message. Response payload fields are
// flattened into the envelope; omitempty keeps each kind's frame minimal.
type ServerMessage struct {
	OK           *bool       `json:"ok,omitempty"`
	ID           *int        `json:"id,omitempty"`
	Type         MessageType `json:"type"`
	RespondingTo MessageType `json:"responding_to,omitempty"`
	Error        string      `json:"error,omitempty"`

	// hello
	MOTD string `json:"motd,omitempty"`

	// keepalive
	ServerTime string `json:"server_time,omitempty"`

	// response payloads
	Work                    *int               `json:"work,omitempty"`
	Transaction             *model.Transaction `json:"transaction,omitempty"`
	ValidSubscriptionLevels []string           `json:"valid_subscription_levels,omitempty"`
	SubscriptionLevel       []string           `json:"subscription_level,omitempty"`
	Address                 *model.Address     `json:"address,omitempty"`
	IsGuest                 *bool              `json:"is_guest,omitempty"`

	// event payloads (topic-filtered publishes)
	Event string `json:"event,omitempty"`
}

// Encode marshals the message to its wire form.
func (m *ServerMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// newResponse builds a response envelope correlated to an inbound message.
func newResponse(req *ClientMessage, ok bool) *ServerMessage {
	return &ServerMessage{
		OK:           boolPtr(ok),
		ID:           req.ID,
		Type:         MessageTypeResponse,
		RespondingTo: req.Type,
	}
}

func boolPtr(b bool) *bool { return &b }

func intPtr(i int) *int { return &i }
