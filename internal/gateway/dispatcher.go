package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/krist-node/gateway/internal/domain"
	"github.com/krist-node/gateway/internal/model"
)

// Dispatcher turns decoded client messages into broker state mutations and
// response envelopes. Errors it returns mean the connection is no longer
// trustworthy and must be dropped; recoverable failures come back as
// ok:false responses instead.
type Dispatcher struct {
	broker *Broker
	domain domain.Service
}

// NewDispatcher creates a Dispatcher over a broker and a domain service.
func NewDispatcher(broker *Broker, svc domain.Service) *Dispatcher {
	return &Dispatcher{
		broker: broker,
		domain: svc,
	}
}

// Dispatch handles one inbound frame for a connection. The returned message
// is nil when the frame warrants no reply.
func (d *Dispatcher) Dispatch(ctx context.Context, connID uuid.UUID, session *Session, frame []byte) (*ServerMessage, error) {
	msg, err := DecodeClientMessage(frame)
	if err != nil {
		return nil, err
	}

	switch msg.Type {
	case MessageTypeWork:
		return d.handleWork(ctx, msg)
	case MessageTypeSubscribe:
		return d.handleSubscribe(connID, msg)
	case MessageTypeUnsubscribe:
		return d.handleUnsubscribe(connID, msg)
	case MessageTypeMakeTransaction:
		return d.handleMakeTransaction(ctx, msg)
	case MessageTypeGetValidSubscriptionLevels:
		resp := newResponse(msg, true)
		resp.ValidSubscriptionLevels = model.TopicStrings(model.AllTopics)
		return resp, nil
	case MessageTypeAddress:
		return d.handleAddress(ctx, msg)
	case MessageTypeMe:
		return d.handleMe(ctx, session, msg)
	case MessageTypeGetSubscriptionLevel:
		resp := newResponse(msg, true)
		resp.SubscriptionLevel = model.TopicStrings(session.Subscriptions())
		return resp, nil
	case MessageTypeLogout:
		session.SetGuest()
		resp := newResponse(msg, true)
		resp.IsGuest = boolPtr(true)
		return resp, nil
	case MessageTypeLogin:
		return d.handleLogin(ctx, session, msg)
	case MessageTypeHello, MessageTypeKeepalive, MessageTypeResponse:
		// Server-to-client kinds; a client sending one is out of line but
		// harmless. Ignore without replying.
		log.Printf("Ignoring server-only message kind %q from client", msg.Type)
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func (d *Dispatcher) handleWork(ctx context.Context, msg *ClientMessage) (*ServerMessage, error) {
	work, err := d.domain.Work(ctx)
	if err != nil {
		return domainFailure(msg, err), nil
	}

	resp := newResponse(msg, true)
	resp.Work = intPtr(work)
	return resp, nil
}

func (d *Dispatcher) handleSubscribe(connID uuid.UUID, msg *ClientMessage) (*ServerMessage, error) {
	topic, err := model.ParseTopic(msg.Event)
	if err != nil {
		resp := newResponse(msg, false)
		resp.Error = "invalid subscription level"
		return resp, nil
	}

	d.broker.Subscribe(connID, topic)

	resp := newResponse(msg, true)
	resp.SubscriptionLevel = model.TopicStrings(d.broker.Subscriptions(connID))
	return resp, nil
}

func (d *Dispatcher) handleUnsubscribe(connID uuid.UUID, msg *ClientMessage) (*ServerMessage, error) {
	topic, err := model.ParseTopic(msg.Event)
	if err != nil {
		resp := newResponse(msg, false)
		resp.Error = "invalid subscription level"
		return resp, nil
	}

	d.broker.Unsubscribe(connID, topic)

	resp := newResponse(msg, true)
	resp.SubscriptionLevel = model.TopicStrings(d.broker.Subscriptions(connID))
	return resp, nil
}

func (d *Dispatcher) handleMakeTransaction(ctx context.Context, msg *ClientMessage) (*ServerMessage, error) {
	tx, err := d.domain.MakeTransaction(ctx, msg.PrivateKey, msg.To, msg.Amount, msg.Metadata)
	if err != nil {
		return domainFailure(msg, err), nil
	}

	d.broker.PublishTransaction(tx)

	resp := newResponse(msg, true)
	resp.Transaction = tx
	return resp, nil
}

func (d *Dispatcher) handleAddress(ctx context.Context, msg *ClientMessage) (*ServerMessage, error) {
	fetchNames := msg.FetchNames != nil && *msg.FetchNames

	addr, err := d.domain.Address(ctx, msg.Address, fetchNames)
	if err != nil {
		return domainFailure(msg, err), nil
	}

	resp := newResponse(msg, true)
	resp.Address = addr
	return resp, nil
}

func (d *Dispatcher) handleMe(ctx context.Context, session *Session, msg *ClientMessage) (*ServerMessage, error) {
	resp := newResponse(msg, true)

	if session.IsGuest() {
		resp.IsGuest = boolPtr(true)
		return resp, nil
	}

	resp.IsGuest = boolPtr(false)
	addr, err := d.domain.Address(ctx, session.Address(), false)
	if err != nil {
		return domainFailure(msg, err), nil
	}
	resp.Address = addr
	return resp, nil
}

func (d *Dispatcher) handleLogin(ctx context.Context, session *Session, msg *ClientMessage) (*ServerMessage, error) {
	addr, err := d.domain.Login(ctx, msg.PrivateKey)
	if err != nil {
		return domainFailure(msg, err), nil
	}

	session.SetIdentity(addr.Address, msg.PrivateKey)

	resp := newResponse(msg, true)
	resp.IsGuest = boolPtr(false)
	resp.Address = addr
	return resp, nil
}

// domainFailure renders a domain error into an ok:false response on the same
// exchange; the connection stays open.
func domainFailure(msg *ClientMessage, err error) *ServerMessage {
	resp := newResponse(msg, false)
	resp.Error = err.Error()
	if errors.Is(err, model.ErrAddressNotFound) {
		resp.Error = "address not found"
	}
	return resp
}
