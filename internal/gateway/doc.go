// Package gateway implements the WebSocket gateway core: the one-time
// connection token store, the live session registry with per-session topic
// subscriptions, subscription-filtered event fan-out, the per-connection
// heartbeat monitor, and the inbound message dispatcher.
//
// The gateway owns no business logic. Node operations behind messages such
// as make_transaction or address are delegated to a domain.Service.
package gateway
