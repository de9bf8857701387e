// Package domain implements the node operations the gateway dispatches to.
package domain

import (
	"context"

	"github.com/krist-node/gateway/internal/model"
)

// Service is the set of node operations the message dispatcher delegates to.
// Implementations return typed domain errors from the model package; the
// dispatcher renders those into ok:false response envelopes.
type Service interface {
	// Work returns the current mining difficulty.
	Work(ctx context.Context) (int, error)

	// MOTD returns the current message of the day.
	MOTD(ctx context.Context) (string, error)

	// MakeTransaction transfers amount from the address owning privateKey
	// to the recipient address.
	MakeTransaction(ctx context.Context, privateKey, to string, amount uint64, metadata string) (*model.Transaction, error)

	// Address looks up an address, optionally counting the names it owns.
	Address(ctx context.Context, address string, fetchNames bool) (*model.Address, error)

	// Login resolves a private key to its address, creating the address on
	// first use.
	Login(ctx context.Context, privateKey string) (*model.Address, error)
}
