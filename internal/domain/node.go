package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/krist-node/gateway/internal/model"
	"github.com/krist-node/gateway/internal/repository"
)

// defaultWork is the initial mining difficulty.
const defaultWork = 69420

// defaultMOTD is served until an operator sets a different message.
const defaultMOTD = "Welcome to the gateway"

// Node is the repository-backed Service implementation.
type Node struct {
	addresses    *repository.AddressRepository
	transactions *repository.TransactionRepository

	work int64

	mu   sync.RWMutex
	motd string
}

// NewNode creates a Node backed by the given repositories.
func NewNode(addresses *repository.AddressRepository, transactions *repository.TransactionRepository) *Node {
	n := &Node{
		addresses:    addresses,
		transactions: transactions,
		motd:         defaultMOTD,
	}
	atomic.StoreInt64(&n.work, defaultWork)
	return n
}

// Work returns the current mining difficulty.
func (n *Node) Work(ctx context.Context) (int, error) {
	return int(atomic.LoadInt64(&n.work)), nil
}

// SetWork updates the current mining difficulty.
func (n *Node) SetWork(work int) {
	atomic.StoreInt64(&n.work, int64(work))
}

// MOTD returns the current message of the day.
func (n *Node) MOTD(ctx context.Context) (string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.motd, nil
}

// SetMOTD updates the message of the day.
func (n *Node) SetMOTD(motd string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.motd = motd
}

// MakeTransaction transfers amount from the address owning privateKey to the
// recipient. The sender must already exist; an unknown key is rejected
// rather than implicitly creating an empty sender.
func (n *Node) MakeTransaction(ctx context.Context, privateKey, to string, amount uint64, metadata string) (*model.Transaction, error) {
	if privateKey == "" {
		return nil, model.ErrInvalidPrivateKey
	}

	sender, err := n.addresses.GetByPrivateKeyHash(ctx, hashPrivateKey(privateKey))
	if err == model.ErrAddressNotFound {
		return nil, model.ErrInvalidPrivateKey
	}
	if err != nil {
		return nil, err
	}

	return n.transactions.Transfer(ctx, sender.Address, to, amount, metadata)
}

// Address looks up an address, optionally counting the names it owns.
func (n *Node) Address(ctx context.Context, address string, fetchNames bool) (*model.Address, error) {
	addr, err := n.addresses.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}

	if fetchNames {
		count, err := n.addresses.CountNames(ctx, address)
		if err != nil {
			return nil, err
		}
		addr.NamesOwned = &count
	}

	return addr, nil
}

// Login resolves a private key to its address. The address is derived
// deterministically from the key and created on first login.
func (n *Node) Login(ctx context.Context, privateKey string) (*model.Address, error) {
	if privateKey == "" {
		return nil, model.ErrInvalidPrivateKey
	}

	hash := hashPrivateKey(privateKey)

	addr, err := n.addresses.GetByPrivateKeyHash(ctx, hash)
	if err == nil {
		return addr, nil
	}
	if err != model.ErrAddressNotFound {
		return nil, err
	}

	derived := DeriveAddress(privateKey)
	if err := n.addresses.Create(ctx, derived, hash, 0); err != nil {
		return nil, fmt.Errorf("failed to create address on first login: %w", err)
	}

	return n.addresses.GetByAddress(ctx, derived)
}

// DeriveAddress maps a private key to its address. The derivation is a
// fixed function of the key so the same key always yields the same address.
func DeriveAddress(privateKey string) string {
	sum := sha256.Sum256([]byte("address:" + privateKey))
	return "k" + hex.EncodeToString(sum[:])[:9]
}

func hashPrivateKey(privateKey string) string {
	sum := sha256.Sum256([]byte(privateKey))
	return hex.EncodeToString(sum[:])
}
