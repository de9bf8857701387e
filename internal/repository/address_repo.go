// Package repository provides data access for the node's ledger state.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/krist-node/gateway/internal/model"
)

// AddressRepository provides data access for ledger addresses.
type AddressRepository struct {
	db *sql.DB
}

// NewAddressRepository creates a new AddressRepository.
func NewAddressRepository(db *sql.DB) *AddressRepository {
	return &AddressRepository{db: db}
}

// Create inserts a new address with an initial balance.
func (r *AddressRepository) Create(ctx context.Context, address, privateKeyHash string, balance uint64) error {
	query := `
		INSERT INTO addresses (address, private_key_hash, balance, total_in, total_out, first_seen)
		VALUES (?, ?, ?, ?, 0, ?)
	`

	_, err := r.db.ExecContext(ctx, query, address, privateKeyHash, balance, balance, time.Now())
	if err != nil {
		return fmt.Errorf("failed to create address: %w", err)
	}

	return nil
}

// GetByAddress retrieves an address by its identifier.
func (r *AddressRepository) GetByAddress(ctx context.Context, address string) (*model.Address, error) {
	query := `
		SELECT address, balance, total_in, total_out, first_seen
		FROM addresses
		WHERE address = ?
	`

	addr := &model.Address{}
	err := r.db.QueryRowContext(ctx, query, address).Scan(
		&addr.Address,
		&addr.Balance,
		&addr.TotalIn,
		&addr.TotalOut,
		&addr.FirstSeen,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get address: %w", err)
	}

	return addr, nil
}

// GetByPrivateKeyHash retrieves the address owned by a private key hash.
func (r *AddressRepository) GetByPrivateKeyHash(ctx context.Context, hash string) (*model.Address, error) {
	query := `
		SELECT address, balance, total_in, total_out, first_seen
		FROM addresses
		WHERE private_key_hash = ?
	`

	addr := &model.Address{}
	err := r.db.QueryRowContext(ctx, query, hash).Scan(
		&addr.Address,
		&addr.Balance,
		&addr.TotalIn,
		&addr.TotalOut,
		&addr.FirstSeen,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get address by key: %w", err)
	}

	return addr, nil
}

// CountNames returns the number of names owned by an address.
func (r *AddressRepository) CountNames(ctx context.Context, address string) (int, error) {
	query := `SELECT COUNT(*) FROM names WHERE owner = ?`

	var count int
	if err := r.db.QueryRowContext(ctx, query, address).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count names: %w", err)
	}

	return count, nil
}

// RegisterName records ownership of a name by an address.
func (r *AddressRepository) RegisterName(ctx context.Context, name, owner string) error {
	query := `INSERT INTO names (name, owner, registered) VALUES (?, ?, ?)`

	if _, err := r.db.ExecContext(ctx, query, name, owner, time.Now()); err != nil {
		return fmt.Errorf("failed to register name: %w", err)
	}

	return nil
}
