package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/krist-node/gateway/internal/model"
)

// TransactionRepository provides data access for transactions and performs
// atomic balance transfers.
type TransactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Transfer moves amount from one address to another and records the
// transaction, all inside a single database transaction. The recipient row
// is created on first receipt, matching ledger semantics where sending to an
// unseen address brings it into existence.
func (r *TransactionRepository) Transfer(ctx context.Context, from, to string, amount uint64, metadata string) (*model.Transaction, error) {
	if amount == 0 {
		return nil, model.ErrInvalidAmount
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transfer: %w", err)
	}
	defer tx.Rollback()

	var balance uint64
	err = tx.QueryRowContext(ctx, `SELECT balance FROM addresses WHERE address = ?`, from).Scan(&balance)
	if err == sql.ErrNoRows {
		return nil, model.ErrAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sender balance: %w", err)
	}

	if balance < amount {
		return nil, model.ErrInsufficientFunds
	}

	now := time.Now()

	_, err = tx.ExecContext(ctx,
		`UPDATE addresses SET balance = balance - ?, total_out = total_out + ? WHERE address = ?`,
		amount, amount, from)
	if err != nil {
		return nil, fmt.Errorf("failed to debit sender: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO addresses (address, private_key_hash, balance, total_in, total_out, first_seen)
		VALUES (?, '', ?, ?, 0, ?)
		ON CONFLICT(address) DO UPDATE SET
			balance = balance + excluded.balance,
			total_in = total_in + excluded.total_in
	`, to, amount, amount, now)
	if err != nil {
		return nil, fmt.Errorf("failed to credit recipient: %w", err)
	}

	record := &model.Transaction{
		ID:       uuid.New().String(),
		From:     from,
		To:       to,
		Amount:   amount,
		Metadata: metadata,
		Time:     now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, from_address, to_address, amount, metadata, time)
		VALUES (?, ?, ?, ?, ?, ?)
	`, record.ID, record.From, record.To, record.Amount, record.Metadata, record.Time)
	if err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transfer: %w", err)
	}

	return record, nil
}

// GetByID retrieves a transaction by its ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*model.Transaction, error) {
	query := `
		SELECT id, from_address, to_address, amount, metadata, time
		FROM transactions
		WHERE id = ?
	`

	record := &model.Transaction{}
	var metadata sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID,
		&record.From,
		&record.To,
		&record.Amount,
		&metadata,
		&record.Time,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %s: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	if metadata.Valid {
		record.Metadata = metadata.String
	}

	return record, nil
}

// ListByAddress retrieves transactions involving an address, newest first.
func (r *TransactionRepository) ListByAddress(ctx context.Context, address string, limit int) ([]*model.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, from_address, to_address, amount, metadata, time
		FROM transactions
		WHERE from_address = ? OR to_address = ?
		ORDER BY time DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, address, address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var records []*model.Transaction
	for rows.Next() {
		record := &model.Transaction{}
		var metadata sql.NullString

		if err := rows.Scan(&record.ID, &record.From, &record.To, &record.Amount, &metadata, &record.Time); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if metadata.Valid {
			record.Metadata = metadata.String
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return records, nil
}
