package model

import "errors"

var (
	// ErrTokenNotFound is returned when a connection token was never issued,
	// already redeemed, or expired.
	ErrTokenNotFound = errors.New("token not found")

	// ErrUnknownTopic is returned when a subscription topic string is not in
	// the valid set.
	ErrUnknownTopic = errors.New("unknown topic")

	// ErrSessionNotFound is returned when a connection ID has no live session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAddressNotFound is returned when an address does not exist.
	ErrAddressNotFound = errors.New("address not found")

	// ErrInvalidPrivateKey is returned when a private key resolves to no
	// known address.
	ErrInvalidPrivateKey = errors.New("invalid private key")

	// ErrInsufficientFunds is returned when a transaction exceeds the
	// sender's balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount is returned when a transaction amount is not positive.
	ErrInvalidAmount = errors.New("amount must be positive")
)
