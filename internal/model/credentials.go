package model

// GuestAddress is the reserved identity for sessions without a private key.
const GuestAddress = "guest"

// Credentials carries the identity a connection will assume once its token
// is redeemed. PrivateKey is nil for guest connections.
type Credentials struct {
	Address    string
	PrivateKey *string
}

// GuestCredentials returns the credentials for an anonymous connection.
func GuestCredentials() Credentials {
	return Credentials{Address: GuestAddress}
}

// IsGuest reports whether the credentials carry no private key.
func (c Credentials) IsGuest() bool {
	return c.PrivateKey == nil
}
