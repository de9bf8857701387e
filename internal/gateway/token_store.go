package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/krist-node/gateway/internal/model"
)

// TokenTTL is how long an issued connection token stays redeemable.
const TokenTTL = 30 * time.Second

type pendingToken struct {
	credentials model.Credentials
	issuedAt    time.Time
}

// TokenStore maps opaque one-time tokens to pending connection credentials.
// Expiry is checked lazily at redemption time, so no timer is spawned per
// token; a background sweep reclaims entries that were never redeemed.
type TokenStore struct {
	ttl time.Duration

	mu      sync.Mutex
	pending map[uuid.UUID]pendingToken
}

// NewTokenStore creates a TokenStore with the given TTL.
func NewTokenStore(ttl time.Duration) *TokenStore {
	return &TokenStore{
		ttl:     ttl,
		pending: make(map[uuid.UUID]pendingToken),
	}
}

// Issue stores credentials under a fresh token and returns the token.
func (s *TokenStore) Issue(credentials model.Credentials) uuid.UUID {
	token := uuid.New()

	s.mu.Lock()
	s.pending[token] = pendingToken{credentials: credentials, issuedAt: time.Now()}
	s.mu.Unlock()

	return token
}

// Redeem atomically removes and returns the credentials for a token.
// A token that was never issued, already redeemed, or past its TTL yields
// model.ErrTokenNotFound; concurrent redemptions of the same token succeed
// at most once.
func (s *TokenStore) Redeem(token uuid.UUID) (model.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[token]
	if !ok {
		return model.Credentials{}, model.ErrTokenNotFound
	}

	delete(s.pending, token)

	if time.Since(entry.issuedAt) > s.ttl {
		return model.Credentials{}, model.ErrTokenNotFound
	}

	return entry.credentials, nil
}

// Sweep removes tokens past their TTL and returns how many were removed.
func (s *TokenStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, entry := range s.pending {
		if time.Since(entry.issuedAt) > s.ttl {
			delete(s.pending, token)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps expired tokens on an interval until ctx is cancelled.
func (s *TokenStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Len returns the number of pending tokens.
func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
