package session

import (
	"context"
	"time"

	"flowboard/api/internal/store"
)

// PGStore keeps refresh sessions in PostgreSQL. Used when Redis is not
// configured.
type PGStore struct {
	store *store.PostgresStore
}

// NewPGStore creates a Postgres-backed session store.
func NewPGStore(store *store.PostgresStore) *PGStore {
	return &PGStore{store: store}
}

// SaveRefreshSession stores a refresh token with expiration.
func (s *PGStore) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return s.store.SaveSession(ctx, tokenHash, user.ID, expiresAt)
}

// LookupRefreshSession retrieves the user behind a refresh token.
func (s *PGStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return s.store.LookupSession(ctx, tokenHash)
}

// RevokeRefreshSession invalidates a refresh token.
func (s *PGStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return s.store.RevokeSession(ctx, tokenHash)
}
