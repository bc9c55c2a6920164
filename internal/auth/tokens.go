package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"triad-arena/server/internal/store"
)

var (
	ErrTokenUnknown = errors.New("auth: unknown session token")
	ErrTokenExpired = errors.New("auth: session token expired")
)

// Tokens mints, validates, and rotates session tokens against the store.
type Tokens struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewTokens(st store.Store, ttl time.Duration) *Tokens {
	return &Tokens{store: st, ttl: ttl, now: time.Now}
}

// Mint issues a fresh token for the user.
func (t *Tokens) Mint(ctx context.Context, userID string) (*store.SessionToken, error) {
	now := t.now()
	token := &store.SessionToken{
		Token:     newTokenValue(),
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(t.ttl),
	}
	if err := t.store.InsertSessionToken(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// Validate resolves a token to its user id.
func (t *Tokens) Validate(ctx context.Context, token string) (string, error) {
	rec, err := t.store.GetSessionToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrTokenUnknown
	}
	if err != nil {
		return "", err
	}
	if t.now().After(rec.ExpiresAt) {
		return "", ErrTokenExpired
	}
	return rec.UserID, nil
}

// Rotate replaces a live token with a fresh one. The old token dies whether
// or not the client sees the replacement; a missed rotation costs one
// re-login, never a dangling credential.
func (t *Tokens) Rotate(ctx context.Context, token string) (*store.SessionToken, error) {
	userID, err := t.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	fresh, err := t.Mint(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := t.store.DeleteSessionToken(ctx, token); err != nil {
		return nil, err
	}
	return fresh, nil
}

// Revoke deletes a token outright.
func (t *Tokens) Revoke(ctx context.Context, token string) error {
	return t.store.DeleteSessionToken(ctx, token)
}

// PruneExpired drops every expired token; returns the count removed.
func (t *Tokens) PruneExpired(ctx context.Context) (int64, error) {
	return t.store.DeleteExpiredTokens(ctx, t.now())
}

func newTokenValue() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
