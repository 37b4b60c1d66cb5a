package nonce

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"gadify-server/internal/storage"
)

// Number of random bytes. 16 → 128‑bit
const NONCE_SIZE = 16

type NonceMissingError struct {
	Nonce string
}

func (e *NonceMissingError) Error() string {
	return fmt.Sprintf("nonce not found: %s", e.Nonce)
}

type NonceExpiredError struct {
	Nonce  string
	Expiry time.Time
}

func (e *NonceExpiredError) Error() string {
	return fmt.Sprintf("nonce expired: %s (expiry: %s)", e.Nonce, e.Expiry)
}

type Store interface {
	// Put stores a nonce with a TTL.
	Put(ctx context.Context, nonce string, ttl time.Duration) error
	// Consume verifies and deletes the nonce.
	// Returns true if the nonce existed (valid request), false otherwise.
	Consume(ctx context.Context, nonce string) (bool, error)

	Exists(ctx context.Context, nonce string) bool

	ExpireNonces(ctx context.Context) error

	Close()
}

func generateToken() (string, error) {
	b := make([]byte, NONCE_SIZE)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// New creates a nonce, stores it with the given TTL, and returns it.
func New(ctx context.Context, store Store, ttl time.Duration) (string, error) {
	nonce, err := generateToken()
	if err != nil {
		return "", err
	}
	if err := store.Put(ctx, nonce, ttl); err != nil {
		return "", err
	}
	return nonce, nil
}

// NewStore builds the appropriate Store implementation. kind is "memory" or
// "sql"; the sql variant persists nonces through the storage provider so
// revocations survive restarts.
func NewStore(kind string, provider storage.Provider) (Store, error) {
	switch kind {
	case "memory":
		store := NewMemoryStore()
		go store.janitor()
		return store, nil
	case "sql":
		store := NewSQLStore(provider)
		go store.janitor()
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store type %q", kind)
	}
}
