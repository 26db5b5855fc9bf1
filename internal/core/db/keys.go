package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/solatis/rulekeeper/internal/types"
)

// APIKey is one row of api_keys. The key itself is never stored.
type APIKey struct {
	ID         string       `db:"api_key_id"`
	ClientName string       `db:"client_name"`
	SecretID   string       `db:"secret_id"`
	KeyHash    string       `db:"key_hash"`
	CreatedAt  time.Time    `db:"created_at"`
	LastUsedAt sql.NullTime `db:"last_used_at"`
	RevokedAt  sql.NullTime `db:"revoked_at"`
}

// KeyStore persists API key records.
type KeyStore struct {
	q *Queries
}

func NewKeyStore(q *Queries) *KeyStore {
	return &KeyStore{q: q}
}

// Create records a key for clientName. keyHash is the hex HMAC of the key
// under the secret named by secretID.
func (s *KeyStore) Create(ctx context.Context, clientName, secretID, keyHash string) (*APIKey, error) {
	k := &APIKey{
		ID:         string(types.NewAPIKeyID()),
		ClientName: clientName,
		SecretID:   secretID,
		KeyHash:    keyHash,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := s.q.Exec(ctx, "insert-api-key", k.ID, k.ClientName, k.SecretID, k.KeyHash, k.CreatedAt); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	return k, nil
}

// LookupByHash returns the key with the given hash, or ErrNotFound.
func (s *KeyStore) LookupByHash(ctx context.Context, keyHash string) (*APIKey, error) {
	var k APIKey
	err := s.q.Get(ctx, "get-api-key-by-hash", &k, keyHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	return &k, nil
}

func (s *KeyStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	if _, err := s.q.Exec(ctx, "update-last-used", at.UTC(), id); err != nil {
		return fmt.Errorf("touch api key %s: %w", id, err)
	}
	return nil
}

// Revoke marks a key revoked. Returns ErrNotFound if the key does not exist
// or is already revoked.
func (s *KeyStore) Revoke(ctx context.Context, id string) error {
	res, err := s.q.Exec(ctx, "revoke-api-key", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("revoke api key %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke api key %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *KeyStore) List(ctx context.Context) ([]APIKey, error) {
	var keys []APIKey
	if err := s.q.Select(ctx, "list-api-keys", &keys); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}
