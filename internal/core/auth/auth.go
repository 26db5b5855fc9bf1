// Package auth provides HMAC-based API key authentication for gRPC services.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/solatis/rulekeeper/internal/core/db"
)

// MetadataKey is the gRPC metadata header carrying the API key.
const MetadataKey = "x-api-key"

type contextKey string

const clientKey = contextKey("client_name")

// KeyStore is the persistence the authenticator needs. Implemented by *db.KeyStore.
type KeyStore interface {
	Create(ctx context.Context, clientName, secretID, keyHash string) (*db.APIKey, error)
	LookupByHash(ctx context.Context, keyHash string) (*db.APIKey, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// Authenticator validates API keys against HMAC secrets held in memory and
// key hashes held in the store.
type Authenticator struct {
	secrets map[string][]byte
	keys    KeyStore
	// Unauthenticated method prefixes, e.g. the health service.
	public []string
}

// NewAuthenticator creates an authenticator over secrets (secret_id -> bytes).
func NewAuthenticator(secrets map[string][]byte, keys KeyStore) *Authenticator {
	return &Authenticator{
		secrets: secrets,
		keys:    keys,
		public:  []string{"/grpc.health.v1.Health/"},
	}
}

// Issue creates and stores a new key for clientName under secretID and
// returns the plaintext key. The plaintext is not recoverable afterwards.
func (a *Authenticator) Issue(ctx context.Context, clientName, secretID string) (string, *db.APIKey, error) {
	if strings.TrimSpace(clientName) == "" {
		return "", nil, fmt.Errorf("client name must not be empty")
	}
	secret, ok := a.secrets[secretID]
	if !ok {
		return "", nil, ErrUnknownSecret
	}
	key, err := GenerateAPIKey(secretID)
	if err != nil {
		return "", nil, err
	}
	rec, err := a.keys.Create(ctx, clientName, secretID, KeyHash(secret, key))
	if err != nil {
		return "", nil, err
	}
	return key, rec, nil
}

// Authenticate validates apiKey and returns the client name on success.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (string, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownSecret
	}

	rec, err := a.keys.LookupByHash(ctx, KeyHash(secret, apiKey))
	if errors.Is(err, db.ErrNotFound) {
		return "", ErrInvalidKey
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if rec.RevokedAt.Valid {
		return "", ErrKeyRevoked
	}

	// Throttled to one write per minute per key
	if !rec.LastUsedAt.Valid || time.Since(rec.LastUsedAt.Time) > time.Minute {
		_ = a.keys.TouchLastUsed(ctx, rec.ID, time.Now())
	}

	return rec.ClientName, nil
}

// UnaryInterceptor returns a gRPC interceptor that authenticates requests.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		for _, p := range a.public {
			if strings.HasPrefix(info.FullMethod, p) {
				return handler(ctx, req)
			}
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		apiKeys := md.Get(MetadataKey)
		if len(apiKeys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		client, err := a.Authenticate(ctx, apiKeys[0])
		switch {
		case err == nil:
		case errors.Is(err, ErrKeyRevoked):
			return nil, status.Error(codes.PermissionDenied, err.Error())
		case errors.Is(err, ErrStorage):
			return nil, status.Error(codes.Unavailable, err.Error())
		default:
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		return handler(context.WithValue(ctx, clientKey, client), req)
	}
}

// ClientFromContext returns the authenticated client name, or "".
func ClientFromContext(ctx context.Context) string {
	if c, ok := ctx.Value(clientKey).(string); ok {
		return c
	}
	return ""
}
