package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/solatis/rulekeeper/internal/core/db"
)

const secretID = "0123456789abcdef0123456789abcdef"

var secret = []byte("0123456789abcdef0123456789abcdef-test")

// memKeys is an in-memory KeyStore.
type memKeys struct {
	mu      sync.Mutex
	byHash  map[string]*db.APIKey
	touched int
	failing bool
}

func newMemKeys() *memKeys {
	return &memKeys{byHash: make(map[string]*db.APIKey)}
}

func (m *memKeys) Create(_ context.Context, clientName, secretID, keyHash string) (*db.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := &db.APIKey{ID: "id-" + clientName, ClientName: clientName, SecretID: secretID, KeyHash: keyHash, CreatedAt: time.Now()}
	m.byHash[keyHash] = k
	return k, nil
}

func (m *memKeys) LookupByHash(_ context.Context, keyHash string) (*db.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return nil, errors.New("connection refused")
	}
	k, ok := m.byHash[keyHash]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (m *memKeys) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched++
	for _, k := range m.byHash {
		if k.ID == id {
			k.LastUsedAt = sql.NullTime{Time: at, Valid: true}
		}
	}
	return nil
}

func (m *memKeys) revoke(hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byHash[hash].RevokedAt = sql.NullTime{Time: time.Now(), Valid: true}
}

func TestParseAPIKey(t *testing.T) {
	random := strings.Repeat("ab", 32)
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", FormatAPIKey(secretID, random), false},
		{"wrong prefix", "tk-v1-" + secretID + "-" + random, true},
		{"wrong version", "rk-v2-" + secretID + "-" + random, true},
		{"short random", "rk-v1-" + secretID + "-abcd", true},
		{"uppercase hex", "rk-v1-" + strings.ToUpper(secretID) + "-" + random, true},
		{"too many parts", "rk-v1-" + secretID + "-" + random + "-x", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sid, rd, err := ParseAPIKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAPIKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (sid != secretID || rd != random) {
				t.Errorf("ParseAPIKey() = %s, %s", sid, rd)
			}
		})
	}
}

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey(secretID)
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}
	b, _ := GenerateAPIKey(secretID)
	if a == b {
		t.Error("GenerateAPIKey() returned the same key twice")
	}
	if _, _, err := ParseAPIKey(a); err != nil {
		t.Errorf("ParseAPIKey(generated) error = %v", err)
	}
}

func TestHMAC(t *testing.T) {
	h1 := ComputeHMAC(secret, "key")
	if !VerifyHMAC(h1, ComputeHMAC(secret, "key")) {
		t.Error("VerifyHMAC(same) = false, want true")
	}
	if VerifyHMAC(h1, ComputeHMAC([]byte("other-secret-other-secret-other!!"), "key")) {
		t.Error("VerifyHMAC(different secret) = true, want false")
	}
	if len(KeyHash(secret, "key")) != 64 {
		t.Errorf("len(KeyHash()) = %d, want 64", len(KeyHash(secret, "key")))
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	keys := newMemKeys()
	a := NewAuthenticator(map[string][]byte{secretID: secret}, keys)

	key, rec, err := a.Issue(ctx, "billing", secretID)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if rec.ClientName != "billing" {
		t.Errorf("Issue() record client = %s, want billing", rec.ClientName)
	}

	client, err := a.Authenticate(ctx, key)
	if err != nil || client != "billing" {
		t.Fatalf("Authenticate() = %s, %v, want billing, nil", client, err)
	}
	// Second call within a minute does not write again
	if _, err := a.Authenticate(ctx, key); err != nil {
		t.Fatal(err)
	}
	if keys.touched != 1 {
		t.Errorf("touched = %d, want 1", keys.touched)
	}

	other, _ := GenerateAPIKey(secretID)
	if _, err := a.Authenticate(ctx, other); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Authenticate(unknown key) error = %v, want ErrInvalidKey", err)
	}
	foreign, _ := GenerateAPIKey("fedcba9876543210fedcba9876543210")
	if _, err := a.Authenticate(ctx, foreign); !errors.Is(err, ErrUnknownSecret) {
		t.Errorf("Authenticate(foreign secret) error = %v, want ErrUnknownSecret", err)
	}
	if _, err := a.Authenticate(ctx, "garbage"); !errors.Is(err, ErrInvalidKeyFormat) {
		t.Errorf("Authenticate(garbage) error = %v, want ErrInvalidKeyFormat", err)
	}

	keys.revoke(KeyHash(secret, key))
	if _, err := a.Authenticate(ctx, key); !errors.Is(err, ErrKeyRevoked) {
		t.Errorf("Authenticate(revoked) error = %v, want ErrKeyRevoked", err)
	}

	if _, _, err := a.Issue(ctx, "x", "fedcba9876543210fedcba9876543210"); !errors.Is(err, ErrUnknownSecret) {
		t.Errorf("Issue(unknown secret) error = %v, want ErrUnknownSecret", err)
	}
	if _, _, err := a.Issue(ctx, " ", secretID); err == nil {
		t.Error("Issue(blank client) error = nil, want error")
	}
}

func TestUnaryInterceptor(t *testing.T) {
	ctx := context.Background()
	keys := newMemKeys()
	a := NewAuthenticator(map[string][]byte{secretID: secret}, keys)
	key, _, err := a.Issue(ctx, "billing", secretID)
	if err != nil {
		t.Fatal(err)
	}
	revoked, _, _ := a.Issue(ctx, "old", secretID)
	keys.revoke(KeyHash(secret, revoked))

	var seen string
	handler := func(ctx context.Context, req any) (any, error) {
		seen = ClientFromContext(ctx)
		return "ok", nil
	}
	intercept := a.UnaryInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/rulekeeper.v1.RuleEngine/ExecuteRules"}

	tests := []struct {
		name     string
		ctx      context.Context
		method   string
		failing  bool
		wantCode codes.Code
	}{
		{"valid key", metadata.NewIncomingContext(ctx, metadata.Pairs(MetadataKey, key)), "", false, codes.OK},
		{"no metadata", ctx, "", false, codes.Unauthenticated},
		{"missing key", metadata.NewIncomingContext(ctx, metadata.Pairs("other", "x")), "", false, codes.Unauthenticated},
		{"revoked", metadata.NewIncomingContext(ctx, metadata.Pairs(MetadataKey, revoked)), "", false, codes.PermissionDenied},
		{"storage down", metadata.NewIncomingContext(ctx, metadata.Pairs(MetadataKey, key)), "", true, codes.Unavailable},
		{"health is public", ctx, "/grpc.health.v1.Health/Check", false, codes.OK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys.failing = tt.failing
			defer func() { keys.failing = false }()

			i := info
			if tt.method != "" {
				i = &grpc.UnaryServerInfo{FullMethod: tt.method}
			}
			_, err := intercept(tt.ctx, nil, i, handler)
			if got := status.Code(err); got != tt.wantCode {
				t.Errorf("code = %v, want %v (err %v)", got, tt.wantCode, err)
			}
		})
	}

	seen = ""
	if _, err := intercept(metadata.NewIncomingContext(ctx, metadata.Pairs(MetadataKey, key)), nil, info, handler); err != nil {
		t.Fatal(err)
	}
	if seen != "billing" {
		t.Errorf("ClientFromContext() = %q, want billing", seen)
	}
}
