package types

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionID identifies one ExecuteRules call made through the service.
// String alias keeps it printable in logs and responses.
type ExecutionID string

// APIKeyID identifies a stored API key record.
type APIKeyID string

// NewExecutionID generates a UUIDv7 execution identifier.
// Time-ordered so log lines for consecutive executions sort naturally.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewExecutionID() ExecutionID {
	return ExecutionID(uuid.Must(uuid.NewV7()).String())
}

// NewAPIKeyID generates a UUIDv7 API key record identifier.
func NewAPIKeyID() APIKeyID {
	return APIKeyID(uuid.Must(uuid.NewV7()).String())
}

// NewSecretID generates a secret identifier: a UUIDv7 as 32 hex chars without hyphens.
func NewSecretID() string {
	u := uuid.Must(uuid.NewV7())
	var out [32]byte
	const hex = "0123456789abcdef"
	for i, b := range u {
		out[i*2] = hex[b>>4]
		out[i*2+1] = hex[b&0x0f]
	}
	return string(out[:])
}

// ParseExecutionID validates and converts a string to ExecutionID.
func ParseExecutionID(s string) (ExecutionID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return ExecutionID(s), nil
}

// ExecutionIDTime extracts the timestamp embedded in a UUIDv7 execution ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func ExecutionIDTime(id ExecutionID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
