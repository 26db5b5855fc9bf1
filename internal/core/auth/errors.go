package auth

import "errors"

// Missing, malformed and unknown keys all map to Unauthenticated so a caller
// cannot probe which keys exist. Only a revoked key maps to PermissionDenied.
var (
	ErrMissingKey       = errors.New("x-api-key metadata missing")
	ErrInvalidKeyFormat = errors.New("malformed API key")
	ErrUnknownSecret    = errors.New("API key signed by an unconfigured secret")
	ErrInvalidKey       = errors.New("API key not recognised")
	ErrKeyRevoked       = errors.New("API key revoked")
	ErrStorage          = errors.New("key storage unavailable")
)
