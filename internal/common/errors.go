// Package common contains shared constants and sentinel errors used across
// CryptGuard components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorValidation   = errors.New("validation error")

	// Token lifecycle errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")

	// Crypto and integrity errors. ErrDecryptionFailed is deliberately
	// opaque: it covers bad keys, tampered ciphertext and wrong nonces
	// without distinguishing between them.
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrIntegrityMismatch = errors.New("integrity mismatch")
	ErrNotAnchored       = errors.New("not anchored on ledger")

	// External collaborator errors (storage network, ledger, DB). Retryable.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// Replay protection.
	ErrReplayDetected = errors.New("replay detected")
)
