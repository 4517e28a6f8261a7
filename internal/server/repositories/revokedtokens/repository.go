// Package revokedtokens provides the revocation set for refresh-credential
// identifiers. Backed by the shared database so revocation holds across
// multiple server instances, with expiry-based cleanup.
package revokedtokens

import (
	"context"
	"time"
)

type Repository interface {
	// Revoke records the jti as revoked until expiresAt. Revoking an
	// already-revoked jti is not an error.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error

	// IsRevoked reports whether the jti is currently revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// PurgeExpired drops rows whose credential has expired anyway.
	PurgeExpired(ctx context.Context) error
}
