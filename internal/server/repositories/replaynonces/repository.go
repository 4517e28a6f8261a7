// Package replaynonces stores single-use request nonces for the replay
// guard. Shared-database backing keeps the guard correct when the service
// runs as multiple instances.
package replaynonces

import (
	"context"
	"time"
)

type Repository interface {
	// Register claims the nonce until expiresAt. Returns false when the
	// nonce was already seen within its validity window.
	Register(ctx context.Context, nonce string, expiresAt time.Time) (bool, error)

	// PurgeExpired drops nonces whose window has passed.
	PurgeExpired(ctx context.Context) error
}
