// Package users declares the repository contract for user records keyed by
// account address.
package users

import (
	"context"

	"github.com/cryptguard/cryptguard/internal/server/models"
)

// Repository persists users and their envelope-encrypted data keys.
type Repository interface {
	// GetOrCreate upserts the user for address: created on first call,
	// login counters bumped on every subsequent one. Atomic, so two
	// concurrent first logins produce exactly one row.
	GetOrCreate(ctx context.Context, address string) (*models.User, error)

	// Get returns the user or common.ErrorNotFound.
	Get(ctx context.Context, address string) (*models.User, error)

	// SetEncryptedKeyIfAbsent stores the wrapped data key only when the
	// user has none yet. Returns true when this call won the write; false
	// when a key was already present (the caller must then re-read and use
	// the stored one).
	SetEncryptedKeyIfAbsent(ctx context.Context, address string, encryptedKey []byte) (bool, error)
}
