// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is keyed by the canonical (lower-case, 0x-prefixed) account address.
// EncryptedKey holds the serialized envelope-encrypted data key and is owned
// exclusively by the key vault; nil until the user's first master-wrapped
// upload. Users are created on first successful authentication and never
// hard-deleted.
type User struct {
	Address      string
	EncryptedKey []byte
	CreatedAt    time.Time
	LastLogin    time.Time
	LoginCount   int64
}
