package models

import "time"

// RevokedToken marks a refresh-credential identifier (jti) as revoked until
// the credential itself would have expired; after ExpiresAt the row is
// garbage and may be purged.
type RevokedToken struct {
	JTI       string
	ExpiresAt time.Time
	RevokedAt time.Time
}
