// Package storage abstracts the content-addressed object store that holds
// encrypted file blobs and metadata documents. Identifiers returned by Pin
// are opaque to callers and are persisted as-is in file records.
package storage

import "context"

type Store interface {
	// Pin publishes data under the given display name and returns the
	// content identifier assigned by the backend.
	Pin(ctx context.Context, name string, data []byte) (string, error)

	// Fetch retrieves the full content for a previously pinned identifier.
	Fetch(ctx context.Context, cid string) ([]byte, error)

	// Unpin releases the content behind the identifier. Backends that
	// garbage-collect lazily may keep serving the content for a while.
	Unpin(ctx context.Context, cid string) error
}
