// Package filerecords declares the repository contract for the local file
// index. The (owner_address, file_hash) and storage_cid uniqueness rules are
// enforced by the schema, not just by application code.
package filerecords

import (
	"context"

	"github.com/cryptguard/cryptguard/internal/server/models"
)

type Repository interface {
	// Create inserts the record, returning common.ErrorAlreadyExists when
	// the (owner, hash) pair or the storage CID is already taken.
	Create(ctx context.Context, record *models.FileRecord) (*models.FileRecord, error)

	// ExistsByOwnerAndHash reports whether the owner already registered
	// this content hash.
	ExistsByOwnerAndHash(ctx context.Context, owner, fileHash string) (bool, error)

	// GetByID returns the record, scoped to its owner, or common.ErrorNotFound.
	GetByID(ctx context.Context, id, owner string) (*models.FileRecord, error)

	// GetByOwnerAndCID looks a record up by its ciphertext CID.
	GetByOwnerAndCID(ctx context.Context, owner, storageCID string) (*models.FileRecord, error)

	// ListRecent returns the owner's newest records, newest first.
	ListRecent(ctx context.Context, owner string, limit int) ([]*models.FileRecord, error)

	// ListAll returns every record of the owner (used for stats).
	ListAll(ctx context.Context, owner string) ([]*models.FileRecord, error)

	// IncrementDownloadCount bumps the download counter.
	IncrementDownloadCount(ctx context.Context, id string) error

	// Delete removes the local record; the ledger side is immutable and
	// stays. Returns common.ErrorNotFound when nothing was deleted.
	Delete(ctx context.Context, id, owner string) error
}
