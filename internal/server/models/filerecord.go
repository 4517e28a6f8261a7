package models

import "time"

// FileRecord is the local index entry for one uploaded file. The pair
// (OwnerAddress, FileHash) is unique per user; StorageCID is unique across
// all users. Created at the confirm step of the upload pipeline; the ledger
// side of the record is immutable, only this local row can be removed.
type FileRecord struct {
	ID           string
	OwnerAddress string

	// StorageCID addresses the ciphertext blob, MetadataCID the companion
	// metadata blob (nonce, owner, timestamp, original name).
	StorageCID  string
	MetadataCID string

	// FileHash is the canonical 0x-prefixed SHA-256 of the plaintext.
	FileHash string

	FileName   string
	FileSize   int64
	FileType   string
	UploadTime time.Time

	// BlockchainTxHash is the anchoring transaction, when the caller
	// supplied one at confirm time. LedgerIndex is the file's position in
	// the ledger contract, captured at write time so verification never
	// has to scan the contract's file list.
	BlockchainTxHash string
	LedgerIndex      *int64

	Verified      bool
	DownloadCount int64
}
