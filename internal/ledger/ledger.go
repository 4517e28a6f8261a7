// Package ledger talks to the on-chain registry contract that anchors file
// hashes. Only read access is needed server-side: clients submit the
// anchoring transaction themselves and report the resulting index back.
package ledger

import "context"

type Client interface {
	// VerifyFile asks the contract whether the record at index carries
	// exactly the given hash string for any owner.
	VerifyFile(ctx context.Context, index int64, fileHash string) (bool, error)
}
