// Package services contains server-side business logic: authentication and
// token lifecycle, the upload pipeline, integrity verification, and file
// index management.
package services

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/cryptguard/cryptguard/internal/common"
	"github.com/cryptguard/cryptguard/internal/cryptox"
	"github.com/cryptguard/cryptguard/internal/server/repositories/repomanager"
)

// KeySource selects which encryption key a request runs under: the server's
// per-user data key (wrapped under the master key) or a key derived from a
// wallet signature the client supplies per request.
type KeySource struct {
	walletDerived bool
	signature     string
}

// MasterWrappedKey selects the server-managed per-user data key.
func MasterWrappedKey() KeySource {
	return KeySource{}
}

// WalletDerivedKey selects deterministic derivation from the given wallet
// signature. The server never stores the signature or the derived key.
func WalletDerivedKey(signature string) KeySource {
	return KeySource{walletDerived: true, signature: signature}
}

// keyResolver produces the file encryption key for an owner. For the
// master-wrapped path, the first request for a user generates and persists
// the data key; the conditional write in the repository plus singleflight
// ensure a single key survives concurrent first uploads.
type keyResolver struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	vault       *cryptox.KeyVault
	group       singleflight.Group
}

func newKeyResolver(db *sql.DB, m repomanager.RepositoryManager, vault *cryptox.KeyVault) *keyResolver {
	return &keyResolver{db: db, repomanager: m, vault: vault}
}

func (r *keyResolver) resolve(ctx context.Context, owner string, src KeySource) ([]byte, error) {
	if src.walletDerived {
		key, err := cryptox.DeriveKeyFromSignature(src.signature, owner)
		if err != nil {
			return nil, fmt.Errorf("%w: deriving key: %v", common.ErrorValidation, err)
		}
		return key, nil
	}
	return r.resolveStored(ctx, owner)
}

func (r *keyResolver) resolveStored(ctx context.Context, owner string) ([]byte, error) {
	repo := r.repomanager.Users(r.db)

	user, err := repo.Get(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if user.EncryptedKey != nil {
		return r.unwrap(user.EncryptedKey)
	}

	v, err, _ := r.group.Do(owner, func() (any, error) {
		return r.createStored(ctx, owner)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (r *keyResolver) createStored(ctx context.Context, owner string) ([]byte, error) {
	repo := r.repomanager.Users(r.db)

	key := cryptox.NewDataKey()
	record, err := r.vault.Wrap(key)
	if err != nil {
		return nil, fmt.Errorf("wrapping data key: %w", err)
	}

	won, err := repo.SetEncryptedKeyIfAbsent(ctx, owner, record.Serialize())
	if err != nil {
		return nil, fmt.Errorf("storing data key: %w", err)
	}
	if won {
		return key, nil
	}

	// Another instance raced us; discard ours and use the stored key.
	common.WipeByteArray(key)
	user, err := repo.Get(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("reloading user: %w", err)
	}
	if user.EncryptedKey == nil {
		return nil, common.ErrorInternal
	}
	return r.unwrap(user.EncryptedKey)
}

func (r *keyResolver) unwrap(blob []byte) ([]byte, error) {
	record, err := cryptox.ParseEncryptedKeyRecord(blob)
	if err != nil {
		return nil, fmt.Errorf("parsing stored key: %w", err)
	}
	key, err := r.vault.Unwrap(record)
	if err != nil {
		return nil, fmt.Errorf("unwrapping stored key: %w", err)
	}
	return key, nil
}
