package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"testing"

	"github.com/cryptguard/cryptguard/internal/common"
	"github.com/cryptguard/cryptguard/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner = "0x742d35cc6634c0532925a3b844bc9e7595f0beb1"

func newResolver(t *testing.T) (*keyResolver, *fakeRepoManager) {
	t.Helper()
	rm := newFakeRepoManager()
	return newKeyResolver(nil, rm, testVault(t)), rm
}

func seedUser(rm *fakeRepoManager) {
	rm.users.GetOrCreate(context.Background(), testOwner)
}

func randomSignatureHex(t *testing.T) string {
	t.Helper()
	sig := make([]byte, 65)
	_, err := rand.Read(sig)
	require.NoError(t, err)
	sig[64] = 27
	return "0x" + hex.EncodeToString(sig)
}

func TestResolve_WalletDerivedIsDeterministicAndUnstored(t *testing.T) {
	r, rm := newResolver(t)
	seedUser(rm)
	sig := randomSignatureHex(t)

	k1, err := r.resolve(context.Background(), testOwner, WalletDerivedKey(sig))
	require.NoError(t, err)
	k2, err := r.resolve(context.Background(), testOwner, WalletDerivedKey(sig))
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Len(t, k1, cryptox.KeySize)
	assert.Nil(t, rm.users.users[testOwner].EncryptedKey, "derived keys must never be persisted")
}

func TestResolve_WalletDerivedRejectsGarbage(t *testing.T) {
	r, rm := newResolver(t)
	seedUser(rm)

	_, err := r.resolve(context.Background(), testOwner, WalletDerivedKey("0x1234"))
	require.ErrorIs(t, err, common.ErrorValidation)
}

func TestResolve_StoredKeyCreatedOnceAndStable(t *testing.T) {
	r, rm := newResolver(t)
	seedUser(rm)

	k1, err := r.resolve(context.Background(), testOwner, MasterWrappedKey())
	require.NoError(t, err)
	require.Len(t, k1, cryptox.KeySize)
	require.NotNil(t, rm.users.users[testOwner].EncryptedKey)

	k2, err := r.resolve(context.Background(), testOwner, MasterWrappedKey())
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestResolve_StoredKeyUnknownUser(t *testing.T) {
	r, _ := newResolver(t)

	_, err := r.resolve(context.Background(), testOwner, MasterWrappedKey())
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestResolve_ConcurrentFirstUseProducesOneKey(t *testing.T) {
	r, rm := newResolver(t)
	seedUser(rm)

	const n = 16
	keys := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k, err := r.resolve(context.Background(), testOwner, MasterWrappedKey())
			assert.NoError(t, err)
			keys[i] = k
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, keys[0], keys[i])
	}
}

func TestResolve_LostRaceFallsBackToStoredKey(t *testing.T) {
	r, rm := newResolver(t)
	seedUser(rm)

	// Another instance stored a key between our Get and our conditional write.
	other := cryptox.NewDataKey()
	record, err := r.vault.Wrap(other)
	require.NoError(t, err)
	rm.users.users[testOwner].EncryptedKey = record.Serialize()

	key, err := r.createStored(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Equal(t, other, key)
}
