package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/cryptguard/cryptguard/internal/common"
	"github.com/cryptguard/cryptguard/internal/server/auth"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"
)

// signedChallenge produces a wallet-style r||s||v signature over the fixed
// challenge message and returns it with the signer's address.
func signedChallenge(t *testing.T) (sigHex, address string) {
	t.Helper()

	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "\x19Ethereum Signed Message:\n%d%s", len(auth.ChallengeMessage), auth.ChallengeMessage)
	digest := h.Sum(nil)

	compact := ecdsa.SignCompact(priv, digest, false)
	sig := make([]byte, 65)
	copy(sig, compact[1:])
	sig[64] = compact[0]

	raw := priv.PubKey().SerializeUncompressed()
	h = sha3.NewLegacyKeccak256()
	h.Write(raw[1:])
	sum := h.Sum(nil)

	return "0x" + hex.EncodeToString(sig), "0x" + hex.EncodeToString(sum[12:])
}

func newTokenService(rm *fakeRepoManager) *TokenService {
	return NewTokenService(nil, rm, testConfig(), testAudit())
}

func TestAuthenticate_Success(t *testing.T) {
	sigHex, addr := signedChallenge(t)
	rm := newFakeRepoManager()
	s := newTokenService(rm)

	pair, user, err := s.Authenticate(context.Background(), addr, sigHex)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, addr, user.Address)
	assert.EqualValues(t, 1, user.LoginCount)

	// second login bumps the counter, does not duplicate the user
	_, user, err = s.Authenticate(context.Background(), addr, sigHex)
	require.NoError(t, err)
	assert.EqualValues(t, 2, user.LoginCount)
	assert.Len(t, rm.users.users, 1)
}

func TestAuthenticate_WrongAddress(t *testing.T) {
	sigHex, _ := signedChallenge(t)
	s := newTokenService(newFakeRepoManager())

	_, _, err := s.Authenticate(context.Background(), "0x742d35cc6634c0532925a3b844bc9e7595f0beb1", sigHex)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRefresh_IssuesNewAccessTokenOnly(t *testing.T) {
	sigHex, addr := signedChallenge(t)
	s := newTokenService(newFakeRepoManager())

	pair, _, err := s.Authenticate(context.Background(), addr, sigHex)
	require.NoError(t, err)

	access, err := s.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, access)

	claims, err := s.ValidateAccess(context.Background(), access)
	require.NoError(t, err)
	assert.Equal(t, addr, claims.Address)
}

func TestRefresh_RejectsAccessTokenAsRefresh(t *testing.T) {
	sigHex, addr := signedChallenge(t)
	s := newTokenService(newFakeRepoManager())

	pair, _, err := s.Authenticate(context.Background(), addr, sigHex)
	require.NoError(t, err)

	// signed under the wrong secret for this path
	_, err = s.Refresh(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestRefresh_RevokedAfterLogout(t *testing.T) {
	sigHex, addr := signedChallenge(t)
	s := newTokenService(newFakeRepoManager())

	pair, _, err := s.Authenticate(context.Background(), addr, sigHex)
	require.NoError(t, err)

	require.NoError(t, s.Logout(context.Background(), pair.RefreshToken))

	_, err = s.Refresh(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, common.ErrTokenRevoked)
}

func TestLogout_Idempotent(t *testing.T) {
	sigHex, addr := signedChallenge(t)
	s := newTokenService(newFakeRepoManager())

	pair, _, err := s.Authenticate(context.Background(), addr, sigHex)
	require.NoError(t, err)

	require.NoError(t, s.Logout(context.Background(), pair.RefreshToken))
	require.NoError(t, s.Logout(context.Background(), pair.RefreshToken))
}

func TestLogout_GarbageToken(t *testing.T) {
	s := newTokenService(newFakeRepoManager())
	require.ErrorIs(t, s.Logout(context.Background(), "garbage"), common.ErrInvalidToken)
}

func TestValidateAccess_Expired(t *testing.T) {
	cfg := testConfig()
	cfg.AccessTokenValidityDuration = -time.Minute
	s := NewTokenService(nil, newFakeRepoManager(), cfg, testAudit())

	sigHex, addr := signedChallenge(t)
	pair, _, err := s.Authenticate(context.Background(), addr, sigHex)
	require.NoError(t, err)

	_, err = s.ValidateAccess(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestPurgeExpired(t *testing.T) {
	rm := newFakeRepoManager()
	s := newTokenService(rm)

	rm.revoked.revoked["stale"] = time.Now().Add(-time.Hour)
	rm.revoked.revoked["fresh"] = time.Now().Add(time.Hour)

	require.NoError(t, s.PurgeExpired(context.Background()))
	assert.NotContains(t, rm.revoked.revoked, "stale")
	assert.Contains(t, rm.revoked.revoked, "fresh")
}
