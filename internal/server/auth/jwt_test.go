package auth

import (
	"testing"
	"time"

	"github.com/cryptguard/cryptguard/internal/common"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestAccessToken_RoundTrip(t *testing.T) {
	token, err := GenerateAccessToken("0xabc", testSecret, 15*time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	require.Equal(t, "0xabc", claims.Address)
	require.Empty(t, claims.ID, "access tokens carry no jti")
}

func TestRefreshToken_HasUniqueJTI(t *testing.T) {
	t1, err := GenerateRefreshToken("0xabc", testSecret, time.Hour)
	require.NoError(t, err)
	t2, err := GenerateRefreshToken("0xabc", testSecret, time.Hour)
	require.NoError(t, err)

	c1, err := ParseToken(t1, testSecret)
	require.NoError(t, err)
	c2, err := ParseToken(t2, testSecret)
	require.NoError(t, err)

	require.NotEmpty(t, c1.ID)
	require.NotEmpty(t, c2.ID)
	require.NotEqual(t, c1.ID, c2.ID)
}

func TestParseToken_Expired(t *testing.T) {
	token, err := GenerateAccessToken("0xabc", testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, testSecret)
	require.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := GenerateAccessToken("0xabc", testSecret, time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, []byte("ffffffffffffffffffffffffffffffff"))
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParseToken_Garbage(t *testing.T) {
	_, err := ParseToken("not.a.jwt", testSecret)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParseToken_ValidityWindow(t *testing.T) {
	// Issued with 15m validity: good at +14m, bad at +16m. We cannot move
	// the clock, so check the embedded expiry directly.
	token, err := GenerateAccessToken("0xabc", testSecret, 15*time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)

	exp := claims.ExpiresAt.Time
	require.True(t, exp.After(time.Now().Add(14*time.Minute)))
	require.True(t, exp.Before(time.Now().Add(16*time.Minute)))
}
