package cryptox

import (
	"encoding/hex"
	"testing"

	"github.com/cryptguard/cryptguard/internal/common"
	"github.com/stretchr/testify/require"
)

const (
	testAddr  = "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb1"
	otherAddr = "0x8626f6940E2eb28930eFb4CeF49B2d1F2C9C1199"
)

func randomSigHex(t *testing.T) string {
	t.Helper()
	return "0x" + hex.EncodeToString(common.GenerateRandByteArray(65))
}

func TestDeriveKeyFromSignature_Deterministic(t *testing.T) {
	sig := randomSigHex(t)

	k1, err := DeriveKeyFromSignature(sig, testAddr)
	require.NoError(t, err)
	require.Len(t, k1, KeySize)

	k2, err := DeriveKeyFromSignature(sig, testAddr)
	require.NoError(t, err)
	require.Equal(t, k1, k2)
}

func TestDeriveKeyFromSignature_DifferentSignature(t *testing.T) {
	k1, err := DeriveKeyFromSignature(randomSigHex(t), testAddr)
	require.NoError(t, err)
	k2, err := DeriveKeyFromSignature(randomSigHex(t), testAddr)
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)
}

func TestDeriveKeyFromSignature_DifferentAddress(t *testing.T) {
	sig := randomSigHex(t)
	k1, err := DeriveKeyFromSignature(sig, testAddr)
	require.NoError(t, err)
	k2, err := DeriveKeyFromSignature(sig, otherAddr)
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)
}

func TestDeriveKeyFromSignature_EncodingInvariance(t *testing.T) {
	raw := hex.EncodeToString(common.GenerateRandByteArray(65))

	variants := []struct{ sig, addr string }{
		{"0x" + raw, testAddr},
		{raw, testAddr},
		{"0x" + raw, "742d35Cc6634C0532925a3b844Bc9e7595f0bEb1"},
		{raw, "0x742D35CC6634C0532925A3B844BC9E7595F0BEB1"},
	}

	want, err := DeriveKeyFromSignature(variants[0].sig, variants[0].addr)
	require.NoError(t, err)

	for _, v := range variants[1:] {
		got, err := DeriveKeyFromSignature(v.sig, v.addr)
		require.NoError(t, err)
		require.Equal(t, want, got, "equivalent encodings must derive the same key")
	}
}

func TestDeriveKeyFromSignature_FailsClosedOnGarbage(t *testing.T) {
	cases := []struct{ sig, addr string }{
		{"", testAddr},
		{"0x", testAddr},
		{"zzzz", testAddr},
		{"0x" + hex.EncodeToString(common.GenerateRandByteArray(10)), testAddr}, // truncated
		{randomSigHex(t), ""},
		{randomSigHex(t), "0x1234"},
		{randomSigHex(t), "not-an-address"},
	}
	for _, c := range cases {
		_, err := DeriveKeyFromSignature(c.sig, c.addr)
		require.ErrorIs(t, err, common.ErrorValidation, "sig=%q addr=%q", c.sig, c.addr)
	}
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("0x742D35CC6634C0532925A3B844BC9E7595F0BEB1")
	require.NoError(t, err)
	require.Equal(t, "0x742d35cc6634c0532925a3b844bc9e7595f0beb1", got)

	got, err = NormalizeAddress("742d35cc6634c0532925a3b844bc9e7595f0beb1")
	require.NoError(t, err)
	require.Equal(t, "0x742d35cc6634c0532925a3b844bc9e7595f0beb1", got)

	_, err = NormalizeAddress("0xdeadbeef")
	require.Error(t, err)
}
