package cryptox

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/cryptguard/cryptguard/internal/common"
	"golang.org/x/crypto/hkdf"
)

// deriveInfo domain-separates file-key derivation from any other HKDF use.
const deriveInfo = "cryptguard/file-key/v1"

var addressRe = regexp.MustCompile(`^[0-9a-f]{40}$`)

// DeriveKeyFromSignature deterministically derives a 32-byte file-encryption
// key from a wallet signature and the signer's address, via HKDF-SHA256.
// Identical (signature, address) pairs always produce the identical key, so
// the key never has to be persisted: the user reconstructs it each session
// by re-signing the fixed challenge.
//
// Both inputs are normalized first (0x prefix stripped, lower-cased) so that
// equivalent encodings derive the same key. Malformed input fails closed.
func DeriveKeyFromSignature(signatureHex, address string) ([]byte, error) {
	sig, err := DecodeSignature(signatureHex)
	if err != nil {
		return nil, err
	}
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	r := hkdf.New(sha256.New, sig, []byte(addr), []byte(deriveInfo))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return key, nil
}

// NormalizeAddress canonicalizes a blockchain account address to its
// lower-case 0x-prefixed form, rejecting anything that is not 20 bytes of hex.
func NormalizeAddress(address string) (string, error) {
	a := strings.ToLower(strings.TrimSpace(address))
	a = strings.TrimPrefix(a, "0x")
	if !addressRe.MatchString(a) {
		return "", fmt.Errorf("%w: invalid account address", common.ErrorValidation)
	}
	return "0x" + a, nil
}

// DecodeSignature decodes a 65-byte wallet signature from hex, tolerating an
// optional 0x prefix and mixed case.
func DecodeSignature(signatureHex string) ([]byte, error) {
	s := strings.ToLower(strings.TrimSpace(signatureHex))
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, fmt.Errorf("%w: empty signature", common.ErrorValidation)
	}
	sig, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: signature is not valid hex", common.ErrorValidation)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("%w: signature must be 65 bytes, got %d", common.ErrorValidation, len(sig))
	}
	return sig, nil
}
