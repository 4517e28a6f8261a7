// Package cryptox implements the cryptographic core of CryptGuard: AEAD
// encryption of file payloads, envelope encryption of per-user data keys
// under an operator master key, and deterministic key derivation from a
// wallet signature.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/cryptguard/cryptguard/internal/common"
)

// KeySize is the size of every symmetric key in the system (AES-256).
const KeySize = 32

// NonceSize is the AES-GCM nonce length.
const NonceSize = 12

// EncryptFile encrypts plaintext under key with AES-256-GCM and a fresh
// random nonce. The authentication tag is appended to the ciphertext by GCM;
// the nonce is returned separately and must be persisted alongside the
// ciphertext's metadata, never derived from content.
func EncryptFile(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = common.GenerateRandByteArray(NonceSize)
	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// DecryptFile reverses EncryptFile. Any failure (wrong key, tampered
// ciphertext, wrong nonce) surfaces as common.ErrDecryptionFailed with no
// further detail.
func DecryptFile(ciphertext, nonce, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, common.ErrDecryptionFailed
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	return plaintext, nil
}

// FileHash returns the canonical content hash of plaintext bytes:
// 0x-prefixed lowercase hex of the SHA-256 digest. This is the value
// anchored on the ledger and used for duplicate detection.
func FileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return "0x" + hex.EncodeToString(sum[:])
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes", common.ErrorValidation, KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
