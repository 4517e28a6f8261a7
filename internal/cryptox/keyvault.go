package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/cryptguard/cryptguard/internal/common"
	"golang.org/x/crypto/argon2"
)

// wrappedLen is the fixed serialized size of an EncryptedKeyRecord:
// 12-byte nonce + 32-byte key ciphertext + 16-byte GCM tag.
const wrappedLen = NonceSize + KeySize + 16

// EncryptedKeyRecord is a per-user data key envelope-encrypted under the
// operator master key. The GCM authentication tag travels inside Ciphertext.
type EncryptedKeyRecord struct {
	Nonce      []byte
	Ciphertext []byte
}

// Serialize flattens the record to nonce||ciphertext for storage.
func (r *EncryptedKeyRecord) Serialize() []byte {
	out := make([]byte, 0, wrappedLen)
	out = append(out, r.Nonce...)
	return append(out, r.Ciphertext...)
}

// ParseEncryptedKeyRecord validates the fixed length and splits the stored
// blob back into nonce and ciphertext.
func ParseEncryptedKeyRecord(blob []byte) (*EncryptedKeyRecord, error) {
	if len(blob) != wrappedLen {
		return nil, fmt.Errorf("%w: wrapped key must be %d bytes, got %d", common.ErrorValidation, wrappedLen, len(blob))
	}
	return &EncryptedKeyRecord{
		Nonce:      blob[:NonceSize],
		Ciphertext: blob[NonceSize:],
	}, nil
}

// KeyVault envelope-encrypts per-user data keys under a single master key.
// The master key is held in memory only; it is never persisted by this
// component.
type KeyVault struct {
	aead cipher.AEAD
}

// NewKeyVault refuses to initialize with a master key that is not exactly
// 256 bits. Fail-fast: a misconfigured vault must never silently wrap keys
// under weak material.
func NewKeyVault(masterKey []byte) (*KeyVault, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("%w: master key must be %d bytes, got %d", common.ErrorValidation, KeySize, len(masterKey))
	}
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &KeyVault{aead: aead}, nil
}

// Wrap envelope-encrypts a 32-byte data key. Each call uses a fresh random
// nonce, so wrapping the same key twice yields different records.
func (v *KeyVault) Wrap(plainKey []byte) (*EncryptedKeyRecord, error) {
	if len(plainKey) != KeySize {
		return nil, fmt.Errorf("%w: data key must be %d bytes, got %d", common.ErrorValidation, KeySize, len(plainKey))
	}
	nonce := common.GenerateRandByteArray(NonceSize)
	ct := v.aead.Seal(nil, nonce, plainKey, nil)
	return &EncryptedKeyRecord{Nonce: nonce, Ciphertext: ct}, nil
}

// Unwrap recovers the data key. It fails closed with
// common.ErrDecryptionFailed if the tag does not verify (tampered record or
// wrong master key) and never returns partial plaintext.
func (v *KeyVault) Unwrap(record *EncryptedKeyRecord) ([]byte, error) {
	if record == nil || len(record.Nonce) != NonceSize {
		return nil, common.ErrDecryptionFailed
	}
	key, err := v.aead.Open(nil, record.Nonce, record.Ciphertext, nil)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	return key, nil
}

// NewDataKey generates a fresh random 32-byte data key.
func NewDataKey() []byte {
	return common.GenerateRandByteArray(KeySize)
}

// DeriveMasterKey stretches an operator passphrase into a 256-bit master key
// with argon2id. Used when the deployment supplies a passphrase instead of a
// raw hex key.
func DeriveMasterKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}
