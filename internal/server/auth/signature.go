package auth

import (
	"fmt"
	"strings"

	"github.com/cryptguard/cryptguard/internal/common"
	"github.com/cryptguard/cryptguard/internal/cryptox"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// ChallengeMessage is the fixed message every wallet signs to authenticate.
// Changing it invalidates all previously derived wallet keys, so treat it as
// part of the on-disk format.
const ChallengeMessage = "Welcome to CryptGuard! Please sign this message to authenticate your account"

// RecoverAddress recovers the signer's account address from a 65-byte
// r||s||v signature over the personal-message envelope of msg.
func RecoverAddress(msg string, signatureHex string) (string, error) {
	sig, err := cryptox.DecodeSignature(signatureHex)
	if err != nil {
		return "", err
	}

	// Wallets emit r||s||v with v in {0,1} or {27,28}; the recovery code
	// wants the header byte first and offset by 27.
	v := sig[64]
	if v < 27 {
		v += 27
	}
	if v != 27 && v != 28 {
		return "", fmt.Errorf("%w: invalid recovery id", common.ErrorValidation)
	}
	compact := make([]byte, 65)
	compact[0] = v
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, hashPersonalMessage(msg))
	if err != nil {
		return "", fmt.Errorf("%w: signature recovery failed", common.ErrorUnauthorized)
	}

	raw := pub.SerializeUncompressed()
	h := sha3.NewLegacyKeccak256()
	h.Write(raw[1:]) // drop the 0x04 point prefix
	sum := h.Sum(nil)
	return "0x" + fmt.Sprintf("%x", sum[12:]), nil
}

// VerifySignature checks that signatureHex over the fixed challenge message
// was produced by claimedAddress. The comparison is case-insensitive; the
// returned address is the canonical lower-case form.
func VerifySignature(claimedAddress, signatureHex string) (string, error) {
	normalized, err := cryptox.NormalizeAddress(claimedAddress)
	if err != nil {
		return "", err
	}

	recovered, err := RecoverAddress(ChallengeMessage, signatureHex)
	if err != nil {
		return "", err
	}

	if !strings.EqualFold(recovered, normalized) {
		return "", fmt.Errorf("%w: signature does not match address", common.ErrorUnauthorized)
	}
	return normalized, nil
}

// hashPersonalMessage applies the personal-sign envelope before hashing, the
// same framing wallets use for eth_personalSign.
func hashPersonalMessage(msg string) []byte {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "\x19Ethereum Signed Message:\n%d%s", len(msg), msg)
	return h.Sum(nil)
}
