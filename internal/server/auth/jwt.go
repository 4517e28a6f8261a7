// Package auth implements the credential primitives of the token service:
// HS256-signed access/refresh JWTs bound to an account address, and wallet
// signature recovery against the fixed challenge message.
package auth

import (
	"errors"
	"time"

	"github.com/cryptguard/cryptguard/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carries the registered claim set plus the account address the
// credential is bound to.
type Claims struct {
	jwt.RegisteredClaims
	Address string `json:"address"`
}

// GenerateAccessToken mints a short-lived access credential for address.
func GenerateAccessToken(address string, secretKey []byte, validity time.Duration) (string, error) {
	return signToken(address, "", secretKey, validity)
}

// GenerateRefreshToken mints a long-lived refresh credential. Each refresh
// token gets a unique jti so it can be individually revoked on logout.
func GenerateRefreshToken(address string, secretKey []byte, validity time.Duration) (string, error) {
	return signToken(address, uuid.NewString(), secretKey, validity)
}

func signToken(address, jti string, secretKey []byte, validity time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		Address: address,
	})
	return token.SignedString(secretKey)
}

// ParseToken validates signature and expiry and returns the claims.
// Expired credentials map to common.ErrTokenExpired, everything else that is
// wrong with the token maps to common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, common.ErrInvalidToken
		}
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	if !token.Valid || claims.Address == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
