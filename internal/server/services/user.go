package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cryptguard/cryptguard/internal/common"
	"github.com/cryptguard/cryptguard/internal/logging"
	"github.com/cryptguard/cryptguard/internal/server/auth"
	"github.com/cryptguard/cryptguard/internal/server/config"
	"github.com/cryptguard/cryptguard/internal/server/models"
	"github.com/cryptguard/cryptguard/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenService handles wallet-signature authentication and the JWT
// lifecycle: issuing pairs, refreshing access tokens, and revocation.
type TokenService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	accessSecret                 []byte
	refreshSecret                []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	audit                        *logging.Audit
}

func NewTokenService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, audit *logging.Audit) *TokenService {
	return &TokenService{
		db:                           db,
		repomanager:                  m,
		accessSecret:                 []byte(cfg.AccessTokenSecret),
		refreshSecret:                []byte(cfg.RefreshTokenSecret),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		audit:                        audit,
	}
}

// Authenticate verifies that signature was produced over the fixed challenge
// message by the claimed address, upserts the user, and mints a token pair.
func (s *TokenService) Authenticate(ctx context.Context, claimedAddress, signatureHex string) (*TokenPair, *models.User, error) {
	address, err := auth.VerifySignature(claimedAddress, signatureHex)
	if err != nil {
		s.audit.Event(ctx, "AUTH_REJECTED", "address", claimedAddress)
		return nil, nil, err
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetOrCreate(ctx, address)
	if err != nil {
		return nil, nil, fmt.Errorf("upserting user: %w", err)
	}

	pair, err := s.generateTokenPair(address)
	if err != nil {
		return nil, nil, common.ErrorInternal
	}

	s.audit.Event(ctx, "USER_AUTHENTICATED", "address", address, "loginCount", user.LoginCount)
	return pair, user, nil
}

// Refresh validates the refresh token and mints a fresh access token. The
// refresh token itself is not rotated; it stays valid until expiry or
// logout.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := auth.ParseToken(refreshToken, s.refreshSecret)
	if err != nil {
		return "", err
	}

	revoked, err := s.repomanager.RevokedTokens(s.db).IsRevoked(ctx, claims.ID)
	if err != nil {
		return "", fmt.Errorf("checking revocation: %w", err)
	}
	if revoked {
		s.audit.Event(ctx, "REVOKED_TOKEN_REUSE", "address", claims.Address, "jti", claims.ID)
		return "", common.ErrTokenRevoked
	}

	access, err := auth.GenerateAccessToken(claims.Address, s.accessSecret, s.accessTokenValidityDuration)
	if err != nil {
		return "", common.ErrorInternal
	}

	s.audit.Event(ctx, "TOKEN_REFRESHED", "address", claims.Address)
	return access, nil
}

// Logout revokes the refresh token's jti. An already-expired token needs no
// revocation and logs out successfully.
func (s *TokenService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := auth.ParseToken(refreshToken, s.refreshSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil
		}
		return err
	}

	if err := s.repomanager.RevokedTokens(s.db).Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}

	s.audit.Event(ctx, "USER_LOGGED_OUT", "address", claims.Address)
	return nil
}

// ValidateAccess checks an access token and returns its claims.
func (s *TokenService) ValidateAccess(ctx context.Context, accessToken string) (*auth.Claims, error) {
	return auth.ParseToken(accessToken, s.accessSecret)
}

// PurgeExpired removes revocation entries and replay nonces whose tokens
// have expired anyway. Called periodically by the server.
func (s *TokenService) PurgeExpired(ctx context.Context) error {
	if err := s.repomanager.RevokedTokens(s.db).PurgeExpired(ctx); err != nil {
		return err
	}
	return s.repomanager.ReplayNonces(s.db).PurgeExpired(ctx)
}

func (s *TokenService) generateTokenPair(address string) (*TokenPair, error) {
	access, err := auth.GenerateAccessToken(address, s.accessSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, err
	}
	refresh, err := auth.GenerateRefreshToken(address, s.refreshSecret, s.refreshTokenValidityDuration)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
