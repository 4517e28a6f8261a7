package revokedtokens

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptguard/cryptguard/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	query := `
		INSERT INTO revoked_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, jti, expiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM revoked_tokens
			WHERE jti = $1 AND expires_at > now()
		)
	`
	var revoked bool
	if err := r.db.QueryRowContext(ctx, query, jti).Scan(&revoked); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return revoked, nil
}

func (r *PostgresRepository) PurgeExpired(ctx context.Context) error {
	query := `
		DELETE FROM revoked_tokens
		WHERE expires_at <= now()
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
