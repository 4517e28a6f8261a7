package replaynonces

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

// Register uses the primary key as the single-use gate: the first insert
// wins, replays hit the conflict and report false.
func (r *PostgresRepository) Register(ctx context.Context, nonce string, expiresAt time.Time) (bool, error) {
	query := `
		INSERT INTO replay_nonces (nonce, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (nonce) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, nonce, expiresAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) PurgeExpired(ctx context.Context) error {
	query := `
		DELETE FROM replay_nonces
		WHERE expires_at <= now()
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
