package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cryptguard/cryptguard/internal/common"
	"github.com/cryptguard/cryptguard/internal/dbx"
	"github.com/cryptguard/cryptguard/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetOrCreate(ctx context.Context, address string) (*models.User, error) {
	query := `
		INSERT INTO users (address)
		VALUES ($1)
		ON CONFLICT (address) DO UPDATE
		SET last_login = now(), login_count = users.login_count + 1
		RETURNING address, encrypted_key, created_at, last_login, login_count
	`
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, address).
		Scan(&user.Address, &user.EncryptedKey, &user.CreatedAt, &user.LastLogin, &user.LoginCount)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) Get(ctx context.Context, address string) (*models.User, error) {
	query := `
		SELECT address, encrypted_key, created_at, last_login, login_count
		FROM users
		WHERE address = $1
	`
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, address).
		Scan(&user.Address, &user.EncryptedKey, &user.CreatedAt, &user.LastLogin, &user.LoginCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// SetEncryptedKeyIfAbsent relies on the WHERE clause for atomicity: of two
// concurrent writers exactly one matches encrypted_key IS NULL.
func (r *PostgresRepository) SetEncryptedKeyIfAbsent(ctx context.Context, address string, encryptedKey []byte) (bool, error) {
	query := `
		UPDATE users
		SET encrypted_key = $2
		WHERE address = $1 AND encrypted_key IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, address, encryptedKey)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}
