// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/cryptguard/cryptguard/internal/dbx"
	"github.com/cryptguard/cryptguard/internal/server/migrations"
	"github.com/cryptguard/cryptguard/internal/server/repositories/filerecords"
	"github.com/cryptguard/cryptguard/internal/server/repositories/replaynonces"
	"github.com/cryptguard/cryptguard/internal/server/repositories/revokedtokens"
	"github.com/cryptguard/cryptguard/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresRepositoryManager struct{}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) FileRecords(db dbx.DBTX) filerecords.Repository {
	return filerecords.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) RevokedTokens(db dbx.DBTX) revokedtokens.Repository {
	return revokedtokens.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) ReplayNonces(db dbx.DBTX) replaynonces.Repository {
	return replaynonces.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}
