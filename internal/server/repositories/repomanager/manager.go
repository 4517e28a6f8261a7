package repomanager

import (
	"context"
	"database/sql"

	"github.com/cryptguard/cryptguard/internal/dbx"
	"github.com/cryptguard/cryptguard/internal/server/repositories/filerecords"
	"github.com/cryptguard/cryptguard/internal/server/repositories/replaynonces"
	"github.com/cryptguard/cryptguard/internal/server/repositories/revokedtokens"
	"github.com/cryptguard/cryptguard/internal/server/repositories/users"
)

// RepositoryManager vends repository implementations bound to a DBTX
// (either the pool or a transaction) and owns schema migrations.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	FileRecords(db dbx.DBTX) filerecords.Repository
	RevokedTokens(db dbx.DBTX) revokedtokens.Repository
	ReplayNonces(db dbx.DBTX) replaynonces.Repository
}
