package revokedtokens

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

func TestRevoke_Inserts(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	exp := time.Now().Add(time.Hour)
	q := `(?s)^\s*INSERT\s+INTO\s+revoked_tokens\b.*ON\s+CONFLICT\s*\(jti\)\s*DO\s+NOTHING`
	mock.ExpectExec(q).WithArgs("jti-1", exp).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Revoke(context.Background(), "jti-1", exp))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevoke_DuplicateIsIdempotent(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	exp := time.Now().Add(time.Hour)
	mock.ExpectExec(`INSERT\s+INTO\s+revoked_tokens`).WithArgs("jti-1", exp).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Revoke(context.Background(), "jti-1", exp))
}

func TestIsRevoked(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)SELECT\s+EXISTS\b.*FROM\s+revoked_tokens\b.*expires_at\s*>\s*now\(\)`
	mock.ExpectQuery(q).WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	revoked, err := repo.IsRevoked(context.Background(), "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestIsRevoked_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+EXISTS`).WithArgs("jti-1").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.IsRevoked(context.Background(), "jti-1")
	require.Error(t, err)
}

func TestPurgeExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+revoked_tokens\s+WHERE\s+expires_at\s*<=\s*now\(\)`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.PurgeExpired(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
