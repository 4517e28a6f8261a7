package filerecords

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cryptguard/cryptguard/internal/common"
	"github.com/cryptguard/cryptguard/internal/dbx"
	"github.com/cryptguard/cryptguard/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `id, owner_address, storage_cid, metadata_cid, file_hash,
	file_name, file_size, file_type, upload_time, blockchain_tx_hash,
	ledger_index, verified, download_count`

func (r *PostgresRepository) Create(ctx context.Context, record *models.FileRecord) (*models.FileRecord, error) {
	query := `
		INSERT INTO file_records
			(owner_address, storage_cid, metadata_cid, file_hash, file_name,
			 file_size, file_type, blockchain_tx_hash, ledger_index, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, upload_time, download_count
	`
	err := r.db.QueryRowContext(ctx, query,
		record.OwnerAddress, record.StorageCID, record.MetadataCID,
		record.FileHash, record.FileName, record.FileSize, record.FileType,
		record.BlockchainTxHash, record.LedgerIndex, record.Verified).
		Scan(&record.ID, &record.UploadTime, &record.DownloadCount)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return record, nil
}

func (r *PostgresRepository) ExistsByOwnerAndHash(ctx context.Context, owner, fileHash string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM file_records
			WHERE owner_address = $1 AND file_hash = $2
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, owner, fileHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id, owner string) (*models.FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM file_records
		WHERE id = $1 AND owner_address = $2
	`, recordColumns)
	return r.scanOne(r.db.QueryRowContext(ctx, query, id, owner))
}

func (r *PostgresRepository) GetByOwnerAndCID(ctx context.Context, owner, storageCID string) (*models.FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM file_records
		WHERE owner_address = $1 AND storage_cid = $2
	`, recordColumns)
	return r.scanOne(r.db.QueryRowContext(ctx, query, owner, storageCID))
}

func (r *PostgresRepository) ListRecent(ctx context.Context, owner string, limit int) ([]*models.FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM file_records
		WHERE owner_address = $1
		ORDER BY upload_time DESC
		LIMIT $2
	`, recordColumns)
	return r.list(ctx, query, owner, limit)
}

func (r *PostgresRepository) ListAll(ctx context.Context, owner string) ([]*models.FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM file_records
		WHERE owner_address = $1
		ORDER BY upload_time DESC
	`, recordColumns)
	return r.list(ctx, query, owner)
}

func (r *PostgresRepository) IncrementDownloadCount(ctx context.Context, id string) error {
	query := `
		UPDATE file_records
		SET download_count = download_count + 1
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id, owner string) error {
	query := `
		DELETE FROM file_records
		WHERE id = $1 AND owner_address = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, owner)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.FileRecord, error) {
	rec := &models.FileRecord{}
	err := row.Scan(&rec.ID, &rec.OwnerAddress, &rec.StorageCID, &rec.MetadataCID,
		&rec.FileHash, &rec.FileName, &rec.FileSize, &rec.FileType,
		&rec.UploadTime, &rec.BlockchainTxHash, &rec.LedgerIndex,
		&rec.Verified, &rec.DownloadCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var records []*models.FileRecord
	for rows.Next() {
		rec := &models.FileRecord{}
		err := rows.Scan(&rec.ID, &rec.OwnerAddress, &rec.StorageCID, &rec.MetadataCID,
			&rec.FileHash, &rec.FileName, &rec.FileSize, &rec.FileType,
			&rec.UploadTime, &rec.BlockchainTxHash, &rec.LedgerIndex,
			&rec.Verified, &rec.DownloadCount)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return records, nil
}
