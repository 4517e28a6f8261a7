package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"time"

	"github.com/cryptguard/cryptguard/internal/dbx"
	"github.com/cryptguard/cryptguard/internal/logging"
	"github.com/cryptguard/cryptguard/internal/server/config"
	"github.com/cryptguard/cryptguard/internal/server/models"
	"github.com/cryptguard/cryptguard/internal/server/repositories/repomanager"
	"github.com/cryptguard/cryptguard/internal/storage"
)

const recentFilesLimit = 10

// UsageStats aggregates an owner's file index.
type UsageStats struct {
	TotalFiles     int64
	TotalSize      int64
	VerifiedFiles  int64
	TotalDownloads int64
	Categories     map[string]int64
}

// DeleteResult reports which cleanup steps succeeded. The index row is the
// source of truth; unpins are best effort and a partial result is not an
// error.
type DeleteResult struct {
	FileID           string
	StorageUnpinned  bool
	MetadataUnpinned bool
}

// FileService serves the owner-facing file index: recent listings, usage
// statistics, and deletion with storage cleanup.
type FileService struct {
	db                *sql.DB
	repomanager       repomanager.RepositoryManager
	store             storage.Store
	logger            logging.Logger
	audit             *logging.Audit
	dependencyTimeout time.Duration
}

func NewFileService(db *sql.DB, m repomanager.RepositoryManager, store storage.Store,
	cfg *config.Config, logger logging.Logger, audit *logging.Audit) *FileService {
	return &FileService{
		db:                db,
		repomanager:       m,
		store:             store,
		logger:            logger,
		audit:             audit,
		dependencyTimeout: cfg.DependencyTimeout,
	}
}

// ListRecent returns the owner's newest files, newest first.
func (s *FileService) ListRecent(ctx context.Context, owner string) ([]*models.FileRecord, error) {
	return s.repomanager.FileRecords(s.db).ListRecent(ctx, owner, recentFilesLimit)
}

// Stats aggregates totals and a per-category breakdown over all of the
// owner's files.
func (s *FileService) Stats(ctx context.Context, owner string) (*UsageStats, error) {
	records, err := s.repomanager.FileRecords(s.db).ListAll(ctx, owner)
	if err != nil {
		return nil, err
	}

	stats := &UsageStats{Categories: map[string]int64{}}
	for _, r := range records {
		stats.TotalFiles++
		stats.TotalSize += r.FileSize
		stats.TotalDownloads += r.DownloadCount
		if r.Verified {
			stats.VerifiedFiles++
		}
		stats.Categories[categorize(r.FileName)]++
	}
	return stats, nil
}

// Delete removes the local record and releases both pins. The ledger entry,
// if any, is immutable and stays behind. Read and delete run in one
// transaction so the pins we release belong to the row we removed.
func (s *FileService) Delete(ctx context.Context, owner, fileID string) (*DeleteResult, error) {
	var record *models.FileRecord
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.FileRecords(tx)
		var err error
		record, err = repo.GetByID(ctx, fileID, owner)
		if err != nil {
			return err
		}
		return repo.Delete(ctx, fileID, owner)
	})
	if err != nil {
		return nil, err
	}

	unpinCtx, cancel := context.WithTimeout(ctx, s.dependencyTimeout)
	defer cancel()

	result := &DeleteResult{FileID: fileID, StorageUnpinned: true, MetadataUnpinned: true}
	if err := s.store.Unpin(unpinCtx, record.StorageCID); err != nil {
		result.StorageUnpinned = false
		s.logger.Warn(ctx, "failed to unpin ciphertext", "cid", record.StorageCID, "error", err)
	}
	if err := s.store.Unpin(unpinCtx, record.MetadataCID); err != nil {
		result.MetadataUnpinned = false
		s.logger.Warn(ctx, "failed to unpin metadata", "cid", record.MetadataCID, "error", err)
	}

	s.audit.Event(ctx, "FILE_DELETED", "address", owner, "fileId", fileID,
		"storageUnpinned", result.StorageUnpinned, "metadataUnpinned", result.MetadataUnpinned)
	return result, nil
}

var categoryByExtension = map[string]string{
	".jpg": "images", ".jpeg": "images", ".png": "images", ".gif": "images",
	".webp": "images", ".svg": "images", ".bmp": "images",
	".pdf": "documents", ".doc": "documents", ".docx": "documents",
	".txt": "documents", ".md": "documents", ".odt": "documents",
	".xls": "documents", ".xlsx": "documents", ".csv": "documents",
	".mp4": "videos", ".mov": "videos", ".avi": "videos", ".mkv": "videos", ".webm": "videos",
	".mp3": "audio", ".wav": "audio", ".flac": "audio", ".ogg": "audio",
	".zip": "archives", ".tar": "archives", ".gz": "archives", ".rar": "archives", ".7z": "archives",
}

func categorize(fileName string) string {
	if c, ok := categoryByExtension[strings.ToLower(filepath.Ext(fileName))]; ok {
		return c
	}
	return "other"
}
