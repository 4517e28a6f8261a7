package services

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cryptguard/cryptguard/internal/common"
	"github.com/cryptguard/cryptguard/internal/cryptox"
	"github.com/cryptguard/cryptguard/internal/logging"
	"github.com/cryptguard/cryptguard/internal/server/config"
	"github.com/cryptguard/cryptguard/internal/server/models"
	"github.com/cryptguard/cryptguard/internal/server/repositories/repomanager"
	"github.com/cryptguard/cryptguard/internal/storage"
)

// DuplicateUploadError reports that the owner already registered this exact
// content. Carries the hash so the client can locate the existing record.
type DuplicateUploadError struct {
	FileHash string
}

func (e *DuplicateUploadError) Error() string {
	return fmt.Sprintf("file with hash %s already uploaded", e.FileHash)
}

func (e *DuplicateUploadError) Unwrap() error { return common.ErrorAlreadyExists }

// fileMetadata is the sidecar document pinned next to each ciphertext blob.
// The nonce lives here rather than in the database so the ciphertext is
// decryptable from storage content alone.
type fileMetadata struct {
	Nonce            string `json:"nonce"`
	Owner            string `json:"owner"`
	UploadedAt       string `json:"uploadedAt"`
	OriginalFileName string `json:"originalFileName"`
}

// PreUploadResult is everything the client needs to anchor the file
// on-chain and later confirm the upload.
type PreUploadResult struct {
	FileHash    string
	StorageCID  string
	MetadataCID string
	FileName    string
	FileSize    int64
	FileType    string
}

// ConfirmRequest finalizes an upload after the client anchored the hash.
// TxHash and LedgerIndex are empty when the client skipped anchoring.
type ConfirmRequest struct {
	StorageCID  string
	MetadataCID string
	FileHash    string
	FileName    string
	FileSize    int64
	FileType    string
	TxHash      string
	LedgerIndex *int64
}

// UploadService runs the upload pipeline: hash, duplicate check, encrypt,
// publish ciphertext and metadata, and finally record confirmation.
type UploadService struct {
	db                *sql.DB
	repomanager       repomanager.RepositoryManager
	store             storage.Store
	keys              *keyResolver
	audit             *logging.Audit
	logger            logging.Logger
	dependencyTimeout time.Duration
}

func NewUploadService(db *sql.DB, m repomanager.RepositoryManager, store storage.Store,
	vault *cryptox.KeyVault, cfg *config.Config, logger logging.Logger, audit *logging.Audit) *UploadService {
	return &UploadService{
		db:                db,
		repomanager:       m,
		store:             store,
		keys:              newKeyResolver(db, m, vault),
		audit:             audit,
		logger:            logger,
		dependencyTimeout: cfg.DependencyTimeout,
	}
}

// PreUpload hashes and encrypts the plaintext and publishes ciphertext plus
// metadata to storage. Nothing is written to the database yet; the record
// only exists after Confirm. clientHash, when present, must match the
// server-side hash.
func (s *UploadService) PreUpload(ctx context.Context, owner, fileName, fileType string,
	data []byte, clientHash string, src KeySource) (*PreUploadResult, error) {

	name, err := sanitizeFileName(fileName)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", common.ErrorValidation)
	}

	fileHash := cryptox.FileHash(data)
	if clientHash != "" && !strings.EqualFold(clientHash, fileHash) {
		return nil, fmt.Errorf("%w: client hash %s does not match content", common.ErrorValidation, clientHash)
	}

	exists, err := s.repomanager.FileRecords(s.db).ExistsByOwnerAndHash(ctx, owner, fileHash)
	if err != nil {
		return nil, fmt.Errorf("checking duplicates: %w", err)
	}
	if exists {
		return nil, &DuplicateUploadError{FileHash: fileHash}
	}

	key, err := s.keys.resolve(ctx, owner, src)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	ciphertext, nonce, err := cryptox.EncryptFile(data, key)
	if err != nil {
		return nil, fmt.Errorf("encrypting file: %w", err)
	}

	pinCtx, cancel := context.WithTimeout(ctx, s.dependencyTimeout)
	defer cancel()

	storageCID, err := s.store.Pin(pinCtx, name, ciphertext)
	if err != nil {
		return nil, err
	}

	meta := fileMetadata{
		Nonce:            hex.EncodeToString(nonce),
		Owner:            owner,
		UploadedAt:       time.Now().UTC().Format(time.RFC3339),
		OriginalFileName: name,
	}
	metaBlob, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}

	metadataCID, err := s.store.Pin(pinCtx, name+".meta.json", metaBlob)
	if err != nil {
		// The ciphertext pin is now orphaned; release it best effort. The
		// pin context may be the very thing that expired, so the
		// compensation gets its own deadline.
		unpinCtx, unpinCancel := context.WithTimeout(context.WithoutCancel(ctx), s.dependencyTimeout)
		defer unpinCancel()
		if unpinErr := s.store.Unpin(unpinCtx, storageCID); unpinErr != nil {
			s.logger.Warn(ctx, "orphaned ciphertext pin left behind", "cid", storageCID, "error", unpinErr)
		}
		return nil, err
	}

	s.audit.Event(ctx, "FILE_PINNED", "address", owner, "fileHash", fileHash,
		"storageCid", storageCID, "metadataCid", metadataCID)

	return &PreUploadResult{
		FileHash:    fileHash,
		StorageCID:  storageCID,
		MetadataCID: metadataCID,
		FileName:    name,
		FileSize:    int64(len(data)),
		FileType:    fileType,
	}, nil
}

// Confirm writes the file record. The record is marked verified only when
// the client reports the anchoring transaction.
func (s *UploadService) Confirm(ctx context.Context, owner string, req *ConfirmRequest) (*models.FileRecord, error) {
	if req.StorageCID == "" || req.MetadataCID == "" || req.FileHash == "" || req.FileName == "" {
		return nil, fmt.Errorf("%w: storage cid, metadata cid, file hash and name are required", common.ErrorValidation)
	}
	if req.TxHash != "" && req.LedgerIndex == nil {
		return nil, fmt.Errorf("%w: anchored uploads must report their ledger index", common.ErrorValidation)
	}
	if req.LedgerIndex != nil && *req.LedgerIndex < 0 {
		return nil, fmt.Errorf("%w: ledger index must not be negative", common.ErrorValidation)
	}

	record := &models.FileRecord{
		OwnerAddress:     owner,
		StorageCID:       req.StorageCID,
		MetadataCID:      req.MetadataCID,
		FileHash:         req.FileHash,
		FileName:         req.FileName,
		FileSize:         req.FileSize,
		FileType:         req.FileType,
		BlockchainTxHash: req.TxHash,
		LedgerIndex:      req.LedgerIndex,
		Verified:         req.TxHash != "",
	}

	created, err := s.repomanager.FileRecords(s.db).Create(ctx, record)
	if err != nil {
		return nil, err
	}

	s.audit.Event(ctx, "UPLOAD_CONFIRMED", "address", owner, "fileId", created.ID,
		"fileHash", created.FileHash, "verified", created.Verified)
	return created, nil
}

const maxFileNameLen = 255

// sanitizeFileName strips any path component and control characters, and
// rejects names that would be empty or oversized afterwards. Backslashes are
// treated as separators too; clients on Windows send them.
func sanitizeFileName(fileName string) (string, error) {
	name := strings.TrimSpace(fileName)
	if i := strings.LastIndexByte(name, '\\'); i >= 0 {
		name = name[i+1:]
	}
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", fmt.Errorf("%w: invalid file name", common.ErrorValidation)
	}
	if len(name) > maxFileNameLen {
		return "", fmt.Errorf("%w: file name exceeds %d bytes", common.ErrorValidation, maxFileNameLen)
	}
	return name, nil
}
