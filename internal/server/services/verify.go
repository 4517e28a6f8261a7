package services

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cryptguard/cryptguard/internal/common"
	"github.com/cryptguard/cryptguard/internal/cryptox"
	"github.com/cryptguard/cryptguard/internal/ledger"
	"github.com/cryptguard/cryptguard/internal/logging"
	"github.com/cryptguard/cryptguard/internal/server/config"
	"github.com/cryptguard/cryptguard/internal/server/models"
	"github.com/cryptguard/cryptguard/internal/server/repositories/repomanager"
	"github.com/cryptguard/cryptguard/internal/storage"
)

// Verification outcomes, ordered from best to worst.
const (
	StatusVerified         = "VERIFIED"
	StatusMismatch         = "MISMATCH"
	StatusNotFoundOnLedger = "NOT_FOUND_ON_LEDGER"
	StatusDecryptionFailed = "DECRYPTION_FAILED"
)

// VerificationResult reports a full round-trip integrity check of one file.
type VerificationResult struct {
	Status       string
	FileID       string
	FileName     string
	StoredHash   string
	ComputedHash string
	CheckedAt    time.Time
}

// DownloadResult carries the decrypted plaintext back to the handler.
type DownloadResult struct {
	FileName string
	FileType string
	Data     []byte
}

// VerifyService re-fetches ciphertext, decrypts it, recomputes the content
// hash, and cross-checks the on-chain anchor.
type VerifyService struct {
	db                *sql.DB
	repomanager       repomanager.RepositoryManager
	store             storage.Store
	ledger            ledger.Client
	keys              *keyResolver
	audit             *logging.Audit
	dependencyTimeout time.Duration
}

func NewVerifyService(db *sql.DB, m repomanager.RepositoryManager, store storage.Store,
	lc ledger.Client, vault *cryptox.KeyVault, cfg *config.Config, audit *logging.Audit) *VerifyService {
	return &VerifyService{
		db:                db,
		repomanager:       m,
		store:             store,
		ledger:            lc,
		keys:              newKeyResolver(db, m, vault),
		audit:             audit,
		dependencyTimeout: cfg.DependencyTimeout,
	}
}

// Verify runs the integrity check for the owner's file. A failed decryption
// or hash mismatch is a result, not an error; only infrastructure failures
// surface as errors.
func (s *VerifyService) Verify(ctx context.Context, owner, fileID string, src KeySource) (*VerificationResult, error) {
	record, err := s.repomanager.FileRecords(s.db).GetByID(ctx, fileID, owner)
	if err != nil {
		return nil, err
	}

	result := &VerificationResult{
		FileID:     record.ID,
		FileName:   record.FileName,
		StoredHash: record.FileHash,
		CheckedAt:  time.Now().UTC(),
	}

	plaintext, err := s.fetchAndDecrypt(ctx, owner, record, src)
	if err != nil {
		if errors.Is(err, common.ErrDecryptionFailed) {
			result.Status = StatusDecryptionFailed
			s.auditResult(ctx, owner, result)
			return result, nil
		}
		return nil, err
	}

	result.ComputedHash = cryptox.FileHash(plaintext)
	common.WipeByteArray(plaintext)

	if result.ComputedHash != record.FileHash {
		result.Status = StatusMismatch
		s.auditResult(ctx, owner, result)
		return result, nil
	}

	anchored, err := s.checkLedger(ctx, record)
	if err != nil {
		return nil, err
	}
	if !anchored {
		result.Status = StatusNotFoundOnLedger
	} else {
		result.Status = StatusVerified
	}

	s.auditResult(ctx, owner, result)
	return result, nil
}

// Download decrypts the owner's file, addressed by its ciphertext CID, and
// returns the plaintext. Unlike Verify, failing any integrity check here is
// an error: the caller asked for the original content and must never
// silently receive something else.
func (s *VerifyService) Download(ctx context.Context, owner, storageCID string, src KeySource) (*DownloadResult, error) {
	record, err := s.repomanager.FileRecords(s.db).GetByOwnerAndCID(ctx, owner, storageCID)
	if err != nil {
		return nil, err
	}

	plaintext, err := s.fetchAndDecrypt(ctx, owner, record, src)
	if err != nil {
		if errors.Is(err, common.ErrDecryptionFailed) {
			s.audit.Event(ctx, "DECRYPTION_FAILED", "address", owner, "fileId", record.ID)
		}
		return nil, err
	}

	if computed := cryptox.FileHash(plaintext); computed != record.FileHash {
		common.WipeByteArray(plaintext)
		s.audit.Event(ctx, "INTEGRITY_MISMATCH", "address", owner, "fileId", record.ID)
		return nil, fmt.Errorf("content hash changed from %s: %w", record.FileHash, common.ErrIntegrityMismatch)
	}

	// Anchored records must also still match the ledger.
	if record.LedgerIndex != nil {
		anchored, err := s.checkLedger(ctx, record)
		if err != nil {
			common.WipeByteArray(plaintext)
			return nil, err
		}
		if !anchored {
			common.WipeByteArray(plaintext)
			return nil, fmt.Errorf("ledger record %d does not match: %w", *record.LedgerIndex, common.ErrNotAnchored)
		}
	}

	if err := s.repomanager.FileRecords(s.db).IncrementDownloadCount(ctx, record.ID); err != nil {
		return nil, fmt.Errorf("counting download: %w", err)
	}

	s.audit.Event(ctx, "FILE_DOWNLOADED", "address", owner, "fileId", record.ID)
	return &DownloadResult{
		FileName: record.FileName,
		FileType: record.FileType,
		Data:     plaintext,
	}, nil
}

func (s *VerifyService) fetchAndDecrypt(ctx context.Context, owner string, record *models.FileRecord, src KeySource) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.dependencyTimeout)
	defer cancel()

	ciphertext, err := s.store.Fetch(fetchCtx, record.StorageCID)
	if err != nil {
		return nil, err
	}

	metaBlob, err := s.store.Fetch(fetchCtx, record.MetadataCID)
	if err != nil {
		return nil, err
	}
	var meta fileMetadata
	if err := json.Unmarshal(metaBlob, &meta); err != nil {
		return nil, fmt.Errorf("decoding metadata for %s: %w", record.ID, common.ErrDecryptionFailed)
	}
	nonce, err := hex.DecodeString(meta.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decoding nonce for %s: %w", record.ID, common.ErrDecryptionFailed)
	}

	key, err := s.keys.resolve(ctx, owner, src)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	return cryptox.DecryptFile(ciphertext, nonce, key)
}

// checkLedger reports whether the record's anchor exists on-chain. Records
// confirmed without a transaction have no index and are never anchored.
func (s *VerifyService) checkLedger(ctx context.Context, record *models.FileRecord) (bool, error) {
	if record.LedgerIndex == nil {
		return false, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, s.dependencyTimeout)
	defer cancel()
	return s.ledger.VerifyFile(callCtx, *record.LedgerIndex, record.FileHash)
}

func (s *VerifyService) auditResult(ctx context.Context, owner string, result *VerificationResult) {
	s.audit.Event(ctx, "FILE_VERIFIED", "address", owner, "fileId", result.FileID, "status", result.Status)
}
