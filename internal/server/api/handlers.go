package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cryptguard/cryptguard/internal/common"
	"github.com/cryptguard/cryptguard/internal/cryptox"
	"github.com/cryptguard/cryptguard/internal/server/models"
	"github.com/cryptguard/cryptguard/internal/server/services"
)

type fileRecordResponse struct {
	ID               string `json:"id"`
	OwnerAddress     string `json:"ownerAddress"`
	StorageCID       string `json:"storageCid"`
	MetadataCID      string `json:"metadataCid"`
	FileHash         string `json:"fileHash"`
	FileName         string `json:"fileName"`
	FileSize         int64  `json:"fileSize"`
	FileType         string `json:"fileType"`
	UploadTime       string `json:"uploadTime"`
	BlockchainTxHash string `json:"blockchainTxHash,omitempty"`
	LedgerIndex      *int64 `json:"ledgerIndex,omitempty"`
	Verified         bool   `json:"verified"`
	DownloadCount    int64  `json:"downloadCount"`
}

func toFileRecordResponse(r *models.FileRecord) fileRecordResponse {
	return fileRecordResponse{
		ID:               r.ID,
		OwnerAddress:     r.OwnerAddress,
		StorageCID:       r.StorageCID,
		MetadataCID:      r.MetadataCID,
		FileHash:         r.FileHash,
		FileName:         r.FileName,
		FileSize:         r.FileSize,
		FileType:         r.FileType,
		UploadTime:       r.UploadTime.UTC().Format(time.RFC3339),
		BlockchainTxHash: r.BlockchainTxHash,
		LedgerIndex:      r.LedgerIndex,
		Verified:         r.Verified,
		DownloadCount:    r.DownloadCount,
	}
}

// requireOwner enforces that an address named in the request matches the
// authenticated token. A mismatch is a hard forbidden, never ignored.
func (s *Server) requireOwner(r *http.Request, claimed string) (string, error) {
	claims := claimsFrom(r.Context())
	if claims == nil {
		return "", common.ErrorUnauthorized
	}
	if claimed == "" {
		return claims.Address, nil
	}
	normalized, err := cryptox.NormalizeAddress(claimed)
	if err != nil {
		return "", err
	}
	if normalized != claims.Address {
		s.audit.Event(r.Context(), "ADDRESS_MISMATCH",
			"tokenAddress", claims.Address, "requestAddress", normalized, "path", r.URL.Path)
		return "", fmt.Errorf("address does not match credential: %w", common.ErrorForbidden)
	}
	return claims.Address, nil
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		writeError(w, fmt.Errorf("%w: address query parameter is required", common.ErrorValidation))
		return
	}

	var body struct {
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Signature == "" {
		writeError(w, fmt.Errorf("%w: signature is required", common.ErrorValidation))
		return
	}

	pair, user, err := s.tokens.Authenticate(r.Context(), address, body.Signature)
	if err != nil {
		writeError(w, err)
		return
	}

	setTokenCookie(w, r, accessCookieName, pair.AccessToken, s.cfg.AccessTokenValidityDuration)
	setTokenCookie(w, r, refreshCookieName, pair.RefreshToken, s.cfg.RefreshTokenValidityDuration)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user": map[string]any{
			"address":    user.Address,
			"loginCount": user.LoginCount,
			"createdAt":  user.CreatedAt.UTC().Format(time.RFC3339),
			"lastLogin":  user.LastLogin.UTC().Format(time.RFC3339),
		},
	})
}

func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		writeError(w, fmt.Errorf("missing refresh credential: %w", common.ErrorUnauthorized))
		return
	}

	access, err := s.tokens.Refresh(r.Context(), cookie.Value)
	if err != nil {
		writeError(w, err)
		return
	}

	setTokenCookie(w, r, accessCookieName, access, s.cfg.AccessTokenValidityDuration)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		if err := s.tokens.Logout(r.Context(), cookie.Value); err != nil {
			writeError(w, err)
			return
		}
	}

	clearTokenCookie(w, accessCookieName)
	clearTokenCookie(w, refreshCookieName)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handlePreUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, fmt.Errorf("%w: parsing multipart form: %v", common.ErrorValidation, err))
		return
	}

	owner, err := s.requireOwner(r, r.FormValue("address"))
	if err != nil {
		writeError(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, fmt.Errorf("%w: file part is required", common.ErrorValidation))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, fmt.Errorf("%w: reading file: %v", common.ErrorValidation, err))
		return
	}

	fileType := header.Header.Get("Content-Type")
	src := services.MasterWrappedKey()
	if sig := r.FormValue("walletSignature"); sig != "" {
		src = services.WalletDerivedKey(sig)
	}

	res, err := s.uploads.PreUpload(r.Context(), owner, header.Filename, fileType,
		data, r.FormValue("fileHash"), src)
	if err != nil {
		var dup *services.DuplicateUploadError
		if errors.As(err, &dup) {
			writeJSON(w, http.StatusConflict, errorResponse{Error: dup.Error(), FileHash: dup.FileHash})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"fileHash":    res.FileHash,
		"storageCid":  res.StorageCID,
		"metadataCid": res.MetadataCID,
		"fileName":    res.FileName,
		"fileSize":    res.FileSize,
		"fileType":    res.FileType,
	})
}

func (s *Server) handleConfirmUpload(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Address          string `json:"address"`
		StorageCID       string `json:"storageCid"`
		MetadataCID      string `json:"metadataCid"`
		FileHash         string `json:"fileHash"`
		FileName         string `json:"fileName"`
		FileSize         int64  `json:"fileSize"`
		FileType         string `json:"fileType"`
		BlockchainTxHash string `json:"blockchainTxHash"`
		LedgerIndex      *int64 `json:"ledgerIndex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: malformed JSON body", common.ErrorValidation))
		return
	}

	owner, err := s.requireOwner(r, body.Address)
	if err != nil {
		writeError(w, err)
		return
	}

	record, err := s.uploads.Confirm(r.Context(), owner, &services.ConfirmRequest{
		StorageCID:  body.StorageCID,
		MetadataCID: body.MetadataCID,
		FileHash:    body.FileHash,
		FileName:    body.FileName,
		FileSize:    body.FileSize,
		FileType:    body.FileType,
		TxHash:      body.BlockchainTxHash,
		LedgerIndex: body.LedgerIndex,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toFileRecordResponse(record))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StorageCID      string `json:"storageCid"`
		WalletSignature string `json:"walletSignature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.StorageCID == "" {
		writeError(w, fmt.Errorf("%w: storageCid is required", common.ErrorValidation))
		return
	}

	owner, err := s.requireOwner(r, "")
	if err != nil {
		writeError(w, err)
		return
	}

	src := services.MasterWrappedKey()
	if body.WalletSignature != "" {
		src = services.WalletDerivedKey(body.WalletSignature)
	}

	res, err := s.verifier.Download(r.Context(), owner, body.StorageCID, src)
	if err != nil {
		writeError(w, err)
		return
	}

	contentType := res.FileType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.FileName))
	w.WriteHeader(http.StatusOK)
	w.Write(res.Data)
}

func (s *Server) handleVerifyFile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FileID          string `json:"fileId"`
		WalletSignature string `json:"walletSignature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.FileID == "" {
		writeError(w, fmt.Errorf("%w: fileId is required", common.ErrorValidation))
		return
	}

	owner, err := s.requireOwner(r, "")
	if err != nil {
		writeError(w, err)
		return
	}

	src := services.MasterWrappedKey()
	if body.WalletSignature != "" {
		src = services.WalletDerivedKey(body.WalletSignature)
	}

	res, err := s.verifier.Verify(r.Context(), owner, body.FileID, src)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       res.Status,
		"fileId":       res.FileID,
		"fileName":     res.FileName,
		"storedHash":   res.StoredHash,
		"computedHash": res.ComputedHash,
		"checkedAt":    res.CheckedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	owner, err := s.requireOwner(r, "")
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.files.Delete(r.Context(), owner, r.PathValue("fileID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"fileId":           result.FileID,
		"storageUnpinned":  result.StorageUnpinned,
		"metadataUnpinned": result.MetadataUnpinned,
		"note":             "ledger record, if any, is immutable and was not removed",
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	owner, err := s.requireOwner(r, r.PathValue("address"))
	if err != nil {
		writeError(w, err)
		return
	}

	records, err := s.files.ListRecent(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]fileRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toFileRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": out})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	owner, err := s.requireOwner(r, r.PathValue("address"))
	if err != nil {
		writeError(w, err)
		return
	}

	stats, err := s.files.Stats(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totalFiles":     stats.TotalFiles,
		"totalSize":      stats.TotalSize,
		"verifiedFiles":  stats.VerifiedFiles,
		"totalDownloads": stats.TotalDownloads,
		"categories":     stats.Categories,
	})
}
