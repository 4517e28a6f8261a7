package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cryptguard/cryptguard/internal/common"
)

type errorResponse struct {
	Error    string `json:"error"`
	FileHash string `json:"fileHash,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain sentinels onto HTTP statuses. Anything unmapped is
// an internal error and its detail stays out of the response.
func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}

	var status int
	switch {
	case errors.Is(err, common.ErrorValidation):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrTokenRevoked),
		errors.Is(err, common.ErrorUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, common.ErrorForbidden),
		errors.Is(err, common.ErrReplayDetected):
		status = http.StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrorAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, common.ErrDecryptionFailed),
		errors.Is(err, common.ErrIntegrityMismatch),
		errors.Is(err, common.ErrNotAnchored):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrDependencyUnavailable):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
		resp.Error = "internal server error"
	}

	writeJSON(w, status, resp)
}
