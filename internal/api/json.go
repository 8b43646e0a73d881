package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"syscall"

	"github.com/starford/provscan/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeScanError maps scan failures onto HTTP statuses.
func writeScanError(w http.ResponseWriter, path string, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidPath):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrAttributeAbsent):
		writeJSON(w, http.StatusNotFound, errorBody("no provenance information"))
	case errors.Is(err, apperr.ErrMalformedAttribute):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENOENT):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		writeJSON(w, http.StatusForbidden, errorBody("permission denied"))
	default:
		slog.Error("scan failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
