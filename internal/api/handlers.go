package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/provscan/internal/apperr"
	"github.com/starford/provscan/internal/provservice"
	"github.com/starford/provscan/internal/tag"
)

// Handler holds API route handlers.
type Handler struct {
	svc *provservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *provservice.Service) *Handler {
	return &Handler{svc: svc}
}

// Scan handles GET /api/scan?path=.
//
//	@Summary		Resolve the provenance of one file
//	@Tags			scan
//	@Produce		json
//	@Param			path	query		string	true	"File path"
//	@Success		200		{object}	ScanResult
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/scan [get]
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	res, err := h.svc.Scan(r.Context(), path)
	if err != nil {
		writeScanError(w, path, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Tree handles GET /api/tree?path=.
//
//	@Summary		Resolve the provenance of every tagged entry under a directory
//	@Tags			scan
//	@Produce		json
//	@Param			path	query		string	true	"Directory path"
//	@Success		200		{object}	TreeResponse
//	@Security		BearerAuth
//	@Router			/tree [get]
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	res, err := h.svc.ScanTree(r.Context(), path)
	if err != nil {
		writeScanError(w, path, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetRecord handles GET /api/records/{pk}.
//
//	@Summary		Look up a provenance record by key
//	@Tags			records
//	@Produce		json
//	@Param			pk	path		string	true	"Key as 0x-hex or decimal"
//	@Success		200	{object}	RecordDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{pk} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	key, err := tag.ParseKey(chi.URLParam(r, "pk"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid key"))
		return
	}
	rec, err := h.svc.Record(r.Context(), key)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get record failed", slog.String("pk", key.String()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// IndexInfo handles GET /api/index.
func (h *Handler) IndexInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Info())
}
