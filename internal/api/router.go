package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/provscan/internal/provservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *provservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/scan", h.Scan)
	r.Get("/tree", h.Tree)
	r.Get("/records/{pk}", h.GetRecord)
	r.Get("/index", h.IndexInfo)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
