package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all scoring routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/scores", func(r chi.Router) {
		r.Get("/", h.HandleListTypes)
		r.Post("/compute", h.HandleCompute)
		r.Get("/{type}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetTable(w, r, chi.URLParam(r, "type"))
		})
	})
}
