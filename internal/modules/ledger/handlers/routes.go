package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/activities", h.HandleGetActivities)
		r.Get("/export.csv", h.HandleExportCSV)

		r.Route("/managers", func(r chi.Router) {
			r.Get("/", h.HandleGetManagers)
			r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetManager(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/{id}/timeline", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetTimeline(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/{id}/holdings", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetHoldings(w, r, chi.URLParam(r, "id"))
			})
		})
	})
}
