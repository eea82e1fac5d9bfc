// Package handlers provides HTTP handlers for score tables.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundtrail/fundtrail/internal/modules/scoring"
)

// Handler handles scoring HTTP requests
type Handler struct {
	service *scoring.Service
	scores  *scoring.Repository
	log     zerolog.Logger
}

// NewHandler creates a new scoring handler
func NewHandler(service *scoring.Service, scores *scoring.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		scores:  scores,
		log:     log.With().Str("handler", "scoring").Logger(),
	}
}

// HandleListTypes handles GET /api/scores
func (h *Handler) HandleListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.scores.Types()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list score types")
		http.Error(w, "Failed to list score types", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"registered": h.service.Scorers(),
			"computed":   types,
		},
	})
}

// HandleGetTable handles GET /api/scores/{type}
func (h *Handler) HandleGetTable(w http.ResponseWriter, r *http.Request, scoreType string) {
	records, err := h.service.Latest(scoreType)
	if err != nil {
		h.log.Error().Err(err).Str("score", scoreType).Msg("Failed to load score table")
		http.Error(w, "Failed to load score table", http.StatusInternalServerError)
		return
	}
	if records == nil {
		http.Error(w, "Score table not computed", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"type":    scoreType,
			"as_of":   records[0].AsOf.String(),
			"records": records,
			"count":   len(records),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleCompute handles POST /api/scores/compute
func (h *Handler) HandleCompute(w http.ResponseWriter, r *http.Request) {
	tables, err := h.service.ComputeAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Score computation failed")
		http.Error(w, "Score computation failed", http.StatusInternalServerError)
		return
	}

	counts := make(map[string]int, len(tables))
	for name, records := range tables {
		counts[name] = len(records)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"tables": counts,
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
