// Package handlers provides HTTP handlers for ledger queries.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundtrail/fundtrail/internal/domain"
	"github.com/fundtrail/fundtrail/internal/modules/ledger"
	"github.com/fundtrail/fundtrail/internal/modules/normalizer"
)

// Handler handles ledger HTTP requests
type Handler struct {
	ledger   *ledger.Repository
	identity *normalizer.IdentityRepository
	log      zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(ledgerRepo *ledger.Repository, identity *normalizer.IdentityRepository, log zerolog.Logger) *Handler {
	return &Handler{
		ledger:   ledgerRepo,
		identity: identity,
		log:      log.With().Str("handler", "ledger").Logger(),
	}
}

// HandleGetActivities handles GET /api/ledger/activities
func (h *Handler) HandleGetActivities(w http.ResponseWriter, r *http.Request) {
	q := ledger.Query{
		ManagerID: r.URL.Query().Get("manager"),
		Ticker:    r.URL.Query().Get("ticker"),
		Type:      domain.ActivityType(r.URL.Query().Get("type")),
		Limit:     500,
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			q.Limit = parsed
		}
	}
	if from := r.URL.Query().Get("from"); from != "" {
		parsed, err := domain.ParseQuarter(from)
		if err != nil {
			http.Error(w, "Invalid from quarter", http.StatusBadRequest)
			return
		}
		q.From = parsed
	}
	if to := r.URL.Query().Get("to"); to != "" {
		parsed, err := domain.ParseQuarter(to)
		if err != nil {
			http.Error(w, "Invalid to quarter", http.StatusBadRequest)
			return
		}
		q.To = parsed
	}

	activities, err := h.ledger.Activities(q)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query activities")
		http.Error(w, "Failed to query activities", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"activities": toActivityMaps(activities),
			"count":      len(activities),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetManagers handles GET /api/ledger/managers
func (h *Handler) HandleGetManagers(w http.ResponseWriter, r *http.Request) {
	managers, err := h.identity.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list managers")
		http.Error(w, "Failed to list managers", http.StatusInternalServerError)
		return
	}

	out := make([]map[string]interface{}, 0, len(managers))
	for _, m := range managers {
		out = append(out, managerMap(m))
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"managers": out,
			"count":    len(out),
		},
	})
}

// HandleGetManager handles GET /api/ledger/managers/{id}
func (h *Handler) HandleGetManager(w http.ResponseWriter, r *http.Request, id string) {
	manager, err := h.identity.Get(id)
	if err != nil {
		http.Error(w, "Manager not found", http.StatusNotFound)
		return
	}

	aliases, err := h.identity.Aliases(id)
	if err != nil {
		h.log.Error().Err(err).Str("manager", id).Msg("Failed to list aliases")
		http.Error(w, "Failed to list aliases", http.StatusInternalServerError)
		return
	}

	result := managerMap(manager)
	result["aliases"] = aliases

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": result})
}

// HandleGetTimeline handles GET /api/ledger/managers/{id}/timeline
func (h *Handler) HandleGetTimeline(w http.ResponseWriter, r *http.Request, id string) {
	timeline, err := h.ledger.Timeline(id)
	if err != nil {
		h.log.Error().Err(err).Str("manager", id).Msg("Failed to build timeline")
		http.Error(w, "Failed to build timeline", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"manager_id": id,
			"timeline":   timeline,
		},
	})
}

// HandleGetHoldings handles GET /api/ledger/managers/{id}/holdings?as_of=Q3+2019
func (h *Handler) HandleGetHoldings(w http.ResponseWriter, r *http.Request, id string) {
	var holdings []domain.HoldingRecord
	var err error

	if asOfStr := r.URL.Query().Get("as_of"); asOfStr != "" {
		asOf, parseErr := domain.ParseQuarter(asOfStr)
		if parseErr != nil {
			http.Error(w, "Invalid as_of quarter", http.StatusBadRequest)
			return
		}
		holdings, err = h.ledger.HoldingsAsOf(id, asOf)
	} else {
		holdings, err = h.ledger.Holdings(id)
	}
	if err != nil {
		h.log.Error().Err(err).Str("manager", id).Msg("Failed to query holdings")
		http.Error(w, "Failed to query holdings", http.StatusInternalServerError)
		return
	}

	out := make([]map[string]interface{}, 0, len(holdings))
	for _, hold := range holdings {
		out = append(out, map[string]interface{}{
			"ticker":           hold.Ticker,
			"quarter":          hold.Quarter.String(),
			"shares":           hold.Shares,
			"value_usd":        hold.ValueUSD,
			"pct_of_portfolio": hold.PctOfPortfolio,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"manager_id": id,
			"holdings":   out,
			"count":      len(out),
		},
	})
}

// HandleExportCSV handles GET /api/ledger/export.csv
func (h *Handler) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="activity_ledger.csv"`)

	if err := h.ledger.ExportCSV(w, r.URL.Query().Get("manager")); err != nil {
		h.log.Error().Err(err).Msg("Failed to export ledger")
	}
}

func toActivityMaps(activities []domain.ActivityRecord) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(activities))
	for _, a := range activities {
		out = append(out, map[string]interface{}{
			"manager_id":       a.ManagerID,
			"ticker":           a.Ticker,
			"quarter":          a.Quarter.String(),
			"activity_type":    string(a.Type),
			"shares":           a.Shares,
			"shares_delta":     a.SharesDelta,
			"value_usd":        a.ValueUSD,
			"pct_of_portfolio": a.PctOfPortfolio,
			"pct_delta":        a.PctDelta,
		})
	}
	return out
}

func managerMap(m domain.Manager) map[string]interface{} {
	return map[string]interface{}{
		"id":                 m.ID,
		"display_name":       m.DisplayName,
		"firm":               m.Firm,
		"first_seen_quarter": m.FirstSeenQuarter.String(),
		"last_seen_quarter":  m.LastSeenQuarter.String(),
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
