package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/fundtrail/fundtrail/internal/di"
)

// RunHandlers serves pipeline run endpoints: history, triggering, and a
// websocket progress stream.
type RunHandlers struct {
	container *di.Container
	log       zerolog.Logger
}

// NewRunHandlers creates run handlers
func NewRunHandlers(container *di.Container, log zerolog.Logger) *RunHandlers {
	return &RunHandlers{
		container: container,
		log:       log.With().Str("handler", "runs").Logger(),
	}
}

// RegisterRoutes registers all run routes
func (h *RunHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", h.HandleListRuns)
		r.Post("/", h.HandleTriggerRun)
		r.Get("/stream", h.HandleStream)
		r.Get("/{id}", h.HandleGetRun)
	})
}

// HandleListRuns handles GET /api/runs
func (h *RunHandlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := h.container.RunRepo.List(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"runs":  runs,
			"count": len(runs),
		},
	})
}

// HandleGetRun handles GET /api/runs/{id}
func (h *RunHandlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.container.RunRepo.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load run")
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": run})
}

// HandleTriggerRun handles POST /api/runs. The run executes in the
// background; progress is observable on the stream endpoint.
func (h *RunHandlers) HandleTriggerRun(w http.ResponseWriter, r *http.Request) {
	go func() {
		if _, err := h.container.Pipeline.Run(context.Background()); err != nil {
			h.log.Error().Err(err).Msg("Triggered run failed")
		}
	}()

	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"data": map[string]string{"status": "started"},
	})
}

// HandleStream handles GET /api/runs/stream, a websocket carrying pipeline
// progress events until the client disconnects.
func (h *RunHandlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS already enforced by middleware
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	events, unsubscribe := h.container.Events.Subscribe()
	defer unsubscribe()

	h.log.Info().Msg("Client connected to run progress stream")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				h.log.Debug().Err(err).Msg("Progress stream write failed, closing")
				return
			}
		}
	}
}

// writeJSON writes a JSON response
func (h *RunHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
