package journal

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler exposes the journal over HTTP.
type Handler struct {
	repo       *Repository
	reconciler *Reconciler
	log        zerolog.Logger
}

// NewHandler creates a journal HTTP handler.
func NewHandler(repo *Repository, reconciler *Reconciler, log zerolog.Logger) *Handler {
	return &Handler{
		repo:       repo,
		reconciler: reconciler,
		log:        log.With().Str("handler", "journal").Logger(),
	}
}

// RegisterRoutes mounts the journal endpoints on the given router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stats", h.getStats)
	r.Get("/history", h.getHistory)
	r.Post("/update", h.updateEntry)
	r.Post("/hydrate", h.triggerHydrate)
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	closed, err := h.repo.ClosedEntries()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load closed entries")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load journal"})
		return
	}
	writeJSON(w, http.StatusOK, Analyze(closed))
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.repo.History(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load history")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load journal"})
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type updateRequest struct {
	ID          int64   `json:"id"`
	StopPrice   float64 `json:"stop_price"`
	TargetPrice float64 `json:"target_price"`
	Notes       string  `json:"notes"`
}

func (h *Handler) updateEntry(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.ID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
		return
	}

	if err := h.repo.UpdatePlan(req.ID, req.StopPrice, req.TargetPrice, req.Notes); err != nil {
		h.log.Error().Err(err).Int64("id", req.ID).Msg("Failed to update entry")
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) triggerHydrate(w http.ResponseWriter, r *http.Request) {
	inserted, err := h.reconciler.Hydrate(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Manual hydration failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"rows_inserted": inserted})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
