package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/ironpulse/internal/models"
)

// JournalResponse lists open incidents.
type JournalResponse struct {
	Incidents []models.Incident `json:"incidents"`
	Total     int64             `json:"total"`
}

// ListIncidents returns open partial-operation incidents, newest first.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := parseLimit(r, 50, 500)

	incidents, err := h.redis.ListIncidents(ctx, limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "journal error")
		return
	}
	total, err := h.redis.CountIncidents(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "journal error")
		return
	}

	h.JSON(w, http.StatusOK, JournalResponse{Incidents: incidents, Total: total})
}

// ResolveIncident removes an incident once an operator has reconciled it.
func (h *Handler) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	found, err := h.redis.ResolveIncident(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "journal error")
		return
	}
	if !found {
		h.Error(w, http.StatusNotFound, "incident not found")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"id": id, "status": "resolved"})
}
