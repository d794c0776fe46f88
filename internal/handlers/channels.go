package handlers

import (
	"net/http"
	"strconv"

	"github.com/eldtechnologies/ironpulse/internal/models"
)

// pendingCap bounds the per-channel pending count.
const pendingCap = 1000

// ChannelListResponse represents the channels list response.
type ChannelListResponse struct {
	Channels []models.Channel `json:"channels"`
	Total    int              `json:"total"`
}

// ListChannels lists catalogued channels with their pending message counts.
// A channel whose message collection cannot be read reports -1.
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20, 100)

	names, err := h.registry.List(r.Context(), limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	channels := make([]models.Channel, len(names))
	for i, name := range names {
		channels[i] = models.Channel{Name: name, Pending: -1}
		if n, err := h.messages.CountPending(r.Context(), name, pendingCap); err == nil {
			channels[i].Pending = n
		}
	}

	h.JSON(w, http.StatusOK, ChannelListResponse{
		Channels: channels,
		Total:    len(channels),
	})
}

// parseLimit reads the limit query parameter, clamped to max.
func parseLimit(r *http.Request, def, max int) int {
	limit := def
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if limit > max {
		limit = max
	}
	return limit
}
