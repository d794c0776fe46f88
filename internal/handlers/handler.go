package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/eldtechnologies/ironpulse/internal/relay"
	"github.com/eldtechnologies/ironpulse/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db       store.Store
	redis    *store.RedisStore
	registry *relay.Registry
	messages *relay.Messages
}

// NewHandler creates a new Handler. redis may be nil, which disables the
// journal endpoints.
func NewHandler(db store.Store, redis *store.RedisStore, registry *relay.Registry, messages *relay.Messages) *Handler {
	return &Handler{db: db, redis: redis, registry: registry, messages: messages}
}

// JournalEnabled reports whether incidents can be listed and resolved.
func (h *Handler) JournalEnabled() bool {
	return h.redis != nil
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
