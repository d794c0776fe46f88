package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass", "fail" or "skip"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health handles the health check endpoint. The store is required; Redis
// only backs the journal and connection limiting, so its absence is skipped.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	storeStart := time.Now()
	if err := h.db.Ping(ctx); err != nil {
		checks[h.db.Dialect()] = Check{Status: "fail", Message: "connection failed"}
		allHealthy = false
	} else {
		checks[h.db.Dialect()] = Check{Status: "pass", Latency: time.Since(storeStart).String()}
	}

	catalogStart := time.Now()
	if _, err := h.registry.List(ctx, 1); err != nil {
		checks["catalog"] = Check{Status: "fail", Message: "catalog unreadable"}
		allHealthy = false
	} else {
		checks["catalog"] = Check{Status: "pass", Latency: time.Since(catalogStart).String()}
	}

	if h.redis != nil {
		redisStart := time.Now()
		if err := h.redis.Ping(ctx); err != nil {
			checks["redis"] = Check{Status: "fail", Message: "connection failed"}
			allHealthy = false
		} else {
			c := Check{Status: "pass", Latency: time.Since(redisStart).String()}
			// Open incidents need an operator but do not make the relay unhealthy.
			if n, err := h.redis.CountIncidents(ctx); err == nil && n > 0 {
				c.Message = fmt.Sprintf("%d open incidents", n)
			}
			checks["redis"] = c
		}
	} else {
		checks["redis"] = Check{Status: "skip", Message: "not configured"}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	resp := HealthResponse{
		Status:    status,
		Version:   version,
		Instance:  os.Getenv("HOSTNAME"),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	h.JSON(w, statusCode, resp)
}
