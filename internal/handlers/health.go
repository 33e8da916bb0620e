// Package handlers implements the gateway's HTTP surface: chat
// completions, catalog introspection and liveness probes.
package handlers

import (
	"encoding/json"
	"net/http"

	"gorm.io/gorm"

	"github.com/amerfu/arbiter/internal/services/health"
	"github.com/amerfu/arbiter/internal/services/registry"
)

type serviceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status   string                   `json:"status"`
	Services map[string]serviceHealth `json:"services"`
}

// HealthHandler serves liveness and readiness. The database is
// optional; a nil db is simply not reported.
type HealthHandler struct {
	db       *gorm.DB
	registry *registry.Registry
	tracker  *health.Tracker
}

func NewHealthHandler(db *gorm.DB, reg *registry.Registry, tracker *health.Tracker) *HealthHandler {
	return &HealthHandler{db: db, registry: reg, tracker: tracker}
}

// Health godoc
// @Summary Liveness probe
// @Success 200 {object} healthResponse
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := healthResponse{
		Status:   "ok",
		Services: make(map[string]serviceHealth),
	}

	if h.db != nil {
		if sqlDB, err := h.db.DB(); err == nil && sqlDB.PingContext(r.Context()) == nil {
			response.Services["database"] = serviceHealth{Status: "healthy"}
		} else {
			response.Services["database"] = serviceHealth{Status: "unhealthy", Message: "database ping failed"}
			response.Status = "degraded"
		}
	}

	status := http.StatusOK
	if response.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// Ready godoc
// @Summary Readiness probe
// @Success 200 {object} map[string]interface{}
// @Router /ready [get]
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	// The gateway can serve as soon as it has models to route to.
	if h.registry.Len() == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
			"error":  "no models registered",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"models": h.registry.Len(),
	})
}

// ProviderHealth godoc
// @Summary Circuit breaker state per provider
// @Success 200 {object} map[string]interface{}
// @Router /v1/providers/health [get]
func (h *HealthHandler) ProviderHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": h.tracker.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    http.StatusText(status),
		},
	})
}
