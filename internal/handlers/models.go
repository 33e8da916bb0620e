package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/amerfu/arbiter/internal/models"
	"github.com/amerfu/arbiter/internal/services/registry"
)

// ModelsHandler serves the registry over HTTP: the catalog listing and
// the admin upsert.
type ModelsHandler struct {
	registry *registry.Registry
	logger   *zap.Logger
}

func NewModelsHandler(reg *registry.Registry, logger *zap.Logger) *ModelsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelsHandler{registry: reg, logger: logger}
}

// List godoc
// @Summary List registered models
// @Param tier query string false "filter by tier (fast|smart|reasoning)"
// @Param domain query string false "filter by domain"
// @Success 200 {object} map[string]interface{}
// @Router /v1/models [get]
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter registry.Filter

	if tierParam := r.URL.Query().Get("tier"); tierParam != "" {
		tier, err := models.ParseTier(tierParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Tier = tier
	}
	filter.Domain = r.URL.Query().Get("domain")

	defs := h.registry.List(filter)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   defs,
		"stats":  h.registry.Stats(),
	})
}

// Register godoc
// @Summary Register or replace a model definition
// @Accept json
// @Param model body models.ModelDefinition true "model definition"
// @Success 201 {object} models.ModelDefinition
// @Failure 400 {object} models.ErrorResponse
// @Router /v1/models [post]
func (h *ModelsHandler) Register(w http.ResponseWriter, r *http.Request) {
	var def models.ModelDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "invalid model definition")
		return
	}
	if err := def.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.registry.Register(def)
	h.logger.Info("model registered via API",
		zap.String("model", def.ID),
		zap.String("provider", def.Provider))
	writeJSON(w, http.StatusCreated, def)
}
