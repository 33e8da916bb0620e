// Package registry holds the in-memory catalog of routable models.
//
// Registration order is significant: List returns models in first
// registration order and the router breaks ties by position, so the
// order models are configured in is the order they are preferred in.
package registry

import (
	"sync"

	"go.uber.org/zap"

	"github.com/amerfu/arbiter/internal/models"
)

// Filter narrows a List call. Zero fields do not filter; set fields
// are ANDed together.
type Filter struct {
	// Tier matches exactly when non-zero.
	Tier models.Tier
	// Domain matches case-insensitively when non-empty. Models with
	// no domain never match a domain filter.
	Domain string
}

// Stats summarizes the registry for the admin surface.
type Stats struct {
	TotalModels int            `json:"total_models"`
	Providers   int            `json:"providers"`
	ByTier      map[string]int `json:"by_tier"`
	ByDomain    map[string]int `json:"by_domain,omitempty"`
}

// Registry is a concurrency-safe model catalog. Registering an existing
// ID replaces the definition in place, keeping its position.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]models.ModelDefinition
	order  []string
	logger *zap.Logger
}

// New returns an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byID:   make(map[string]models.ModelDefinition),
		logger: logger,
	}
}

// Register upserts a definition. New IDs append to the preference
// order; existing IDs are replaced where they stand.
func (r *Registry) Register(def models.ModelDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[def.ID]; !exists {
		r.order = append(r.order, def.ID)
		r.logger.Debug("model registered",
			zap.String("model", def.ID),
			zap.String("provider", def.Provider),
			zap.Stringer("tier", def.Tier))
	} else {
		r.logger.Debug("model definition replaced", zap.String("model", def.ID))
	}
	r.byID[def.ID] = def
}

// Get looks up a definition by its exact ID.
func (r *Registry) Get(id string) (models.ModelDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byID[id]
	return def, ok
}

// List returns matching definitions in registration order. The result
// is a snapshot; callers may keep or mutate it freely.
func (r *Registry) List(filter Filter) []models.ModelDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]models.ModelDefinition, 0, len(r.order))
	for _, id := range r.order {
		def := r.byID[id]
		if filter.Tier != 0 && def.Tier != filter.Tier {
			continue
		}
		if filter.Domain != "" && !def.MatchesDomain(filter.Domain) {
			continue
		}
		result = append(result, def)
	}
	return result
}

// All returns every definition in registration order.
func (r *Registry) All() []models.ModelDefinition {
	return r.List(Filter{})
}

// Clear removes every definition.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]models.ModelDefinition)
	r.order = r.order[:0]
}

// Len reports the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Stats summarizes the catalog.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalModels: len(r.byID),
		ByTier:      make(map[string]int),
		ByDomain:    make(map[string]int),
	}
	providers := make(map[string]struct{})
	for _, def := range r.byID {
		providers[def.Provider] = struct{}{}
		stats.ByTier[def.Tier.String()]++
		if def.Domain != "" {
			stats.ByDomain[def.Domain]++
		}
	}
	stats.Providers = len(providers)
	return stats
}
