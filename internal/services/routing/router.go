// Package routing picks the model for one request. Selection is a pure
// read over the registry, the health tracker and the budget service;
// the router keeps no state of its own.
package routing

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/amerfu/arbiter/internal/models"
	"github.com/amerfu/arbiter/internal/services/budget"
	"github.com/amerfu/arbiter/internal/services/classifier"
	"github.com/amerfu/arbiter/internal/services/health"
	"github.com/amerfu/arbiter/internal/services/monitoring/metrics"
	"github.com/amerfu/arbiter/internal/services/registry"
)

// Tier thresholds and the economy cutoff. Complexity is bimodal today
// (0.1 / 0.9) but the thresholds are written for the full range.
const (
	ReasoningThreshold = 0.8
	SmartThreshold     = 0.4

	// EconomyCutoff is the remaining-budget fraction below which SMART
	// traffic is downgraded to FAST. REASONING is never downgraded.
	EconomyCutoff = 0.10
)

// NoHealthyModelError means no registered model at the target tier (or
// its domain pool) survived the health and exclusion filters.
type NoHealthyModelError struct {
	Tier models.Tier
}

func (e *NoHealthyModelError) Error() string {
	return fmt.Sprintf("no healthy model available at tier %s", e.Tier)
}

// Router selects models. Safe for concurrent use; all state lives in
// the collaborators.
type Router struct {
	registry *registry.Registry
	tracker  *health.Tracker
	budget   budget.Service // may be nil: no economy mode
	logger   *zap.Logger
}

// New builds a router. A nil budget service disables economy mode.
func New(reg *registry.Registry, tracker *health.Tracker, budgetSvc budget.Service, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry: reg,
		tracker:  tracker,
		budget:   budgetSvc,
		logger:   logger,
	}
}

// Route picks the model for one request. excluded holds providers that
// already failed retriably within this request and must not be chosen
// again.
func (r *Router) Route(ctx context.Context, c classifier.Classification, userID string, excluded map[string]bool) (models.ModelDefinition, error) {
	tier := r.baselineTier(c)
	tier = r.applyEconomyMode(ctx, tier, userID)

	if c.Domain != "" {
		if def, ok := r.selectDomain(c.Domain, tier, excluded); ok {
			metrics.RecordRoutingDecision(def.Tier.String())
			r.logger.Debug("routed to domain specialist",
				zap.String("model", def.ID),
				zap.String("domain", c.Domain),
				zap.Stringer("tier", def.Tier))
			return def, nil
		}
	}

	def, ok := r.selectGeneric(tier, excluded)
	if !ok {
		return models.ModelDefinition{}, &NoHealthyModelError{Tier: tier}
	}
	metrics.RecordRoutingDecision(def.Tier.String())
	r.logger.Debug("routed",
		zap.String("model", def.ID),
		zap.Stringer("tier", def.Tier),
		zap.Float64("complexity", c.Complexity))
	return def, nil
}

// baselineTier maps the classification to a capability tier. Safety-
// critical prompts always get the top tier regardless of complexity.
func (r *Router) baselineTier(c classifier.Classification) models.Tier {
	if c.Complexity >= ReasoningThreshold || strings.EqualFold(c.Domain, classifier.DomainSafetyCritical) {
		return models.TierReasoning
	}
	if c.Complexity >= SmartThreshold {
		return models.TierSmart
	}
	return models.TierFast
}

// applyEconomyMode downgrades SMART to FAST when the user is nearly out
// of budget. The budget read fails open: on error the baseline tier
// stands.
func (r *Router) applyEconomyMode(ctx context.Context, tier models.Tier, userID string) models.Tier {
	if r.budget == nil || tier != models.TierSmart {
		return tier
	}

	remaining, err := r.budget.RemainingBudgetPercentage(ctx, userID)
	if err != nil {
		r.logger.Warn("budget read failed, keeping baseline tier",
			zap.String("user", userID),
			zap.Error(err))
		return tier
	}
	if remaining < EconomyCutoff {
		r.logger.Info("economy mode: downgrading smart to fast",
			zap.String("user", userID),
			zap.Float64("remaining", remaining))
		metrics.RecordEconomyDowngrade()
		return models.TierFast
	}
	return tier
}

// selectDomain prefers a specialist at the target tier, then any
// available specialist. A specialist at the wrong tier still beats a
// generic model at the right one.
func (r *Router) selectDomain(domain string, tier models.Tier, excluded map[string]bool) (models.ModelDefinition, bool) {
	candidates := r.available(r.registry.List(registry.Filter{Domain: domain}), excluded)
	if len(candidates) == 0 {
		return models.ModelDefinition{}, false
	}
	for _, def := range candidates {
		if def.Tier == tier {
			return def, true
		}
	}
	return candidates[0], true
}

func (r *Router) selectGeneric(tier models.Tier, excluded map[string]bool) (models.ModelDefinition, bool) {
	candidates := r.available(r.registry.List(registry.Filter{Tier: tier}), excluded)
	if len(candidates) == 0 {
		return models.ModelDefinition{}, false
	}
	return candidates[0], true
}

// available filters a registry snapshot down to models that may take
// traffic right now, preserving snapshot order.
func (r *Router) available(defs []models.ModelDefinition, excluded map[string]bool) []models.ModelDefinition {
	result := defs[:0]
	for _, def := range defs {
		if !def.Healthy {
			continue
		}
		if excluded[def.Provider] {
			continue
		}
		if r.tracker != nil && !r.tracker.IsHealthy(def.Provider) {
			continue
		}
		result = append(result, def)
	}
	return result
}
