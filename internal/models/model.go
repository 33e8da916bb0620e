package models

import (
	"fmt"
	"strings"
)

// ModelDefinition describes one routable upstream model. Definitions are
// value objects: the registry and router copy them freely.
type ModelDefinition struct {
	// ID is the routing identity, unique within a registry and
	// compared case-sensitively. By convention "provider/model-name".
	ID string `json:"id"`

	// Provider names the failure domain the model belongs to. Health
	// tracking and retry exclusion operate per provider, not per model.
	Provider string `json:"provider"`

	Tier Tier `json:"tier"`

	// Costs are dollars per 1000 tokens.
	InputCostPer1K  float64 `json:"cost_per_1k_input"`
	OutputCostPer1K float64 `json:"cost_per_1k_output"`

	// Healthy is the static availability flag set by configuration.
	// It marks models administratively out of service and is distinct
	// from the runtime health tracked per provider.
	Healthy bool `json:"is_healthy"`

	// Domain optionally tags the model as a specialist. Empty means
	// generalist. Domains compare case-insensitively.
	Domain string `json:"domain,omitempty"`
}

// Validate checks the invariants every definition must hold before it
// enters a registry.
func (m ModelDefinition) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("model definition missing id")
	}
	if strings.TrimSpace(m.Provider) == "" {
		return fmt.Errorf("model %q missing provider", m.ID)
	}
	if !m.Tier.Valid() {
		return fmt.Errorf("model %q has invalid tier %d", m.ID, int(m.Tier))
	}
	if m.InputCostPer1K < 0 || m.OutputCostPer1K < 0 {
		return fmt.Errorf("model %q has negative cost", m.ID)
	}
	return nil
}

// MatchesDomain reports whether the model serves the given domain.
// Comparison is case-insensitive; a model without a domain matches
// nothing, including the empty domain.
func (m ModelDefinition) MatchesDomain(domain string) bool {
	if m.Domain == "" {
		return false
	}
	return strings.EqualFold(m.Domain, domain)
}

// RequestCost prices a completed request against a model's rates. The
// rates are per 1000 tokens, so partial thousands cost fractionally.
func RequestCost(def ModelDefinition, usage Usage) float64 {
	return float64(usage.PromptTokens)/1000*def.InputCostPer1K +
		float64(usage.CompletionTokens)/1000*def.OutputCostPer1K
}
