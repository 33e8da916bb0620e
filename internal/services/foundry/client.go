// Package foundry pulls custom model definitions from the model
// foundry service into the registry. Loads are additive: a model that
// disappears from a later foundry snapshot stays registered, so hand-
// configured models and foundry-managed ones coexist.
package foundry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/amerfu/arbiter/internal/models"
	"github.com/amerfu/arbiter/internal/services/registry"
)

// Client lists custom models. An empty domain lists everything.
type Client interface {
	ListCustomModels(ctx context.Context, domain string) ([]models.ModelDefinition, error)
}

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	// Timeout bounds one catalog fetch. Zero means 15s.
	Timeout time.Duration
}

// HTTPClient talks to the foundry's REST catalog.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// wireModel is the foundry's catalog entry. Tier travels as its
// lowercase name.
type wireModel struct {
	ID              string      `json:"id"`
	Provider        string      `json:"provider"`
	Tier            models.Tier `json:"tier"`
	InputCostPer1K  float64     `json:"cost_per_1k_input"`
	OutputCostPer1K float64     `json:"cost_per_1k_output"`
	Healthy         *bool       `json:"is_healthy,omitempty"`
	Domain          string      `json:"domain,omitempty"`
}

func (c *HTTPClient) ListCustomModels(ctx context.Context, domain string) ([]models.ModelDefinition, error) {
	endpoint := c.baseURL + "/v1/custom-models"
	if domain != "" {
		endpoint += "?domain=" + url.QueryEscape(domain)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build foundry request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch foundry catalog: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read foundry catalog: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("foundry returned status %d", resp.StatusCode)
	}

	var wire []wireModel
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parse foundry catalog: %w", err)
	}

	defs := make([]models.ModelDefinition, 0, len(wire))
	for _, m := range wire {
		healthy := true
		if m.Healthy != nil {
			healthy = *m.Healthy
		}
		defs = append(defs, models.ModelDefinition{
			ID:              m.ID,
			Provider:        m.Provider,
			Tier:            m.Tier,
			InputCostPer1K:  m.InputCostPer1K,
			OutputCostPer1K: m.OutputCostPer1K,
			Healthy:         healthy,
			Domain:          m.Domain,
		})
	}
	return defs, nil
}

// Sync bulk-loads the foundry catalog into the registry. With no
// domains it loads the full catalog; otherwise one fetch per domain.
// Registration is upsert-only, so nothing already registered is ever
// removed. Invalid definitions are skipped, not fatal.
func Sync(ctx context.Context, client Client, reg *registry.Registry, domains []string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(domains) == 0 {
		domains = []string{""}
	}

	loaded := 0
	for _, domain := range domains {
		defs, err := client.ListCustomModels(ctx, domain)
		if err != nil {
			return fmt.Errorf("list custom models for domain %q: %w", domain, err)
		}
		for _, def := range defs {
			if err := def.Validate(); err != nil {
				logger.Warn("skipping invalid foundry model", zap.Error(err))
				continue
			}
			reg.Register(def)
			loaded++
		}
	}

	logger.Info("foundry sync complete",
		zap.Int("loaded", loaded),
		zap.Int("registry_size", reg.Len()))
	return nil
}
