// Package arbiter is the embeddable entry point to the routing
// pipeline. It wires the classifier, router and executor behind a
// single ChatCompletion call so the gateway binary and library users
// share one code path.
package arbiter

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/amerfu/arbiter/internal/models"
	"github.com/amerfu/arbiter/internal/services/audit"
	"github.com/amerfu/arbiter/internal/services/budget"
	"github.com/amerfu/arbiter/internal/services/executor"
	"github.com/amerfu/arbiter/internal/services/health"
	"github.com/amerfu/arbiter/internal/services/providers"
	"github.com/amerfu/arbiter/internal/services/registry"
	"github.com/amerfu/arbiter/internal/services/routing"
)

// Config tunes pipeline behavior that is not carried by a dependency.
type Config struct {
	// FallbackModel is the fail-open model id. Empty defers to the
	// FALLBACK_MODEL env var, then the built-in default.
	FallbackModel           string
	FallbackInputCostPer1K  float64
	FallbackOutputCostPer1K float64
}

// Dependencies are the collaborators the pipeline runs on. Budget and
// Audit are optional; a nil Budget disables admission, deduction and
// the economy-mode downgrade, a nil Audit disables the transaction log.
type Dependencies struct {
	Registry *registry.Registry
	Tracker  *health.Tracker
	Invoker  providers.Invoker
	Budget   budget.Service
	Audit    audit.Logger
	Logger   *zap.Logger
}

// Client runs chat completions through the full routing pipeline. It is
// safe for concurrent use.
type Client struct {
	exec *executor.Executor
}

// New assembles a client. Registry, Tracker and Invoker are required.
func New(cfg Config, deps Dependencies) (*Client, error) {
	if deps.Registry == nil {
		return nil, errors.New("arbiter: registry is required")
	}
	if deps.Tracker == nil {
		return nil, errors.New("arbiter: health tracker is required")
	}
	if deps.Invoker == nil {
		return nil, errors.New("arbiter: invoker is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	router := routing.New(deps.Registry, deps.Tracker, deps.Budget, deps.Logger)
	exec := executor.New(router, deps.Tracker, deps.Invoker, deps.Budget, deps.Audit,
		executor.Config{
			FallbackModel:           cfg.FallbackModel,
			FallbackInputCostPer1K:  cfg.FallbackInputCostPer1K,
			FallbackOutputCostPer1K: cfg.FallbackOutputCostPer1K,
		}, deps.Logger)

	return &Client{exec: exec}, nil
}

// ChatCompletion routes and executes one completion for userID.
func (c *Client) ChatCompletion(ctx context.Context, messages []models.Message, userID string, opts providers.Options) (*models.ChatResponse, error) {
	return c.exec.Create(ctx, executor.Request{
		Messages: messages,
		UserID:   userID,
		Options:  opts,
	})
}
