// Package executor orchestrates one chat completion end to end:
// budget admission, classification, the routed retry loop, the
// fail-open fallback, and post-flight accounting.
package executor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amerfu/arbiter/internal/models"
	"github.com/amerfu/arbiter/internal/services/audit"
	"github.com/amerfu/arbiter/internal/services/budget"
	"github.com/amerfu/arbiter/internal/services/classifier"
	"github.com/amerfu/arbiter/internal/services/health"
	"github.com/amerfu/arbiter/internal/services/monitoring/metrics"
	"github.com/amerfu/arbiter/internal/services/providers"
	"github.com/amerfu/arbiter/internal/services/routing"
)

// MaxAttempts bounds the routed retry loop. A routing failure consumes
// an attempt just like a failed invocation.
const MaxAttempts = 3

// Fail-open defaults: the fallback model used when every routed
// attempt failed, and its billing rates.
const (
	FallbackModelEnv       = "FALLBACK_MODEL"
	DefaultFallbackModel   = "azure/gpt-4o"
	FallbackProvider       = "failover"
	DefaultFallbackInCost  = 0.005
	DefaultFallbackOutCost = 0.015
)

// Request is one inbound chat completion.
type Request struct {
	Messages []models.Message
	UserID   string
	Options  providers.Options
}

// Config tunes the executor's fail-open phase.
type Config struct {
	// FallbackModel overrides the FALLBACK_MODEL env var when set.
	FallbackModel string
	// Fallback billing rates per 1K tokens. Zero means the defaults.
	FallbackInputCostPer1K  float64
	FallbackOutputCostPer1K float64
}

// Executor runs requests. It is stateless per invocation and safe for
// concurrent use; all shared state lives in the collaborators.
type Executor struct {
	router  *routing.Router
	tracker *health.Tracker
	invoker providers.Invoker
	budget  budget.Service // nil: no admission or deduction
	audit   audit.Logger   // nil: no transaction log
	cfg     Config
	logger  *zap.Logger
}

// New wires an executor. Budget and audit may be nil; router, tracker
// and invoker must not be.
func New(router *routing.Router, tracker *health.Tracker, invoker providers.Invoker,
	budgetSvc budget.Service, auditLog audit.Logger, cfg Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		router:  router,
		tracker: tracker,
		invoker: invoker,
		budget:  budgetSvc,
		audit:   auditLog,
		cfg:     cfg,
		logger:  logger,
	}
}

// Create runs one request through admission, classification, the retry
// loop and, when everything else failed, the single fail-open attempt.
func (e *Executor) Create(ctx context.Context, req Request) (*models.ChatResponse, error) {
	requestID := uuid.New().String()
	logger := e.logger.With(zap.String("request_id", requestID), zap.String("user", req.UserID))

	// Admission is the only fail-closed external call: no answer from
	// the budget service means no upstream spend.
	if e.budget != nil {
		allowed, err := e.budget.CheckAllowance(ctx, req.UserID)
		if err != nil {
			metrics.RecordRequest(metrics.OutcomeDenied)
			return nil, &budget.UnavailableError{Err: err}
		}
		if !allowed {
			logger.Info("request denied: budget exceeded")
			metrics.RecordRequest(metrics.OutcomeDenied)
			return nil, budget.ErrBudgetExceeded
		}
	}

	c := classifier.Classify(models.LastUserMessage(req.Messages))
	logger.Debug("classified prompt",
		zap.Float64("complexity", c.Complexity),
		zap.String("domain", c.Domain))

	excluded := make(map[string]bool)
	var lastErr error

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			metrics.RecordRequest(metrics.OutcomeError)
			return nil, err
		}

		def, err := e.router.Route(ctx, c, req.UserID, excluded)
		if err != nil {
			lastErr = err
			logger.Warn("routing failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		resp, err := e.invoker.Invoke(ctx, def.ID, req.Messages, req.Options)
		if err == nil {
			e.tracker.RecordSuccess(def.Provider)
			e.settle(ctx, logger, req.UserID, requestID, def, resp)
			metrics.RecordRequest(metrics.OutcomeSuccess)
			return resp, nil
		}

		lastErr = err
		kind := providers.KindOf(err)
		metrics.RecordAttemptFailure(def.Provider, kind.String())
		logger.Warn("invocation failed",
			zap.Int("attempt", attempt),
			zap.String("model", def.ID),
			zap.String("provider", def.Provider),
			zap.Stringer("kind", kind),
			zap.Error(err))

		// Only availability failures indict the provider. A bad
		// request would fail anywhere, so the provider keeps its
		// health and its place in the rotation.
		if providers.IsRetriable(err) {
			e.tracker.RecordFailure(def.Provider)
			excluded[def.Provider] = true
		}
	}

	if err := ctx.Err(); err != nil {
		metrics.RecordRequest(metrics.OutcomeError)
		return nil, err
	}
	return e.failOpen(ctx, logger, req, requestID, lastErr)
}

// failOpen makes the single terminal attempt against the configured
// fallback model, outside the registry and the health tracker.
func (e *Executor) failOpen(ctx context.Context, logger *zap.Logger, req Request, requestID string, lastErr error) (*models.ChatResponse, error) {
	def := e.fallbackDefinition()
	logger.Error("all routed attempts failed, trying fallback",
		zap.String("fallback_model", def.ID),
		zap.Error(lastErr))

	resp, err := e.invoker.Invoke(ctx, def.ID, req.Messages, req.Options)
	if err != nil {
		metrics.RecordFailOpen(false)
		metrics.RecordRequest(metrics.OutcomeError)
		if lastErr != nil {
			return nil, fmt.Errorf("fallback %s failed: %w (last routed error: %w)", def.ID, err, lastErr)
		}
		return nil, fmt.Errorf("fallback %s failed: %w", def.ID, err)
	}

	e.settle(ctx, logger, req.UserID, requestID, def, resp)
	metrics.RecordFailOpen(true)
	metrics.RecordRequest(metrics.OutcomeFailOpen)
	return resp, nil
}

// fallbackDefinition builds the ad-hoc model used by fail-open. The
// env var is read per request so an operator can repoint the fallback
// without a restart; an unset var falls back to the default.
func (e *Executor) fallbackDefinition() models.ModelDefinition {
	id := e.cfg.FallbackModel
	if id == "" {
		id = os.Getenv(FallbackModelEnv)
	}
	if id == "" {
		id = DefaultFallbackModel
	}
	inCost := e.cfg.FallbackInputCostPer1K
	if inCost <= 0 {
		inCost = DefaultFallbackInCost
	}
	outCost := e.cfg.FallbackOutputCostPer1K
	if outCost <= 0 {
		outCost = DefaultFallbackOutCost
	}
	return models.ModelDefinition{
		ID:              id,
		Provider:        FallbackProvider,
		Tier:            models.TierSmart,
		InputCostPer1K:  inCost,
		OutputCostPer1K: outCost,
		Healthy:         true,
	}
}

// settle performs post-flight accounting. The response is already won;
// nothing in here may fail the request, so every error is logged and
// swallowed.
func (e *Executor) settle(ctx context.Context, logger *zap.Logger, userID, requestID string, def models.ModelDefinition, resp *models.ChatResponse) {
	if resp.Usage == nil {
		logger.Warn("response missing usage, skipping accounting",
			zap.String("model", def.ID))
		return
	}

	cost := models.RequestCost(def, *resp.Usage)
	metrics.RecordUsage(def.ID, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, cost)

	if e.audit != nil {
		err := e.audit.LogTransaction(ctx, audit.Transaction{
			UserID:       userID,
			ModelID:      def.ID,
			Provider:     def.Provider,
			RequestID:    requestID,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			Cost:         cost,
			Timestamp:    time.Now(),
		})
		if err != nil {
			logger.Warn("audit log failed", zap.Error(err))
		}
	}

	if e.budget != nil {
		if err := e.budget.DeductFunds(ctx, userID, cost); err != nil {
			logger.Warn("budget deduction failed",
				zap.Float64("cost", cost),
				zap.Error(err))
		}
	}
}
