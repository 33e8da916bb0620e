// Package e2e drives the assembled gateway over HTTP: real router,
// middleware, pipeline and invoker, with a scripted upstream and an
// in-process redis for the audit queue.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amerfu/arbiter/internal/config"
	"github.com/amerfu/arbiter/internal/models"
	"github.com/amerfu/arbiter/internal/router"
	"github.com/amerfu/arbiter/internal/services/audit"
	"github.com/amerfu/arbiter/internal/services/budget"
	"github.com/amerfu/arbiter/internal/services/health"
	"github.com/amerfu/arbiter/internal/services/providers"
	"github.com/amerfu/arbiter/internal/services/registry"
	"github.com/amerfu/arbiter/pkg/arbiter"
	"github.com/amerfu/arbiter/pkg/circuitbreaker"
)

// upstream is a scripted OpenAI-compatible server. Providers in the
// failing set answer 503; everything else succeeds with fixed usage.
type upstream struct {
	mu      sync.Mutex
	failing map[string]bool
	calls   []string
	server  *httptest.Server
}

func newUpstream(t *testing.T) *upstream {
	u := &upstream{failing: make(map[string]bool)}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		provider := strings.SplitN(body.Model, "/", 2)[0]
		u.mu.Lock()
		u.calls = append(u.calls, body.Model)
		down := u.failing[provider]
		u.mu.Unlock()

		if down {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"provider down","type":"server_error"}}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.ChatResponse{
			ID:      "chatcmpl-e2e",
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   body.Model,
			Choices: []models.Choice{{Message: models.Message{Role: "assistant", Content: "ok"}}},
			Usage:   &models.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
		})
	}))
	t.Cleanup(u.server.Close)
	return u
}

func (u *upstream) setFailing(provider string, down bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failing[provider] = down
}

func (u *upstream) drainCalls() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	calls := u.calls
	u.calls = nil
	return calls
}

type gateway struct {
	server   *httptest.Server
	upstream *upstream
	budget   *budget.StaticService
	queue    *audit.UsageQueue
	advance  func(time.Duration)
}

func newGateway(t *testing.T) *gateway {
	logger := zap.NewNop()
	up := newUpstream(t)

	mr := miniredis.RunT(t)
	redisClient := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	queue := audit.NewUsageQueue(audit.UsageQueueConfig{Client: redisClient, Logger: logger})

	// Manual clock so breaker cooldowns can be fast-forwarded.
	var clockMu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		clockMu.Lock()
		defer clockMu.Unlock()
		now = now.Add(d)
	}

	reg := registry.New(logger)
	for _, def := range []models.ModelDefinition{
		{ID: "openai/gpt-4o-mini", Provider: "openai", Tier: models.TierFast, InputCostPer1K: 0.00015, OutputCostPer1K: 0.0006, Healthy: true},
		{ID: "anthropic/claude-haiku", Provider: "anthropic", Tier: models.TierFast, InputCostPer1K: 0.00025, OutputCostPer1K: 0.00125, Healthy: true},
		{ID: "openai/gpt-4o", Provider: "openai", Tier: models.TierSmart, InputCostPer1K: 0.0025, OutputCostPer1K: 0.01, Healthy: true},
		{ID: "openai/o1", Provider: "openai", Tier: models.TierReasoning, InputCostPer1K: 0.015, OutputCostPer1K: 0.06, Healthy: true},
		{ID: "anthropic/claude-opus", Provider: "anthropic", Tier: models.TierReasoning, InputCostPer1K: 0.015, OutputCostPer1K: 0.075, Healthy: true},
	} {
		reg.Register(def)
	}

	tracker := health.NewTracker(logger, health.WithBreakerConfig(circuitbreaker.Config{Clock: clock}))
	budgetSvc := budget.NewStaticService(map[string]float64{"capped-user": 10})

	invoker := providers.NewOpenAIInvoker(providers.OpenAIConfig{
		BaseURL: up.server.URL,
		APIKey:  "test-key",
	}, logger)

	client, err := arbiter.New(arbiter.Config{FallbackModel: "azure/gpt-4o"}, arbiter.Dependencies{
		Registry: reg,
		Tracker:  tracker,
		Invoker:  invoker,
		Budget:   budgetSvc,
		Audit:    audit.NewQueueLogger(queue),
		Logger:   logger,
	})
	require.NoError(t, err)

	cfg := &config.Config{
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		},
	}
	handler := router.New(router.Dependencies{
		Config:    cfg,
		Logger:    logger,
		Completer: client,
		Registry:  reg,
		Tracker:   tracker,
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &gateway{
		server:   server,
		upstream: up,
		budget:   budgetSvc,
		queue:    queue,
		advance:  advance,
	}
}

func (g *gateway) complete(t *testing.T, userID, prompt string) (*http.Response, models.ChatResponse) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"messages": []models.Message{{Role: "user", Content: prompt}},
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, g.server.URL+"/v1/chat/completions", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var completion models.ChatResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&completion))
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp, completion
}

func TestGatewayCompletesSimplePrompt(t *testing.T) {
	g := newGateway(t)

	resp, completion := g.complete(t, "alice", "what is the capital of France?")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "openai/gpt-4o-mini", completion.Model)

	// The transaction landed on the audit queue.
	stats, err := g.queue.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
}

func TestGatewayRoutesComplexPromptToReasoning(t *testing.T) {
	g := newGateway(t)

	resp, completion := g.complete(t, "alice", "Analyze the tradeoffs between consensus protocols")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "openai/o1", completion.Model)
}

func TestGatewayDeniesExhaustedBudget(t *testing.T) {
	g := newGateway(t)
	require.NoError(t, g.budget.DeductFunds(context.Background(), "capped-user", 10))

	resp, _ := g.complete(t, "capped-user", "hello")
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	// Nothing reached the upstream.
	assert.Empty(t, g.upstream.drainCalls())
}

func TestGatewayRejectsAnonymousRequests(t *testing.T) {
	g := newGateway(t)

	resp, _ := g.complete(t, "", "hello")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGatewayFailoverAndBreakerRecovery(t *testing.T) {
	g := newGateway(t)
	g.upstream.setFailing("openai", true)

	// Within one request the failed provider is excluded and the
	// request completes on the alternative.
	resp, completion := g.complete(t, "alice", "Analyze this contract for loopholes")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "anthropic/claude-opus", completion.Model)
	assert.Equal(t, []string{"openai/o1", "anthropic/claude-opus"}, g.upstream.drainCalls())

	// Three more failures trip the openai breaker.
	for i := 0; i < 3; i++ {
		resp, _ := g.complete(t, "alice", "Analyze this contract for loopholes")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	g.upstream.drainCalls()

	// With the breaker open, openai is skipped without an attempt.
	resp, completion = g.complete(t, "alice", "Analyze this contract for loopholes")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "anthropic/claude-opus", completion.Model)
	assert.Equal(t, []string{"anthropic/claude-opus"}, g.upstream.drainCalls())

	var snapshot struct {
		Providers []health.ProviderStatus `json:"providers"`
	}
	healthResp, err := http.Get(g.server.URL + "/v1/providers/health")
	require.NoError(t, err)
	defer healthResp.Body.Close()
	require.NoError(t, json.NewDecoder(healthResp.Body).Decode(&snapshot))
	require.Len(t, snapshot.Providers, 1)
	assert.Equal(t, "openai", snapshot.Providers[0].Provider)
	assert.False(t, snapshot.Providers[0].Healthy)

	// After the cooldown the breaker closes and openai takes traffic
	// again.
	g.upstream.setFailing("openai", false)
	g.advance(circuitbreaker.DefaultCooldown + time.Second)

	resp, completion = g.complete(t, "alice", "Analyze this contract for loopholes")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "openai/o1", completion.Model)
}

func TestGatewayFailsOpenToFallback(t *testing.T) {
	g := newGateway(t)
	g.upstream.setFailing("openai", true)
	g.upstream.setFailing("anthropic", true)

	resp, completion := g.complete(t, "alice", "hello")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "azure/gpt-4o", completion.Model)
}

func TestGatewayUnderConcurrentTraffic(t *testing.T) {
	g := newGateway(t)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			resp, completion := g.complete(t, fmt.Sprintf("user-%d", n), "hello")
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "openai/gpt-4o-mini", completion.Model)
		}(i)
	}
	wg.Wait()

	stats, err := g.queue.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(workers), stats.Pending)
}

func TestGatewayCatalogAndProbes(t *testing.T) {
	g := newGateway(t)

	resp, err := http.Get(g.server.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	listResp, err := http.Get(g.server.URL + "/v1/models?tier=reasoning")
	require.NoError(t, err)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var listing struct {
		Data []models.ModelDefinition `json:"data"`
	}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&listing))
	require.Len(t, listing.Data, 2)
	assert.Equal(t, "openai/o1", listing.Data[0].ID)
	assert.Equal(t, "anthropic/claude-opus", listing.Data[1].ID)
}
