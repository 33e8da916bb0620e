package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/amerfu/arbiter/internal/models"
)

// reserved request fields callers may not override through Options.
var reservedOptions = map[string]struct{}{
	"model":    {},
	"messages": {},
	"stream":   {},
}

// OpenAIConfig configures an OpenAIInvoker.
type OpenAIConfig struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string
	APIKey  string
	OrgID   string
	// Timeout bounds one upstream call. Zero means 60s.
	Timeout time.Duration
}

// OpenAIInvoker calls any OpenAI-compatible chat completions API. Most
// gateway-fronted providers (OpenAI, Azure, OpenRouter, vLLM) speak
// this dialect, so one invoker covers the pool.
type OpenAIInvoker struct {
	baseURL string
	apiKey  string
	orgID   string
	client  *http.Client
	logger  *zap.Logger
}

// NewOpenAIInvoker builds an invoker against cfg.BaseURL.
func NewOpenAIInvoker(cfg OpenAIConfig, logger *zap.Logger) *OpenAIInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIInvoker{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		orgID:   cfg.OrgID,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Invoke sends one chat completion request. Failures come back as
// *InvokeError classified by status code or transport condition.
func (p *OpenAIInvoker) Invoke(ctx context.Context, modelID string, messages []models.Message, opts Options) (*models.ChatResponse, error) {
	body := map[string]interface{}{
		"model":    modelID,
		"messages": messages,
	}
	for key, value := range opts {
		if _, reserved := reservedOptions[key]; reserved {
			continue
		}
		body[key] = value
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, &InvokeError{Kind: ErrorBadRequest, ModelID: modelID, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, &InvokeError{Kind: ErrorBadRequest, ModelID: modelID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	if p.orgID != "" {
		req.Header.Set("OpenAI-Organization", p.orgID)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, p.classifyTransport(ctx, modelID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &InvokeError{Kind: ErrorConnection, ModelID: modelID, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.classifyStatus(modelID, resp.StatusCode, respBody)
	}

	var chatResp models.ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, &InvokeError{Kind: ErrorUnknown, ModelID: modelID, Err: fmt.Errorf("parse response: %w", err)}
	}
	return &chatResp, nil
}

// classifyTransport maps a transport-level failure. A client timeout
// and a cancelled context both surface as *url.Error wrapping the
// context error, so the context is checked first.
func (p *OpenAIInvoker) classifyTransport(ctx context.Context, modelID string, err error) error {
	switch {
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return &InvokeError{Kind: ErrorTimeout, ModelID: modelID, Err: err}
	default:
		return &InvokeError{Kind: ErrorConnection, ModelID: modelID, Err: err}
	}
}

func (p *OpenAIInvoker) classifyStatus(modelID string, status int, body []byte) error {
	cause := fmt.Errorf("upstream status %d", status)
	var errResp models.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		cause = fmt.Errorf("upstream status %d: %s", status, errResp.Error.Message)
	}

	kind := ErrorUnknown
	switch {
	case status == http.StatusTooManyRequests:
		kind = ErrorRateLimited
	case status == http.StatusBadRequest:
		kind = ErrorBadRequest
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = ErrorUnauthorized
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = ErrorTimeout
	case status >= 500:
		kind = ErrorUnavailable
	}

	p.logger.Debug("upstream request failed",
		zap.String("model", modelID),
		zap.Int("status", status),
		zap.Stringer("kind", kind))
	return &InvokeError{Kind: kind, ModelID: modelID, Status: status, Err: cause}
}
