package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/amerfu/arbiter/internal/middleware"
	"github.com/amerfu/arbiter/internal/models"
	"github.com/amerfu/arbiter/internal/services/budget"
	"github.com/amerfu/arbiter/internal/services/providers"
	"github.com/amerfu/arbiter/internal/services/routing"
)

// Completer is the routing pipeline as the HTTP layer sees it.
type Completer interface {
	ChatCompletion(ctx context.Context, messages []models.Message, userID string, opts providers.Options) (*models.ChatResponse, error)
}

// chatRequest is the inbound body: the OpenAI chat request plus any
// passthrough options callers want forwarded upstream.
type chatRequest struct {
	Messages []models.Message       `json:"messages"`
	User     string                 `json:"user,omitempty"`
	Options  map[string]interface{} `json:"-"`
}

// ChatHandler serves POST /v1/chat/completions.
type ChatHandler struct {
	completer Completer
	logger    *zap.Logger
}

func NewChatHandler(completer Completer, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{completer: completer, logger: logger}
}

// ChatCompletions godoc
// @Summary Create a chat completion
// @Description Routes the request to the best available model by
// @Description complexity, domain, budget and provider health.
// @Accept json
// @Produce json
// @Param request body models.ChatRequest true "chat request"
// @Success 200 {object} models.ChatResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 402 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /v1/chat/completions [post]
func (h *ChatHandler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := resolveUserID(r, req)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id required: authenticate, set X-User-ID, or set the body's user field")
		return
	}

	resp, err := h.completer.ChatCompletion(r.Context(), req.Messages, userID, req.Options)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeChatRequest splits the body into messages, user, and the
// passthrough option fields the gateway does not interpret.
func decodeChatRequest(r *http.Request) (*chatRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, errors.New("invalid JSON body")
	}

	req := &chatRequest{Options: make(map[string]interface{})}
	if data, ok := raw["messages"]; ok {
		if err := json.Unmarshal(data, &req.Messages); err != nil {
			return nil, errors.New("invalid messages field")
		}
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("messages must not be empty")
	}
	if data, ok := raw["user"]; ok {
		if err := json.Unmarshal(data, &req.User); err != nil {
			return nil, errors.New("invalid user field")
		}
	}

	for key, data := range raw {
		switch key {
		case "messages", "user", "model", "stream":
			// model is chosen by the router; streaming is not supported.
		default:
			var value interface{}
			if err := json.Unmarshal(data, &value); err == nil {
				req.Options[key] = value
			}
		}
	}
	return req, nil
}

// resolveUserID prefers the authenticated subject, then the header,
// then the body.
func resolveUserID(r *http.Request, req *chatRequest) string {
	if id := middleware.UserID(r.Context()); id != "" {
		return id
	}
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return req.User
}

func (h *ChatHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		unavailable *budget.UnavailableError
		noModel     *routing.NoHealthyModelError
	)
	switch {
	case errors.Is(err, budget.ErrBudgetExceeded):
		writeError(w, http.StatusPaymentRequired, "budget exceeded")
	case errors.As(err, &unavailable):
		writeError(w, http.StatusServiceUnavailable, "budget service unavailable")
	case errors.As(err, &noModel):
		writeError(w, http.StatusServiceUnavailable, noModel.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nobody is reading the response.
		h.logger.Debug("request cancelled", zap.String("path", r.URL.Path))
		writeError(w, 499, "request cancelled")
	default:
		h.logger.Error("chat completion failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream request failed")
	}
}
