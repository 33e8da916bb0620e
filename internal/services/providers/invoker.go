// Package providers calls upstream LLM APIs. The executor talks to the
// Invoker interface only; the error taxonomy below is how it decides
// whether a failure is worth retrying on another provider.
package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/amerfu/arbiter/internal/models"
)

// Options are per-request upstream parameters forwarded verbatim into
// the outbound request body (temperature, max_tokens and friends).
// Reserved fields (model, messages, stream) are never overridden.
type Options map[string]interface{}

// Invoker sends one chat completion to an upstream model.
//
// Implementations return *InvokeError for upstream failures so callers
// can inspect the kind; any other error type is treated as ErrorUnknown.
type Invoker interface {
	Invoke(ctx context.Context, modelID string, messages []models.Message, opts Options) (*models.ChatResponse, error)
}

// ErrorKind is the closed classification of upstream failures. The
// retriable kinds are availability problems: the provider is having a
// bad moment and a different provider may well succeed.
type ErrorKind int

const (
	ErrorUnknown ErrorKind = iota
	ErrorRateLimited
	ErrorUnavailable
	ErrorConnection
	ErrorTimeout
	ErrorBadRequest
	ErrorUnauthorized
)

var errorKindNames = map[ErrorKind]string{
	ErrorUnknown:      "unknown",
	ErrorRateLimited:  "rate_limited",
	ErrorUnavailable:  "unavailable",
	ErrorConnection:   "connection",
	ErrorTimeout:      "timeout",
	ErrorBadRequest:   "bad_request",
	ErrorUnauthorized: "unauthorized",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Retriable reports whether a failure of this kind justifies trying
// another provider. Client-side mistakes (bad request, bad key) would
// fail everywhere, so they are not retriable.
func (k ErrorKind) Retriable() bool {
	switch k {
	case ErrorRateLimited, ErrorUnavailable, ErrorConnection, ErrorTimeout:
		return true
	default:
		return false
	}
}

// InvokeError is a classified upstream failure.
type InvokeError struct {
	Kind    ErrorKind
	ModelID string
	Status  int // HTTP status when one was received, else 0
	Err     error
}

func (e *InvokeError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("invoke %s: %s (status %d): %v", e.ModelID, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("invoke %s: %s: %v", e.ModelID, e.Kind, e.Err)
}

func (e *InvokeError) Unwrap() error {
	return e.Err
}

// IsRetriable reports whether err is an upstream failure worth retrying
// on a different provider. Context cancellation is never retriable;
// a context deadline counts as a timeout.
func IsRetriable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var invokeErr *InvokeError
	if errors.As(err, &invokeErr) {
		return invokeErr.Kind.Retriable()
	}
	return false
}

// KindOf extracts the error kind, defaulting to ErrorUnknown for
// unclassified errors.
func KindOf(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	var invokeErr *InvokeError
	if errors.As(err, &invokeErr) {
		return invokeErr.Kind
	}
	return ErrorUnknown
}
