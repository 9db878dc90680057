package providers

import (
	"context"
	"errors"
)

var (
	// ErrRateLimited is returned when the provider throttles the caller.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrProviderUnavailable wraps transport, auth and 5xx failures.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// CompletionRequest is one system+user prompt pair.
type CompletionRequest struct {
	System string
	Prompt string
}

// Completer sends a prompt to a language model and returns its text reply.
// Concrete implementations live in type-specific files (e.g., openai_chat.go).
type Completer interface {
	ID() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompleterRegistry resolves the completer implementation for a given provider config.
type CompleterRegistry interface {
	CompleterFor(cfg Provider) (Completer, error)
}
