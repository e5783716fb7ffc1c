package core

import (
	"context"
)

// CompletionRequest is the uniform provider-facing request. The scenario
// instruction travels in a dedicated field; each adapter maps it to its API's
// native system channel. Turns hold only user and assistant roles, oldest
// first.
type CompletionRequest struct {
	Instruction string
	Turns       []Turn
	MaxTokens   int
}

// Provider is one tier of the completion fallback chain. Adapters make a
// single attempt per call; the engine owns ordering and degradation.
type Provider interface {
	// Name returns the provider identifier (e.g., "gemini", "openai").
	Name() string

	// Complete sends the request and returns the reply text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
