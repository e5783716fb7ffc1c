package core

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultMaxTokens bounds reply length for every provider tier. Replies are
// spoken aloud, so short is a feature.
const DefaultMaxTokens = 150

// degradedTemplate is the canned reply used when no provider yields text. It
// echoes the user's message so the channel visibly stays alive.
const degradedTemplate = `[SIMULATED] I've received your message: "%s". Currently, AI providers are unavailable, but your connection is active!`

// Engine turns a scenario plus per-session history into a reply by attempting
// providers in priority order and degrading gracefully. It never fails past
// the degraded fallback; the only error it returns is for malformed input.
type Engine struct {
	registry  *Registry
	store     *SessionStore
	providers []Provider
	maxTokens int
	logger    *slog.Logger
	onDegrade func()
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithMaxTokens overrides the per-reply token bound.
func WithMaxTokens(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDegradedHook registers a callback invoked each time a turn falls back
// to the canned degraded reply.
func WithDegradedHook(fn func()) EngineOption {
	return func(e *Engine) {
		e.onDegrade = fn
	}
}

// NewEngine creates an engine over the given provider chain. Providers are
// attempted in slice order; an empty chain degrades immediately.
func NewEngine(registry *Registry, store *SessionStore, providers []Provider, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:  registry,
		store:     store,
		providers: providers,
		maxTokens: DefaultMaxTokens,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Providers returns the names of the configured chain, in priority order.
func (e *Engine) Providers() []string {
	names := make([]string, 0, len(e.providers))
	for _, p := range e.providers {
		names = append(names, p.Name())
	}
	return names
}

// Sessions reports how many sessions the engine's store currently holds.
func (e *Engine) Sessions() int {
	return e.store.Len()
}

// Complete runs one conversation turn: append the user message, attempt each
// provider against the windowed history, fall back to the degraded reply, and
// record the assistant turn. Provider failures are logged and absorbed.
func (e *Engine) Complete(ctx context.Context, scenarioID, sessionID, userMessage string) (Reply, error) {
	if userMessage == "" {
		return Reply{}, NewInvalidRequestErrorWithParam("message is required", "message")
	}
	if sessionID == "" {
		return Reply{}, NewInvalidRequestErrorWithParam("sessionId is required", "sessionId")
	}

	scenario := e.registry.Get(scenarioID)
	e.store.Ensure(sessionID, scenario)

	// Hold the session's turn lock for the whole turn so concurrent requests
	// for one session append user/assistant pairs in order.
	unlock, err := e.store.LockSession(sessionID)
	if err != nil {
		return Reply{}, err
	}
	defer unlock()

	if err := e.store.Append(sessionID, Turn{Role: RoleUser, Content: userMessage}); err != nil {
		return Reply{}, err
	}

	window, err := e.store.WindowedView(sessionID)
	if err != nil {
		return Reply{}, err
	}

	req := CompletionRequest{
		Instruction: window[0].Content,
		Turns:       window[1:],
		MaxTokens:   e.maxTokens,
	}

	text := e.attempt(ctx, req, sessionID, userMessage)

	if err := e.store.Append(sessionID, Turn{Role: RoleAssistant, Content: text}); err != nil {
		return Reply{}, err
	}

	return Reply{Text: text, ScenarioDisplayName: scenario.DisplayName}, nil
}

// attempt walks the provider chain and returns the first reply, or the
// degraded template when every tier fails. This path cannot fail.
func (e *Engine) attempt(ctx context.Context, req CompletionRequest, sessionID, userMessage string) string {
	for _, p := range e.providers {
		text, err := p.Complete(ctx, req)
		if err != nil {
			e.logger.Warn("provider failed",
				"provider", p.Name(),
				"session_id", sessionID,
				"error", err,
			)
			continue
		}
		if text == "" {
			e.logger.Warn("provider returned empty reply",
				"provider", p.Name(),
				"session_id", sessionID,
			)
			continue
		}
		return text
	}

	e.logger.Info("all providers unavailable, using degraded reply", "session_id", sessionID)
	if e.onDegrade != nil {
		e.onDegrade()
	}
	return fmt.Sprintf(degradedTemplate, userMessage)
}
