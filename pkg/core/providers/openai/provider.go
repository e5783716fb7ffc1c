// Package openai implements the secondary completion tier over the OpenAI
// Chat Completions API. The scenario instruction is sent as a leading system
// message.
package openai

import (
	"context"
	"net/http"

	"github.com/parley-go/parley/pkg/core"
)

const (
	// DefaultBaseURL is the default OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the chat model used by the reference deployment.
	DefaultModel = "gpt-4o-mini"
)

// Provider implements core.Provider against the OpenAI Chat Completions API.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates a new OpenAI provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "openai"
}

// Complete sends a single non-streaming chat completion request and returns
// the reply text.
func (p *Provider) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	body, err := p.doRequest(ctx, p.buildRequest(req))
	if err != nil {
		return "", core.NewProviderError(p.Name(), err)
	}

	text, err := parseResponse(body)
	if err != nil {
		return "", core.NewProviderError(p.Name(), err)
	}
	return text, nil
}
