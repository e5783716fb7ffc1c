// Package gemini implements the primary completion tier over the Google
// Gemini API. The scenario instruction travels as the request's system
// instruction rather than as a conversational turn.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/parley-go/parley/pkg/core"
)

// DefaultModel is the Gemini model used by the reference deployment.
const DefaultModel = "gemini-1.5-flash"

// Provider implements core.Provider against the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

// New creates a new Gemini provider.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	cfg := &config{model: DefaultModel}
	for _, opt := range opts {
		opt(cfg)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.httpClient != nil {
		clientConfig.HTTPClient = cfg.httpClient
	}
	if cfg.baseURL != "" {
		clientConfig.HTTPOptions.BaseURL = cfg.baseURL
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Provider{client: client, model: cfg.model}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "gemini"
}

// Complete sends a single generateContent request and returns the reply text.
func (p *Provider) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	contents := buildContents(req.Turns)
	genConfig := buildConfig(req)

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, genConfig)
	if err != nil {
		return "", core.NewProviderError(p.Name(), err)
	}

	text := resp.Text()
	if text == "" {
		return "", core.NewProviderError(p.Name(), fmt.Errorf("empty candidate text"))
	}
	return text, nil
}
