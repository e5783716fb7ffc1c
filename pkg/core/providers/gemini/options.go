package gemini

import (
	"net/http"
)

type config struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

// Option configures the Gemini provider.
type Option func(*config)

// WithModel overrides the generation model.
func WithModel(model string) Option {
	return func(c *config) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL sets a custom API base URL (for testing or proxying).
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		c.httpClient = client
	}
}
