package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/parley-go/parley/pkg/core"
)

// Completer is the controller-facing completion contract: the network shape
// of POST /chat, not the engine's internals.
type Completer interface {
	Complete(ctx context.Context, scenarioID, sessionID, message string) (core.Reply, error)
}

// DefaultChatTimeout bounds one completion round trip.
const DefaultChatTimeout = 30 * time.Second

// ChatClient calls the server's /chat endpoint.
type ChatClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// ChatOption configures a ChatClient.
type ChatOption func(*ChatClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ChatOption {
	return func(c *ChatClient) {
		c.httpClient = client
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) ChatOption {
	return func(c *ChatClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewChatClient creates a client for the given server base URL.
func NewChatClient(baseURL string, opts ...ChatOption) *ChatClient {
	c := &ChatClient{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		timeout:    DefaultChatTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	ScenarioID string `json:"scenarioId"`
	Message    string `json:"message"`
	SessionID  string `json:"sessionId"`
}

type chatResponse struct {
	Reply        string `json:"reply"`
	ScenarioName string `json:"scenario_name"`
}

// Complete posts one finalized utterance and returns the reply. Any transport
// or status failure comes back as a network error.
func (c *ChatClient) Complete(ctx context.Context, scenarioID, sessionID, message string) (core.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		ScenarioID: scenarioID,
		Message:    message,
		SessionID:  sessionID,
	})
	if err != nil {
		return core.Reply{}, core.NewNetworkError(fmt.Sprintf("marshal request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return core.Reply{}, core.NewNetworkError(fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.Reply{}, core.NewNetworkError(fmt.Sprintf("chat request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return core.Reply{}, core.NewNetworkError(fmt.Sprintf("chat status %d: %s", resp.StatusCode, payload))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return core.Reply{}, core.NewNetworkError(fmt.Sprintf("decode response: %v", err))
	}

	return core.Reply{Text: decoded.Reply, ScenarioDisplayName: decoded.ScenarioName}, nil
}
