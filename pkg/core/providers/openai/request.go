package openai

import (
	"github.com/parley-go/parley/pkg/core"
)

// chatRequest is the OpenAI Chat Completions API request format, reduced to
// the fields this tier uses.
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens *int          `json:"max_tokens,omitempty"`
}

// chatMessage is a single message in OpenAI format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// buildRequest maps the uniform completion request to OpenAI's wire format.
// The instruction becomes a leading system message; history roles pass
// through verbatim.
func (p *Provider) buildRequest(req core.CompletionRequest) *chatRequest {
	messages := make([]chatMessage, 0, 1+len(req.Turns))
	if req.Instruction != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.Instruction})
	}
	for _, turn := range req.Turns {
		messages = append(messages, chatMessage{Role: string(turn.Role), Content: turn.Content})
	}

	out := &chatRequest{
		Model:    p.model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		out.MaxTokens = &maxTokens
	}
	return out
}
