package gemini

import (
	"google.golang.org/genai"

	"github.com/parley-go/parley/pkg/core"
)

// buildContents maps conversation turns to Gemini contents. Assistant turns
// become the "model" role; everything else is "user". The system turn never
// appears here — it travels as the system instruction.
func buildContents(turns []core.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := "user"
		if turn.Role == core.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Content}},
		})
	}
	return contents
}

// buildConfig maps the uniform request's instruction and token bound to a
// generation config.
func buildConfig(req core.CompletionRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.Instruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.Instruction}},
		}
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	return cfg
}
