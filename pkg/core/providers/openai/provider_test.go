package openai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/parley-go/parley/pkg/core"
)

func TestComplete_SendsAuthModelAndSystemMessage(t *testing.T) {
	var gotPath string
	var gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id":"chatcmpl_1",
			"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hello!"}}]
		}`)
	}))
	defer server.Close()

	p := New("test-key", WithBaseURL(server.URL), WithHTTPClient(server.Client()))

	text, err := p.Complete(t.Context(), core.CompletionRequest{
		Instruction: "be brief",
		Turns: []core.Turn{
			{Role: core.RoleUser, Content: "hi"},
			{Role: core.RoleAssistant, Content: "hello"},
			{Role: core.RoleUser, Content: "how are you?"},
		},
		MaxTokens: 150,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "hello!" {
		t.Fatalf("text = %q, want %q", text, "hello!")
	}

	if gotPath != "/chat/completions" {
		t.Fatalf("path = %q, want /chat/completions", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("Authorization = %q, want Bearer test-key", gotAuth)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Fatalf("model = %v, want gpt-4o-mini", gotBody["model"])
	}
	if maxTokens, _ := gotBody["max_tokens"].(float64); maxTokens != 150 {
		t.Fatalf("max_tokens = %v, want 150", gotBody["max_tokens"])
	}

	messages, ok := gotBody["messages"].([]any)
	if !ok || len(messages) != 4 {
		t.Fatalf("messages = %#v, want 4 entries", gotBody["messages"])
	}
	first, _ := messages[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "be brief" {
		t.Fatalf("messages[0] = %#v, want the system instruction", first)
	}
	last, _ := messages[3].(map[string]any)
	if last["role"] != "user" || last["content"] != "how are you?" {
		t.Fatalf("messages[3] = %#v, want the latest user turn", last)
	}
}

func TestComplete_OmitsMaxTokensWhenUnset(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer server.Close()

	p := New("test-key", WithBaseURL(server.URL))
	if _, err := p.Complete(t.Context(), core.CompletionRequest{
		Turns: []core.Turn{{Role: core.RoleUser, Content: "hi"}},
	}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if _, exists := gotBody["max_tokens"]; exists {
		t.Fatalf("max_tokens present, want omitted: %#v", gotBody)
	}
}

func TestComplete_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limit exceeded","type":"rate_limit_error"}}`)
	}))
	defer server.Close()

	p := New("test-key", WithBaseURL(server.URL))
	_, err := p.Complete(t.Context(), core.CompletionRequest{
		Turns: []core.Turn{{Role: core.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error on 429 response")
	}
	coreErr := core.AsError(err)
	if coreErr == nil || coreErr.Type != core.ErrProvider {
		t.Fatalf("error = %v, want a provider error", err)
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer server.Close()

	p := New("test-key", WithBaseURL(server.URL))
	if _, err := p.Complete(t.Context(), core.CompletionRequest{
		Turns: []core.Turn{{Role: core.RoleUser, Content: "hi"}},
	}); err == nil {
		t.Fatal("expected error when response has no choices")
	}
}
