package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/parley-go/parley/pkg/core"
)

type staticProvider struct {
	name  string
	reply string
	err   error
}

func (p *staticProvider) Name() string { return p.name }

func (p *staticProvider) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	return p.reply, p.err
}

func testConfig() Config {
	return Config{
		Addr:               ":0",
		MaxTokens:          150,
		CORSAllowedOrigins: map[string]struct{}{},
		ReadHeaderTimeout:  time.Second,
		ReadTimeout:        time.Second,
		LiveWriteTimeout:   time.Second,
		LivePingInterval:   time.Minute,
	}
}

func newTestServer(t *testing.T, providers ...core.Provider) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := NewMetrics()
	registry := core.NewRegistry(core.DefaultScenarios()...)
	engine := core.NewEngine(registry, core.NewSessionStore(), providers,
		core.WithLogger(logger),
		core.WithDegradedHook(metrics.CountDegradedReply),
	)
	return New(testConfig(), logger, engine, registry, metrics)
}

func TestHandleChat_Success(t *testing.T) {
	s := newTestServer(t, &staticProvider{name: "gemini", reply: "hello!"})

	body := `{"scenarioId":"customer_support","message":"hi","sessionId":"sess-1"}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Reply        string `json:"reply"`
		ScenarioName string `json:"scenario_name"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reply != "hello!" {
		t.Fatalf("reply = %q, want %q", resp.Reply, "hello!")
	}
	if resp.ScenarioName != "Customer Support (Empathetic Agent)" {
		t.Fatalf("scenario_name = %q, want the display name", resp.ScenarioName)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}
}

func TestHandleChat_DegradedWhenProvidersFail(t *testing.T) {
	s := newTestServer(t,
		&staticProvider{name: "gemini", err: core.NewProviderError("gemini", io.ErrUnexpectedEOF)},
	)

	body := `{"message":"ping","sessionId":"sess-1"}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "[SIMULATED]") {
		t.Fatalf("body = %s, want the degraded reply", w.Body.String())
	}
}

func TestHandleChat_MissingFieldsReturn500(t *testing.T) {
	s := newTestServer(t)

	for name, body := range map[string]string{
		"missing message":   `{"sessionId":"sess-1"}`,
		"missing sessionId": `{"message":"hi"}`,
		"invalid json":      `{`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			if w.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", w.Code)
			}
			var resp struct {
				Error   string `json:"error"`
				Details string `json:"details"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Error != "Failed to get chat response" {
				t.Fatalf("error = %q, want the canonical message", resp.Error)
			}
			if resp.Details == "" {
				t.Fatal("missing details")
			}
		})
	}
}

func TestHandleChat_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}

func TestHandleScenarios(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/scenarios", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var scenarios []core.ScenarioInfo
	if err := json.NewDecoder(w.Body).Decode(&scenarios); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(scenarios) != 3 {
		t.Fatalf("scenarios = %d, want 3", len(scenarios))
	}
	if scenarios[0].ID != "calling_agent" {
		t.Fatalf("scenarios[0].ID = %q, want calling_agent", scenarios[0].ID)
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, &staticProvider{name: "gemini", reply: "x"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Status    string   `json:"status"`
		Providers []string `json:"providers"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("status = %q, want ok", resp.Status)
	}
	if len(resp.Providers) != 1 || resp.Providers[0] != "gemini" {
		t.Fatalf("providers = %v, want [gemini]", resp.Providers)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	// Drive one request so the counters exist.
	chatReq := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi","sessionId":"s"}`))
	s.Handler().ServeHTTP(httptest.NewRecorder(), chatReq)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "parley_http_requests_total") {
		t.Fatalf("metrics output missing request counter:\n%s", body)
	}
	if !strings.Contains(body, "parley_degraded_replies_total") {
		t.Fatal("metrics output missing degraded counter")
	}
}

func TestCORS(t *testing.T) {
	t.Run("open allowlist admits any origin", func(t *testing.T) {
		s := newTestServer(t)

		req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
		req.Header.Set("Origin", "https://example.com")
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Fatalf("preflight status = %d, want 204", w.Code)
		}
		if w.Header().Get("Access-Control-Allow-Origin") != "https://example.com" {
			t.Fatalf("Allow-Origin = %q, want the request origin", w.Header().Get("Access-Control-Allow-Origin"))
		}
	})

	t.Run("closed allowlist rejects others", func(t *testing.T) {
		cfg := testConfig()
		cfg.CORSAllowedOrigins = map[string]struct{}{"https://app.example.com": {}}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		metrics := NewMetrics()
		registry := core.NewRegistry(core.DefaultScenarios()...)
		engine := core.NewEngine(registry, core.NewSessionStore(), nil, core.WithLogger(logger))
		s := New(cfg, logger, engine, registry, metrics)

		req := httptest.NewRequest(http.MethodGet, "/scenarios", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		if w.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Fatal("expected no CORS header for a disallowed origin")
		}
	})
}

func TestRecoverMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Recover(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestRequestID_EchoesIncoming(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := RequestIDFrom(r.Context())
		if !ok || id != "req_given" {
			t.Fatalf("request id in context = %q, want req_given", id)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req_given")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") != "req_given" {
		t.Fatalf("echoed id = %q, want req_given", w.Header().Get("X-Request-ID"))
	}
}
