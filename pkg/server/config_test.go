package server

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PARLEY_ADDR", "PORT",
		"GEMINI_API_KEY", "OPENAI_API_KEY",
		"PARLEY_GEMINI_MODEL", "PARLEY_OPENAI_MODEL",
		"PARLEY_MAX_TOKENS", "PARLEY_CORS_ORIGINS",
		"PARLEY_READ_HEADER_TIMEOUT", "PARLEY_READ_TIMEOUT",
		"PARLEY_SHUTDOWN_GRACE_PERIOD",
		"PARLEY_LIVE_WS_WRITE_TIMEOUT", "PARLEY_LIVE_WS_PING_INTERVAL",
		"PARLEY_LIVE_HANDSHAKE_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Addr != ":3001" {
		t.Fatalf("Addr = %q, want :3001", cfg.Addr)
	}
	if cfg.MaxTokens != 150 {
		t.Fatalf("MaxTokens = %d, want 150", cfg.MaxTokens)
	}
	if cfg.GeminiModel != "gemini-1.5-flash" {
		t.Fatalf("GeminiModel = %q, want gemini-1.5-flash", cfg.GeminiModel)
	}
	if cfg.OpenAIModel != "gpt-4o-mini" {
		t.Fatalf("OpenAIModel = %q, want gpt-4o-mini", cfg.OpenAIModel)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("CORSAllowedOrigins = %v, want empty (allow all)", cfg.CORSAllowedOrigins)
	}
	if cfg.GeminiAPIKey != "" || cfg.OpenAIAPIKey != "" {
		t.Fatal("provider keys should default to empty")
	}
}

func TestLoadFromEnv_PortFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q, want :8080", cfg.Addr)
	}
}

func TestLoadFromEnv_AddrWinsOverPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("PARLEY_ADDR", "127.0.0.1:9000")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" {
		t.Fatalf("Addr = %q, want 127.0.0.1:9000", cfg.Addr)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "gk")
	t.Setenv("OPENAI_API_KEY", "ok")
	t.Setenv("PARLEY_MAX_TOKENS", "300")
	t.Setenv("PARLEY_CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("PARLEY_READ_TIMEOUT", "45s")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.GeminiAPIKey != "gk" || cfg.OpenAIAPIKey != "ok" {
		t.Fatalf("keys = %q/%q, want gk/ok", cfg.GeminiAPIKey, cfg.OpenAIAPIKey)
	}
	if cfg.MaxTokens != 300 {
		t.Fatalf("MaxTokens = %d, want 300", cfg.MaxTokens)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("CORSAllowedOrigins = %v, want 2 entries", cfg.CORSAllowedOrigins)
	}
	if _, ok := cfg.CORSAllowedOrigins["https://b.example.com"]; !ok {
		t.Fatal("missing trimmed origin")
	}
	if cfg.ReadTimeout != 45*time.Second {
		t.Fatalf("ReadTimeout = %v, want 45s", cfg.ReadTimeout)
	}
}

func TestLoadFromEnv_RejectsNonPositiveMaxTokens(t *testing.T) {
	clearEnv(t)
	t.Setenv("PARLEY_MAX_TOKENS", "-5")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for negative PARLEY_MAX_TOKENS")
	}
}

func TestLoadFromEnv_IgnoresMalformedNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("PARLEY_MAX_TOKENS", "lots")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.MaxTokens != 150 {
		t.Fatalf("MaxTokens = %d, want the default on a malformed value", cfg.MaxTokens)
	}
}
