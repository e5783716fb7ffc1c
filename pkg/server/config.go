package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the server's environment-derived configuration, read once at
// process start. Absent provider credentials silently disable that tier.
type Config struct {
	Addr string

	// Provider credentials. Empty disables the tier.
	GeminiAPIKey string
	OpenAIAPIKey string

	GeminiModel string
	OpenAIModel string

	// MaxTokens bounds reply length across all tiers.
	MaxTokens int

	// CORS. Empty set allows any origin, matching the reference deployment.
	CORSAllowedOrigins map[string]struct{}

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration

	// Live WebSocket bridge.
	LiveWriteTimeout     time.Duration
	LivePingInterval     time.Duration
	LiveHandshakeTimeout time.Duration
}

// LoadFromEnv builds a Config from the environment. PORT is honored as a
// fallback for the listen address for parity with the reference deployment.
func LoadFromEnv() (Config, error) {
	addr := envOr("PARLEY_ADDR", "")
	if addr == "" {
		if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
			addr = ":" + port
		} else {
			addr = ":3001"
		}
	}

	cfg := Config{
		Addr:                 addr,
		GeminiAPIKey:         strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		OpenAIAPIKey:         strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		GeminiModel:          envOr("PARLEY_GEMINI_MODEL", "gemini-1.5-flash"),
		OpenAIModel:          envOr("PARLEY_OPENAI_MODEL", "gpt-4o-mini"),
		MaxTokens:            envIntOr("PARLEY_MAX_TOKENS", 150),
		CORSAllowedOrigins:   make(map[string]struct{}),
		ReadHeaderTimeout:    envDurationOr("PARLEY_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:          envDurationOr("PARLEY_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:  envDurationOr("PARLEY_SHUTDOWN_GRACE_PERIOD", 15*time.Second),
		LiveWriteTimeout:     envDurationOr("PARLEY_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LivePingInterval:     envDurationOr("PARLEY_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveHandshakeTimeout: envDurationOr("PARLEY_LIVE_HANDSHAKE_TIMEOUT", 5*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("PARLEY_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.MaxTokens <= 0 {
		return Config{}, fmt.Errorf("PARLEY_MAX_TOKENS must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("PARLEY_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("PARLEY_READ_TIMEOUT must be > 0")
	}
	if cfg.LiveWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("PARLEY_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
