package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/parley-go/parley/pkg/core"
)

// Server is the chat orchestrator's HTTP surface: the completion endpoint,
// scenario listing, the live WebSocket bridge, health, and metrics.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	engine   *core.Engine
	registry *core.Registry
	metrics  *Metrics
	mux      *http.ServeMux
}

func New(cfg Config, logger *slog.Logger, engine *core.Engine, registry *core.Registry, metrics *Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		engine:   engine,
		registry: registry,
		metrics:  metrics,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/chat", s.handleChat)
	s.mux.HandleFunc("/chat/live", s.handleLive)
	s.mux.HandleFunc("/scenarios", s.handleScenarios)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", s.metrics.Handler())
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = AccessLog(s.logger, s.metrics, h)
	h = CORS(s.cfg.CORSAllowedOrigins, h)
	h = Recover(s.logger, h)
	h = RequestID(h)
	return h
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

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeChatError(w, http.StatusMethodNotAllowed, "Method not allowed", r.Method)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeChatError(w, http.StatusInternalServerError, "Failed to get chat response", "invalid JSON body")
		return
	}

	reply, err := s.engine.Complete(r.Context(), req.ScenarioID, req.SessionID, req.Message)
	if err != nil {
		reqID, _ := RequestIDFrom(r.Context())
		s.logger.Error("chat turn failed",
			"request_id", reqID,
			"session_id", req.SessionID,
			"error", err,
		)
		// The reply path degrades internally, so any error here is a bad
		// request or store fault. The reference API reports both as 500.
		writeChatError(w, http.StatusInternalServerError, "Failed to get chat response", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Reply:        reply.Text,
		ScenarioName: reply.ScenarioDisplayName,
	})
}

func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeChatError(w, http.StatusMethodNotAllowed, "Method not allowed", r.Method)
		return
	}
	writeJSON(w, http.StatusOK, s.registry.List())
}

type healthResponse struct {
	Status    string   `json:"status"`
	Providers []string `json:"providers"`
	Sessions  int      `json:"sessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Providers: s.engine.Providers(),
		Sessions:  s.engine.Sessions(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type chatErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func writeChatError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, chatErrorResponse{Error: msg, Details: details})
}
