// Package api implements the HTTP and websocket API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sentellent/senti/internal/agent"
	"github.com/sentellent/senti/internal/buildinfo"
	"github.com/sentellent/senti/internal/ingest"
	"github.com/sentellent/senti/internal/memory"
	"github.com/sentellent/senti/internal/session"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Runner processes one inbound turn for a user and returns the reply.
type Runner interface {
	Run(ctx context.Context, userID string, turn session.Turn, trace agent.TraceFunc) (string, error)
}

// MemoryLister exposes a user's stored memory records.
type MemoryLister interface {
	List(ctx context.Context, userID string) ([]memory.Record, error)
}

// SessionLister enumerates the users with a stored session.
type SessionLister interface {
	Users(ctx context.Context) ([]string, error)
}

// Server is the HTTP API server.
type Server struct {
	address  string
	port     int
	loop     Runner
	memories MemoryLister
	sessions SessionLister
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates a new API server.
func NewServer(address string, port int, loop Runner, memories MemoryLister, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:  address,
		port:     port,
		loop:     loop,
		memories: memories,
		logger:   logger,
	}
}

// Handler builds the route table. Exposed separately from Start so
// tests can drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/chat/ws", s.handleChatWS)
	mux.HandleFunc("GET /v1/memory", s.handleMemoryList)
	mux.HandleFunc("GET /v1/users", s.handleUserList)

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	// Exact match only; a plain "GET /" pattern would swallow every
	// unregistered GET path and defeat the mux's 405 handling.
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.withLogging(mux)
}

// SetSessionLister enables the admin user-listing endpoint. Session
// stores without an enumerable backend leave it unset.
func (s *Server) SetSessionLister(sessions SessionLister) {
	s.sessions = sessions
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: websocket sessions outlive any sane value.
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Senti",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

// ChatRequest is one inbound message for a user.
type ChatRequest struct {
	UserID      string              `json:"user_id"`
	Message     string              `json:"message"`
	Attachments []ingest.Attachment `json:"attachments,omitempty"`
}

// ChatResponse carries the assistant's reply.
type ChatResponse struct {
	UserID   string `json:"user_id"`
	Response string `json:"response"`
}

// handleChat runs one full conversation turn.
// POST /v1/chat {"user_id": "u1", "message": "hello"}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		s.errorResponse(w, http.StatusBadRequest, "user_id is required")
		return
	}

	turn, err := ingest.Normalize(req.Message, req.Attachments)
	if err != nil {
		if errors.Is(err, ingest.ErrEmptyMessage) {
			s.errorResponse(w, http.StatusBadRequest, "message is empty")
			return
		}
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := s.loop.Run(r.Context(), req.UserID, turn, nil)
	if err != nil {
		s.logger.Error("turn failed", "user_id", req.UserID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "agent error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ChatResponse{UserID: req.UserID, Response: reply}, s.logger)
}

// handleMemoryList returns everything remembered about a user.
// GET /v1/memory?user_id=u1
func (s *Server) handleMemoryList(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.errorResponse(w, http.StatusBadRequest, "user_id is required")
		return
	}

	records, err := s.memories.List(r.Context(), userID)
	if err != nil {
		s.logger.Error("memory list failed", "user_id", userID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "memory store error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"user_id":  userID,
		"memories": records,
		"count":    len(records),
	}, s.logger)
}

// handleUserList returns every user with a stored session, most
// recently active first.
// GET /v1/users
func (s *Server) handleUserList(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "session listing not configured")
		return
	}

	users, err := s.sessions.Users(r.Context())
	if err != nil {
		s.logger.Error("user list failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "session store error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"users": users,
		"count": len(users),
	}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}
