// Package api exposes the assistant over HTTP/JSON and a WebSocket channel
// that streams round progress for chat turns.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/sprintpilot/internal/app"
)

// UserHeader carries the requester id. It is trusted as given.
const UserHeader = "X-User-ID"

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Server routes HTTP requests to the app's services.
type Server struct {
	app      *app.App
	logger   *slog.Logger
	mux      *http.ServeMux
	upgrader websocket.Upgrader

	// pingInterval keeps idle WebSocket connections alive.
	pingInterval time.Duration
}

// New creates the HTTP server and registers all routes.
func New(a *app.App, logger *slog.Logger) *Server {
	if logger == nil {
		logger = a.Logger
	}
	s := &Server{
		app:    a,
		logger: logger,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local dev
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingInterval: 10 * time.Second,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	s.mux.Handle("GET /metrics", s.app.Metrics.Handler())
	s.mux.HandleFunc("GET /api/stats", s.handleStats)

	s.mux.HandleFunc("POST /api/workspaces/{ws}/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/workspaces/{ws}/ws", s.handleWebSocket)

	s.mux.HandleFunc("GET /api/workspaces/{ws}/conversations", s.handleListConversations)
	s.mux.HandleFunc("POST /api/workspaces/{ws}/conversations", s.handleCreateConversation)
	s.mux.HandleFunc("GET /api/workspaces/{ws}/conversations/{id}", s.handleGetConversation)
	s.mux.HandleFunc("PATCH /api/workspaces/{ws}/conversations/{id}", s.handleUpdateConversation)
	s.mux.HandleFunc("DELETE /api/workspaces/{ws}/conversations/{id}", s.handleDeleteConversation)

	s.mux.HandleFunc("GET /api/workspaces/{ws}/settings", s.handleGetSettings)
	s.mux.HandleFunc("PATCH /api/workspaces/{ws}/settings", s.handleUpdateSettings)
	s.mux.HandleFunc("GET /api/workspaces/{ws}/usage", s.handleUsage)
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return LoggingMiddleware(s.logger)(s.mux)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error    string `json:"error"`
	Category string `json:"category"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := s.errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

// errorResponse maps the error taxonomy to a status and a client-safe body.
func (s *Server) errorResponse(err error) (int, errorBody) {
	category := categoryOf(err)
	body := errorBody{Error: err.Error(), Category: category}
	switch category {
	case "configuration":
		return http.StatusPreconditionFailed, body
	case "usage_limit":
		return http.StatusTooManyRequests, body
	case "not_found":
		return http.StatusNotFound, body
	case "provider":
		body.Error = "the ai provider is unavailable, try again later"
		return http.StatusBadGateway, body
	case "invalid_input":
		return http.StatusBadRequest, body
	default:
		body.Error = "internal error"
		return http.StatusInternalServerError, body
	}
}

// errBadRequest marks transport-level decoding failures.
var errBadRequest = errors.New("bad request")

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}
