package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"counselrelay/internal/conversation"
	"counselrelay/pkg/interfaces"
	"counselrelay/pkg/types"
)

// Presence is the read side of the presence registry
type Presence interface {
	Snapshot(role string) []string
	GetStats() map[string]int
}

// Conversations serves counselor records and bootstrap statistics
type Conversations interface {
	Relationship(ctx context.Context, counselorID string) (*types.Relationship, error)
	Provision(ctx context.Context, counselorID, name string) (*types.Relationship, error)
	Stats() conversation.Stats
}

// HealthChecker reports storage connectivity
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	health         HealthChecker
	conversations  Conversations
	presence       Presence
	allowedOrigins map[string]bool
	allowAll       bool
	started        time.Time
	router         chi.Router
}

// NewServer wires routes; ws is mounted at /ws when non-nil
func NewServer(health HealthChecker, conversations Conversations, presence Presence, ws http.Handler, allowedOrigins []string) *Server {
	s := &Server{
		health:         health,
		conversations:  conversations,
		presence:       presence,
		allowedOrigins: make(map[string]bool, len(allowedOrigins)),
		started:        time.Now(),
		router:         chi.NewRouter(),
	}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			s.allowAll = true
		}
		s.allowedOrigins[origin] = true
	}

	s.setupRoutes(ws)
	return s
}

func (s *Server) setupRoutes(ws http.Handler) {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.With(jsonMiddleware).Get("/health", s.healthCheck)

	r.Route("/api", func(api chi.Router) {
		api.Use(jsonMiddleware)
		api.Get("/presence", s.getPresence)
		api.Get("/counselors/{counselorID}/students", s.getRelationship)
		api.Put("/counselors/{counselorID}", s.provisionCounselor)
	})

	if ws != nil {
		r.Handle("/ws", ws)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type PresenceResponse struct {
	Counselors []string `json:"counselors"`
	Students   []string `json:"students"`
}

type ProvisionRequest struct {
	Name string `json:"name"`
}

type HealthResponse struct {
	Status        string                 `json:"status"`
	Timestamp     time.Time              `json:"timestamp"`
	Database      string                 `json:"database"`
	Connections   map[string]int         `json:"connections"`
	Conversations conversation.Stats     `json:"conversations"`
	System        map[string]interface{} `json:"system"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GET /api/presence
func (s *Server) getPresence(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, PresenceResponse{
		Counselors: s.presence.Snapshot(types.RoleCounselor),
		Students:   s.presence.Snapshot(types.RoleStudent),
	})
}

// GET /api/counselors/{counselorID}/students
func (s *Server) getRelationship(w http.ResponseWriter, r *http.Request) {
	counselorID := chi.URLParam(r, "counselorID")

	rel, err := s.conversations.Relationship(r.Context(), counselorID)
	switch {
	case errors.Is(err, conversation.ErrInvalidCounselorID):
		s.sendError(w, "Invalid counselor ID", http.StatusBadRequest)
	case errors.Is(err, interfaces.ErrRelationshipNotFound):
		s.sendError(w, "Counselor not found", http.StatusNotFound)
	case err != nil:
		log.Printf("Failed to load counselor %s: %v", counselorID, err)
		s.sendError(w, "Failed to load counselor", http.StatusInternalServerError)
	default:
		s.sendJSON(w, http.StatusOK, rel)
	}
}

// PUT /api/counselors/{counselorID} creates or renames a counselor record
func (s *Server) provisionCounselor(w http.ResponseWriter, r *http.Request) {
	counselorID := chi.URLParam(r, "counselorID")

	var req ProvisionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
			s.sendError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
	}

	rel, err := s.conversations.Provision(r.Context(), counselorID, req.Name)
	switch {
	case errors.Is(err, conversation.ErrInvalidCounselorID), errors.Is(err, conversation.ErrInvalidName):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		log.Printf("Failed to provision counselor %s: %v", counselorID, err)
		s.sendError(w, "Failed to provision counselor", http.StatusInternalServerError)
	default:
		s.sendJSON(w, http.StatusOK, rel)
	}
}

// GET /health - 503 when the store is unreachable
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.health.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:        status,
		Timestamp:     time.Now(),
		Database:      dbStatus,
		Connections:   s.presence.GetStats(),
		Conversations: s.conversations.Stats(),
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.started).Round(time.Second).String(),
		},
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, code, response)
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// corsMiddleware echoes allowed origins and answers preflight requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case s.allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && s.allowedOrigins[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
