package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"counselrelay/internal/conversation"
	"counselrelay/internal/websocket"
	"counselrelay/pkg/interfaces"
	"counselrelay/pkg/types"
)

type mockHealth struct{ err error }

func (m *mockHealth) HealthCheck(ctx context.Context) error { return m.err }

type mockConversations struct {
	records map[string]*types.Relationship
	stats   conversation.Stats
	err     error
}

func newMockConversations() *mockConversations {
	return &mockConversations{records: make(map[string]*types.Relationship)}
}

func (m *mockConversations) Relationship(ctx context.Context, counselorID string) (*types.Relationship, error) {
	if m.err != nil {
		return nil, m.err
	}
	if !types.IsValidIdentity(counselorID) {
		return nil, conversation.ErrInvalidCounselorID
	}
	rel, ok := m.records[counselorID]
	if !ok {
		return nil, interfaces.ErrRelationshipNotFound
	}
	return rel, nil
}

func (m *mockConversations) Provision(ctx context.Context, counselorID, name string) (*types.Relationship, error) {
	if !types.IsValidIdentity(counselorID) {
		return nil, conversation.ErrInvalidCounselorID
	}
	rel, ok := m.records[counselorID]
	if !ok {
		rel = &types.Relationship{CounselorID: counselorID}
		m.records[counselorID] = rel
	}
	rel.Name = name
	return rel, nil
}

func (m *mockConversations) Stats() conversation.Stats { return m.stats }

type nopConn struct{ id string }

func (c *nopConn) ID() string                    { return c.id }
func (c *nopConn) WriteJSON(v interface{}) error { return nil }
func (c *nopConn) Close() error                  { return nil }

func newTestServer(health error) (*Server, *mockConversations, *websocket.Registry) {
	conversations := newMockConversations()
	registry := websocket.NewRegistry()
	server := NewServer(&mockHealth{err: health}, conversations, registry, nil, []string{"*"})
	return server, conversations, registry
}

func TestServer_HandlerCompliance(t *testing.T) {
	var _ http.Handler = &Server{}
	var _ Presence = websocket.NewRegistry()
	var _ Conversations = &conversation.Service{}
}

func TestServer_Presence(t *testing.T) {
	server, _, registry := newTestServer(nil)
	registry.Connect("dr.bob@x.org", types.RoleCounselor, &nopConn{id: "h1"})
	registry.Connect("alice", types.RoleStudent, &nopConn{id: "h2"})
	registry.Connect("bert", types.RoleStudent, &nopConn{id: "h3"})

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/presence", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}
	var resp PresenceResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Invalid response: %v", err)
	}
	if len(resp.Counselors) != 1 || strings.Join(resp.Students, ",") != "alice,bert" {
		t.Errorf("Unexpected presence: %+v", resp)
	}
}

func TestServer_GetRelationship(t *testing.T) {
	server, conversations, _ := newTestServer(nil)
	conversations.records["dr.bob@x.org"] = &types.Relationship{
		CounselorID: "dr.bob@x.org",
		Name:        "Dr. Bob",
		Students:    []types.StudentConversation{{StudentID: "alice", LastMessageAt: time.Now()}},
	}

	tests := []struct {
		name string
		path string
		code int
	}{
		{"existing counselor", "/api/counselors/dr.bob@x.org/students", http.StatusOK},
		{"unknown counselor", "/api/counselors/dr.nobody@x.org/students", http.StatusNotFound},
		{"invalid counselor", "/api/counselors/bad%20id/students", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.code {
				t.Errorf("Expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
		})
	}

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/counselors/dr.bob@x.org/students", nil))
	var rel types.Relationship
	json.NewDecoder(w.Body).Decode(&rel)
	if !rel.HasStudent("alice") {
		t.Errorf("Expected alice in student list, got %+v", rel)
	}
}

func TestServer_GetRelationshipStoreError(t *testing.T) {
	server, conversations, _ := newTestServer(nil)
	conversations.err = errors.New("database is locked")

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/counselors/dr.bob@x.org/students", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}
	var resp ErrorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if strings.Contains(resp.Message, "locked") {
		t.Error("Internal error details should not leak")
	}
}

func TestServer_ProvisionCounselor(t *testing.T) {
	server, conversations, _ := newTestServer(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/counselors/dr.bob@x.org", strings.NewReader(`{"name":"Dr. Bob"}`))
	server.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if conversations.records["dr.bob@x.org"].Name != "Dr. Bob" {
		t.Error("Counselor should be provisioned")
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/counselors/dr.bob@x.org", strings.NewReader(`{bad`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid JSON, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/counselors/bad%20id", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid ID, got %d", w.Code)
	}
}

func TestServer_HealthCheck(t *testing.T) {
	server, conversations, registry := newTestServer(nil)
	conversations.stats = conversation.Stats{Bootstrapped: 3, Failures: 1}
	registry.Add(&nopConn{id: "h1"})

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Invalid response: %v", err)
	}
	if resp.Status != "healthy" || resp.Connections["total_connections"] != 1 {
		t.Errorf("Unexpected health: %+v", resp)
	}
	if resp.Conversations.Bootstrapped != 3 || resp.Conversations.Failures != 1 {
		t.Errorf("Bootstrap stats missing: %+v", resp.Conversations)
	}
}

func TestServer_HealthCheckUnhealthy(t *testing.T) {
	server, _, _ := newTestServer(errors.New("database closed"))

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}

func TestServer_CORS(t *testing.T) {
	server := NewServer(&mockHealth{}, newMockConversations(), websocket.NewRegistry(), nil, []string{"https://counsel.example.edu"})

	req := httptest.NewRequest(http.MethodOptions, "/api/presence", nil)
	req.Header.Set("Origin", "https://counsel.example.edu")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://counsel.example.edu" {
		t.Errorf("Expected origin echoed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/presence", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Disallowed origin should get no CORS header, got %q", got)
	}
}

func TestServer_MountsWebSocketHandler(t *testing.T) {
	called := false
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusSwitchingProtocols)
	})
	server := NewServer(&mockHealth{}, newMockConversations(), websocket.NewRegistry(), ws, []string{"*"})

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if !called {
		t.Error("/ws should reach the WebSocket handler")
	}
}
