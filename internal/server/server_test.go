package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oxide-run/oxide/internal/agent"
	"github.com/oxide-run/oxide/internal/session"
	"github.com/oxide-run/oxide/internal/storage"
	"github.com/oxide-run/oxide/pkg/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := session.NewStore(storage.New(t.TempDir()))
	return New(DefaultConfig(), &types.Config{}, store, nil, agent.NewRegistry(), "build")
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/session", nil)
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var meta types.SessionMetadata
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if meta.SessionID == "" {
		t.Fatal("expected a session ID")
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/session/"+meta.SessionID, nil)
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListSessions(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/session", nil))
		if rec.Code != http.StatusCreated {
			t.Fatalf("create session %d: %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var metas []types.SessionMetadata
	if err := json.Unmarshal(rec.Body.Bytes(), &metas); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(metas) != 3 {
		t.Errorf("expected 3 sessions, got %d", len(metas))
	}
}

func TestDeleteSession(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/session", nil))
	var meta types.SessionMetadata
	json.Unmarshal(rec.Body.Bytes(), &meta)

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/session/"+meta.SessionID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session/"+meta.SessionID, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestSendMessageRejectsEmptyBody(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/session", nil))
	var meta types.SessionMetadata
	json.Unmarshal(rec.Body.Bytes(), &meta)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/session/"+meta.SessionID+"/message", nil)
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty body, got %d", rec.Code)
	}
}

func TestListAgents(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/agent", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var agents []*agent.Agent
	if err := json.Unmarshal(rec.Body.Bytes(), &agents); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(agents) == 0 {
		t.Error("expected at least one built-in agent")
	}
}
